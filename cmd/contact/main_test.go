package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name       string
		outcome    models.SubmissionOutcome
		wantCode   int
		wantStderr string
	}{
		{"success", models.SubmissionOutcome{Status: models.StatusSuccess}, exitOK, ""},
		{"rate limited", models.SubmissionOutcome{Status: models.StatusRateLimited, RetryAfter: time.Minute}, exitRateLimited, ""},
		{
			"field errors",
			models.SubmissionOutcome{Status: models.StatusError, FieldErrors: []models.FieldError{{Field: "email", Message: "Invalid email address"}}},
			exitInvalid,
			"  email: Invalid email address\n",
		},
		{"provider failure", models.SubmissionOutcome{Status: models.StatusError, Error: "boom"}, exitFailed, ""},
		{"cancelled", models.SubmissionOutcome{Status: models.StatusIdle}, exitFailed, "Submission cancelled\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			assert.Equal(t, tt.wantCode, report(tt.outcome, &stderr))
			assert.Equal(t, tt.wantStderr, stderr.String())
		})
	}
}
