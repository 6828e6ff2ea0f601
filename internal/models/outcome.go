package models

import "time"

// SubmissionStatus is the lifecycle state of one send attempt
type SubmissionStatus string

const (
	StatusIdle        SubmissionStatus = "idle"
	StatusSending     SubmissionStatus = "sending"
	StatusSuccess     SubmissionStatus = "success"
	StatusError       SubmissionStatus = "error"
	StatusRateLimited SubmissionStatus = "rate_limited"
)

// FieldError is a single field-scoped validation violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SubmissionOutcome is the transient state shown to the user for the latest attempt
type SubmissionOutcome struct {
	Status      SubmissionStatus
	Error       string
	FieldErrors []FieldError
	RetryAfter  time.Duration
}

// IsTerminal reports whether the attempt has finished
func (o SubmissionOutcome) IsTerminal() bool {
	switch o.Status {
	case StatusSuccess, StatusError, StatusRateLimited:
		return true
	}
	return false
}
