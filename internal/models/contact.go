package models

import "time"

// SubmissionRequest represents a contact form submission.
// Bounds are inclusive and checked after trimming.
type SubmissionRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,min=10,max=2000"`
}

// TemplateParams are the fields handed to the email provider template
type TemplateParams struct {
	FromName string `json:"from_name"`
	ReplyTo  string `json:"reply_to"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// TemplateParams maps the submission onto the provider template fields
func (r SubmissionRequest) TemplateParams() TemplateParams {
	return TemplateParams{
		FromName: r.Name,
		ReplyTo:  r.Email,
		Subject:  r.Subject,
		Message:  r.Message,
	}
}

// RelayResponse is the success envelope returned by the relay
type RelayResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RelayErrorResponse is the error envelope returned by the relay
type RelayErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Details           any    `json:"details,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// RelayStatusResponse tells a caller whether the form can be offered right now
type RelayStatusResponse struct {
	Configured    bool `json:"configured"`
	Limit         int  `json:"limit"`
	WindowSeconds int  `json:"window_seconds"`
	Remaining     int  `json:"remaining"`
}

// SubmissionReceipt is what the relay service reports back to the handler
type SubmissionReceipt struct {
	ClientIP string
	SentAt   time.Time
	Recorded bool
}
