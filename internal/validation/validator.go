package validation

import (
	"reflect"
	"strings"

	"github.com/folio/contact-relay/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// fieldLabels are the human-facing names used in violation messages
var fieldLabels = map[string]string{
	"name":    "Name",
	"email":   "Email",
	"subject": "Subject",
	"message": "Message",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON path rather than the Go field name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Normalize trims every field of the submission. It is idempotent.
func Normalize(req models.SubmissionRequest) models.SubmissionRequest {
	return models.SubmissionRequest{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Subject: strings.TrimSpace(req.Subject),
		Message: strings.TrimSpace(req.Message),
	}
}

// Validate normalizes the submission and checks every field.
// All fields are checked; the returned violations follow struct field order.
func Validate(req models.SubmissionRequest) (models.SubmissionRequest, []models.FieldError) {
	normalized := Normalize(req)

	if err := validate.Struct(normalized); err != nil {
		return normalized, ParseValidationErrors(err)
	}

	return normalized, nil
}

// MissingFields returns the JSON names of fields that are empty after trimming
func MissingFields(req models.SubmissionRequest) []string {
	normalized := Normalize(req)
	var missing []string
	if normalized.Name == "" {
		missing = append(missing, "name")
	}
	if normalized.Email == "" {
		missing = append(missing, "email")
	}
	if normalized.Subject == "" {
		missing = append(missing, "subject")
	}
	if normalized.Message == "" {
		missing = append(missing, "message")
	}
	return missing
}

// ParseValidationErrors converts validator errors to user-friendly format
func ParseValidationErrors(err error) []models.FieldError {
	var errors []models.FieldError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			errors = append(errors, models.FieldError{
				Field:   fieldError.Field(),
				Message: getErrorMessage(fieldError),
			})
		}
	}

	return errors
}

func getErrorMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return label + " must be at least " + fe.Param() + " characters"
	case "max":
		return label + " must not exceed " + fe.Param() + " characters"
	default:
		return label + " is invalid"
	}
}
