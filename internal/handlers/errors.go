package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/pkg/metrics"
)

// recordCause hands err to the observability middleware for the request log
func recordCause(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err) //nolint:errcheck // returns *gin.Error, not an error to check
}

func reject(c *gin.Context, status int, body models.RelayErrorResponse, cause error) {
	recordCause(c, cause)
	c.JSON(status, body)
}

// rejectInvalid answers 400 and counts the submission as invalid
func rejectInvalid(c *gin.Context, code, message string, details any, cause error) {
	metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
	reject(c, http.StatusBadRequest, models.RelayErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	}, cause)
}

func rejectInternal(c *gin.Context, code, message string, cause error) {
	reject(c, http.StatusInternalServerError, models.RelayErrorResponse{Error: code, Message: message}, cause)
}
