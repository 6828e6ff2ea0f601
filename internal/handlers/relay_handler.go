package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/internal/services"
	"github.com/folio/contact-relay/internal/validation"
	apperrors "github.com/folio/contact-relay/pkg/errors"
	"github.com/gin-gonic/gin"
)

const (
	sendFailedCode    = "Failed to send email"
	sendFailedMessage = "Failed to send message. Please try again later."
)

type RelayHandler struct {
	service services.RelayServiceInterface
	limit   int
	window  time.Duration
}

// NewRelayHandler creates a handler whose 429 message describes limit sends per window
func NewRelayHandler(service services.RelayServiceInterface, limit int, window time.Duration) *RelayHandler {
	return &RelayHandler{service: service, limit: limit, window: window}
}

// windowPhrase renders a window for "N messages per ..."
func windowPhrase(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int64(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

// Preflight answers CORS preflight requests. Headers come from the relay CORS middleware.
func (h *RelayHandler) Preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Submit relays one contact submission
func (h *RelayHandler) Submit(c *gin.Context) {
	var req models.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectInvalid(c, "Invalid request body", "Request body must be a JSON object", nil, err)
		return
	}

	if missing := validation.MissingFields(req); len(missing) > 0 {
		rejectInvalid(c, "Missing required fields",
			"The following fields are required: "+strings.Join(missing, ", "), missing, nil)
		return
	}

	normalized, violations := validation.Validate(req)
	if len(violations) > 0 {
		rejectInvalid(c, "Invalid submission", violations[0].Message, violations, nil)
		return
	}

	_, err := h.service.Submit(c.Request.Context(), ClientIP(c), normalized)
	if err != nil {
		h.handleSubmitError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RelayResponse{
		Success: true,
		Message: "Email sent successfully",
	})
}

func (h *RelayHandler) handleSubmitError(c *gin.Context, err error) {
	var rl *apperrors.RateLimitError
	if apperrors.As(err, &rl) {
		seconds := int((rl.RetryAfter + time.Second - 1) / time.Second)
		c.Header("Retry-After", strconv.Itoa(seconds))
		reject(c, http.StatusTooManyRequests, models.RelayErrorResponse{
			Error: "Too many requests",
			Message: fmt.Sprintf("You can send up to %d messages per %s. Please try again in %d minutes.",
				h.limit, windowPhrase(h.window), models.WaitMinutes(rl.RetryAfter)),
			RetryAfterSeconds: seconds,
		}, err)
		return
	}

	var perr *apperrors.ProviderError
	if apperrors.As(err, &perr) {
		rejectInternal(c, sendFailedCode, perr.Error(), err)
		return
	}

	// Missing configuration and internal failures share the generic message
	rejectInternal(c, sendFailedCode, sendFailedMessage, err)
}

// Status tells the caller whether the relay is configured and how many sends remain
func (h *RelayHandler) Status(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	status, err := h.service.Status(c.Request.Context(), ClientIP(c))
	if err != nil {
		rejectInternal(c, "Internal server error", sendFailedMessage, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
