package services

import (
	"context"

	"github.com/folio/contact-relay/internal/models"
)

// RelayServiceInterface defines the interface for relay operations
type RelayServiceInterface interface {
	Submit(ctx context.Context, clientIP string, req models.SubmissionRequest) (*models.SubmissionReceipt, error)
	Status(ctx context.Context, clientIP string) (*models.RelayStatusResponse, error)
}
