package notifications

import (
	"context"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	// Notify sends a free-form message, truncated to MaxMessageLength
	Notify(ctx context.Context, message string) error
	// SendReport sends the single summary of a run
	SendReport(ctx context.Context, report *models.RunReport) error
}
