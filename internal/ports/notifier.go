package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error
}
