package interfaces

import (
	"context"

	"github.com/taskcloud/mailbridge/internal/models"
)

// DeliverySink delivers one outbound notification. Best effort: callers log
// failures and never retry.
type DeliverySink interface {
	Send(ctx context.Context, notification models.OutboundNotification) error
}
