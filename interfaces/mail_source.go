package interfaces

import (
	"context"

	"github.com/taskcloud/mailbridge/internal/models"
)

// MailSource lists and fetches mailbox messages received since the user's
// watermark state. Implementations must be read-only with respect to the
// remote mailbox.
type MailSource interface {
	FetchSince(ctx context.Context, user *models.UserMailbox) ([]models.RawMessage, error)
}
