package interfaces

import (
	"context"
	"time"

	"github.com/taskcloud/mailbridge/internal/models"
)

// UserMailboxRepository is the credential store: per-user mailbox credentials,
// notification preferences and poll watermark. UpdateWatermark must serialize
// against concurrent credential upserts on the same row, since the admin API
// writes through the same table while passes run.
type UserMailboxRepository interface {
	GetAllUsers(ctx context.Context) ([]*models.UserMailbox, error)
	GetByChatID(ctx context.Context, chatID string) (*models.UserMailbox, error)
	Upsert(ctx context.Context, user *models.UserMailbox) (*models.UserMailbox, error)
	UpdatePrefs(ctx context.Context, chatID string, notifyGenericMail, quietHoursEnabled bool, enabledEvents []string) error
	UpdateWatermark(ctx context.Context, userID string, lastProcessedUID uint32, lastCheckTime time.Time) error
	Delete(ctx context.Context, chatID string) error
}
