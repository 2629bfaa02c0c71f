package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskcloud/mailbridge/interfaces"
	er "github.com/taskcloud/mailbridge/internal/errors"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/tracing"
	"github.com/taskcloud/mailbridge/internal/utils"
)

type userMailboxRepository struct {
	db *gorm.DB
}

func NewUserMailboxRepository(db *gorm.DB) interfaces.UserMailboxRepository {
	return &userMailboxRepository{db: db}
}

// GetAllUsers returns every configured user row, including users without
// mailbox credentials; the poller decides what to skip.
func (r *userMailboxRepository) GetAllUsers(ctx context.Context) ([]*models.UserMailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userMailboxRepository.GetAllUsers")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var users []*models.UserMailbox
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&users).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func (r *userMailboxRepository) GetByChatID(ctx context.Context, chatID string) (*models.UserMailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userMailboxRepository.GetByChatID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var user models.UserMailbox
	result := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&user)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // not configured yet
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get user: %w", result.Error)
	}

	return &user, nil
}

// Upsert creates or replaces the credential part of a user row. The admin API
// writes through this path concurrently with polling passes, so the row is
// locked for the duration of the transaction.
func (r *userMailboxRepository) Upsert(ctx context.Context, user *models.UserMailbox) (*models.UserMailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userMailboxRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.UserMailbox
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chat_id = ?", user.ChatID).
			First(&existing)

		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				user.LastCheckTime = utils.Now()
				return tx.Create(user).Error
			}
			return result.Error
		}

		return tx.Model(&existing).Updates(map[string]interface{}{
			"mailbox_address": user.MailboxAddress,
			"auth_secret":     user.AuthSecret,
			"auth_method":     user.AuthMethod,
			"imap_server":     user.ImapServer,
			"imap_port":       user.ImapPort,
			"imap_tls":        user.ImapTLS,
			"updated_at":      utils.Now(),
		}).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return r.GetByChatID(ctx, user.ChatID)
}

func (r *userMailboxRepository) UpdatePrefs(ctx context.Context, chatID string, notifyGenericMail, quietHoursEnabled bool, enabledEvents []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userMailboxRepository.UpdatePrefs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.UserMailbox{}).
		Where("chat_id = ?", chatID).
		Updates(map[string]interface{}{
			"notify_generic_mail": notifyGenericMail,
			"quiet_hours_enabled": quietHoursEnabled,
			"enabled_events":      pq.StringArray(enabledEvents),
			"updated_at":          utils.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update prefs: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return er.ErrUserNotFound
	}

	return nil
}

// UpdateWatermark advances the user's poll watermark. The UID is guarded so
// it can never regress, even if an older pass finishes late.
func (r *userMailboxRepository) UpdateWatermark(ctx context.Context, userID string, lastProcessedUID uint32, lastCheckTime time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userMailboxRepository.UpdateWatermark")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagUser(span, userID)

	result := r.db.WithContext(ctx).
		Model(&models.UserMailbox{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_processed_uid": gorm.Expr("GREATEST(COALESCE(last_processed_uid, 0), ?)", lastProcessedUID),
			"last_check_time":    lastCheckTime,
			"updated_at":         utils.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update watermark: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return er.ErrUserNotFound
	}

	return nil
}

func (r *userMailboxRepository) Delete(ctx context.Context, chatID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userMailboxRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&models.UserMailbox{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete user: %w", result.Error)
	}

	return nil
}
