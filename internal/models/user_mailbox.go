package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/taskcloud/mailbridge/internal/enum"
	"github.com/taskcloud/mailbridge/internal/utils"
)

// UserMailbox holds one user's mailbox credentials, notification preferences
// and the poll watermark. One row per chat recipient; read once and written
// once per polling pass.
type UserMailbox struct {
	ID     string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ChatID string `gorm:"column:chat_id;type:varchar(50);uniqueIndex;not null" json:"chatId"`
	// IMAP Configuration
	MailboxAddress string          `gorm:"column:mailbox_address;type:varchar(255)" json:"mailboxAddress"`
	AuthSecret     string          `gorm:"column:auth_secret;type:varchar(1024)" json:"-"`
	AuthMethod     enum.AuthMethod `gorm:"column:auth_method;type:varchar(50);default:password" json:"authMethod"`
	ImapServer     string          `gorm:"column:imap_server;type:varchar(255)" json:"imapServer"`
	ImapPort       int             `gorm:"column:imap_port;default:993" json:"imapPort"`
	ImapTLS        bool            `gorm:"column:imap_tls;not null;default:true" json:"imapTls"`
	// Poll watermark
	LastProcessedUID *uint32   `gorm:"column:last_processed_uid" json:"lastProcessedUid"`
	LastCheckTime    time.Time `gorm:"column:last_check_time;type:timestamp" json:"lastCheckTime"`
	// Notification preferences
	NotifyGenericMail bool           `gorm:"column:notify_generic_mail;not null;default:true" json:"notifyGenericMail"`
	QuietHoursEnabled bool           `gorm:"column:quiet_hours_enabled;not null;default:true" json:"quietHoursEnabled"`
	EnabledEvents     pq.StringArray `gorm:"column:enabled_events;type:text[]" json:"enabledEvents"`
	// Standard timestamps
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (UserMailbox) TableName() string {
	return "user_mailboxes"
}

func (u *UserMailbox) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = utils.GenerateNanoIDWithPrefix("user", 16)
	}
	return nil
}

// HasCredentials reports whether the mailbox is configured enough to poll.
func (u *UserMailbox) HasCredentials() bool {
	return u.MailboxAddress != "" && u.AuthSecret != "" && u.ImapServer != ""
}

// EventEnabled reports whether the user subscribed to the given event type.
func (u *UserMailbox) EventEnabled(t enum.EventType) bool {
	return utils.IsStringInSlice(t.String(), []string(u.EnabledEvents))
}

// Watermark returns the last processed UID, zero when nothing was processed yet.
func (u *UserMailbox) Watermark() uint32 {
	return utils.GetOrDefault(u.LastProcessedUID, 0)
}
