package dto

import (
	"time"

	"github.com/taskcloud/mailbridge/internal/enum"
)

// NotificationDispatched is published after a notification is handed to the
// delivery sink, for downstream audit consumers.
type NotificationDispatched struct {
	PassID     string          `json:"passId"`
	UserID     string          `json:"userId"`
	Recipient  string          `json:"recipient"`
	MessageUID uint32          `json:"messageUid"`
	RichFormat enum.RichFormat `json:"richFormat"`
	Muted      bool            `json:"muted"`
	Delivered  bool            `json:"delivered"`
	SentAt     time.Time       `json:"sentAt"`
}
