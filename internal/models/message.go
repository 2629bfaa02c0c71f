package models

import (
	"time"

	"github.com/taskcloud/mailbridge/internal/enum"
)

// RawMessage is one fetched mailbox message. It lives only for the duration
// of a polling pass and is never persisted.
type RawMessage struct {
	UID        uint32
	Subject    string
	Sender     string
	HTMLBody   string
	ReceivedAt time.Time
}

// OutboundNotification is the unit handed to the delivery sink. Muted flags
// the message as silent; it never suppresses delivery.
type OutboundNotification struct {
	Recipient  string
	Body       string
	RichFormat enum.RichFormat
	Muted      bool
}
