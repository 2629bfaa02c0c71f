package interfaces

import (
	"context"

	"github.com/taskcloud/mailbridge/dto"
)

// EventsPublisher emits audit events about dispatched notifications.
// Fire-and-forget: publish failures never affect a polling pass.
type EventsPublisher interface {
	PublishNotificationDispatched(ctx context.Context, event dto.NotificationDispatched) error
	Close() error
}
