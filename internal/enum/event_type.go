package enum

// EventType is the closed set of tracker actions a user can subscribe to.
type EventType string

const (
	EventCreated              EventType = "created"
	EventAssigned             EventType = "assigned"
	EventUpdated              EventType = "updated"
	EventCommented            EventType = "commented"
	EventMentionedDescription EventType = "mentioned_in_description"
	EventMentionedComment     EventType = "mentioned_in_comment"
	EventWorklogged           EventType = "worklogged"
)

func (t EventType) String() string {
	return string(t)
}

// AllEventTypes returns every known event type in notification display order.
func AllEventTypes() []EventType {
	return []EventType{
		EventAssigned,
		EventCreated,
		EventUpdated,
		EventCommented,
		EventMentionedDescription,
		EventMentionedComment,
		EventWorklogged,
	}
}

// DecodeEventType maps a stored string onto the closed set. Unknown strings
// return false so stale rows cannot enable events that no longer exist.
func DecodeEventType(s string) (EventType, bool) {
	t := EventType(s)
	for _, known := range AllEventTypes() {
		if t == known {
			return t, true
		}
	}
	return "", false
}
