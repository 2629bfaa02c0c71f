package tracker

import (
	"github.com/taskcloud/mailbridge/internal/enum"
)

type OutcomeKind string

const (
	// OutcomeNotTracker marks ordinary mail with no tracker markers.
	OutcomeNotTracker OutcomeKind = "not_tracker"
	// OutcomeTrackerNoEvents marks a tracker email with nothing actionable in it.
	OutcomeTrackerNoEvents OutcomeKind = "tracker_no_events"
	// OutcomeTrackerEvents marks a tracker email with extracted events.
	OutcomeTrackerEvents OutcomeKind = "tracker_events"
)

// Task identifies the issue a notification email is about.
type Task struct {
	Key     string
	URL     string
	Summary string
}

// Event is one extracted (author, event-type) pair. Author is never empty:
// unresolved authors are filled in by the resolution pass.
type Event struct {
	Author string
	Type   enum.EventType
}

// Outcome is the classification result for one email body.
type Outcome struct {
	Kind   OutcomeKind
	Task   *Task
	Events []Event
}
