package dispatch

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/taskcloud/mailbridge/internal/enum"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/services/tracker"
)

// Moscow is the reference zone for the quiet-hours window.
var Moscow = time.FixedZone("MSK", 3*60*60)

const (
	workDayStartHour = 9
	workDayEndHour   = 18
)

var eventPhrases = map[enum.EventType]string{
	enum.EventAssigned:             "📌 assigned the task to you",
	enum.EventCreated:              "🆕 created the task",
	enum.EventUpdated:              "✏️ updated the task",
	enum.EventCommented:            "💬 commented on the task",
	enum.EventMentionedDescription: "👀 mentioned you in the description",
	enum.EventMentionedComment:     "👀 mentioned you in a comment",
	enum.EventWorklogged:           "⏱ logged work on the task",
}

// Dispatcher turns classification outcomes into outbound notifications,
// applying per-user event preferences and quiet-hours muting. It is pure:
// the caller supplies the clock.
type Dispatcher struct{}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// BuildTrackerNotification renders one notification for a tracker email.
// Returns nil when every event is filtered out by the user's preferences.
func (d *Dispatcher) BuildTrackerNotification(user *models.UserMailbox, msg models.RawMessage, outcome tracker.Outcome, now time.Time) *models.OutboundNotification {
	events := filterEvents(user, outcome.Events)
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(taskHeading(msg, outcome.Task))
	b.WriteString("\n")

	for _, group := range groupByAuthor(events) {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(group.author))
		b.WriteString(":")
		for _, t := range group.types {
			b.WriteString("\n")
			b.WriteString(eventPhrases[t])
		}
	}

	return &models.OutboundNotification{
		Recipient:  user.ChatID,
		Body:       b.String(),
		RichFormat: enum.FormatHTML,
		Muted:      d.Muted(user, now),
	}
}

// BuildGenericNotification renders a plain new-mail notification for a
// non-tracker email. Returns nil when the user opted out of generic mail.
func (d *Dispatcher) BuildGenericNotification(user *models.UserMailbox, msg models.RawMessage, now time.Time) *models.OutboundNotification {
	if !user.NotifyGenericMail {
		return nil
	}

	body := fmt.Sprintf("📧 New email from %s\n%s",
		html.EscapeString(msg.Sender),
		html.EscapeString(msg.Subject))

	return &models.OutboundNotification{
		Recipient:  user.ChatID,
		Body:       body,
		RichFormat: enum.FormatHTML,
		Muted:      d.Muted(user, now),
	}
}

// Muted reports whether a notification sent now should be silent. Muting
// never suppresses delivery; it only drops the sound on the receiving side.
func (d *Dispatcher) Muted(user *models.UserMailbox, now time.Time) bool {
	if !user.QuietHoursEnabled {
		return false
	}
	return !withinWorkHours(now)
}

// withinWorkHours reports whether now falls inside Mon-Fri 09:00-17:59 MSK.
func withinWorkHours(now time.Time) bool {
	local := now.In(Moscow)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return local.Hour() >= workDayStartHour && local.Hour() < workDayEndHour
}

// taskHeading links the issue when the classifier recovered it, else falls
// back to the email subject.
func taskHeading(msg models.RawMessage, task *tracker.Task) string {
	if task == nil || task.URL == "" {
		return html.EscapeString(msg.Subject)
	}

	label := task.Key
	if task.Summary != "" {
		label = fmt.Sprintf("[%s] %s", task.Key, task.Summary)
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, task.URL, html.EscapeString(label))
}

func filterEvents(user *models.UserMailbox, events []tracker.Event) []tracker.Event {
	var kept []tracker.Event
	for _, e := range events {
		if user.EventEnabled(e.Type) {
			kept = append(kept, e)
		}
	}
	return kept
}

type authorGroup struct {
	author string
	types  []enum.EventType
}

// groupByAuthor aggregates one author's events into a single block, keeping
// first-appearance author order and classification event order within a block.
func groupByAuthor(events []tracker.Event) []authorGroup {
	index := map[string]int{}
	var groups []authorGroup

	for _, e := range events {
		i, ok := index[e.Author]
		if !ok {
			i = len(groups)
			index[e.Author] = i
			groups = append(groups, authorGroup{author: e.Author})
		}
		groups[i].types = append(groups[i].types, e.Type)
	}

	return groups
}
