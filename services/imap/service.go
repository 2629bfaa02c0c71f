package imap

import (
	"context"
	"sort"
	"time"

	go_imap "github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/interfaces"
	mailbridge_errors "github.com/taskcloud/mailbridge/internal/errors"
	"github.com/taskcloud/mailbridge/internal/logger"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/tracing"
	"github.com/taskcloud/mailbridge/internal/utils"
)

const inboxFolder = "INBOX"

type mailSource struct {
	cfg *config.PollerConfig
	log logger.Logger
}

func NewMailSource(cfg *config.PollerConfig, log logger.Logger) interfaces.MailSource {
	return &mailSource{
		cfg: cfg,
		log: log,
	}
}

// FetchSince lists and fetches messages received since the user's watermark
// state. The remote mailbox is never mutated: the folder is selected read-only
// and bodies are fetched with BODY.PEEK.
func (s *mailSource) FetchSince(ctx context.Context, user *models.UserMailbox) ([]models.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailSource.FetchSince")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, user.ID)

	now := utils.Now()
	since := sinceBound(user.LastCheckTime, now, s.searchWindow())
	span.LogFields(tracingLog.String("search.since", since.Format(time.RFC3339)))

	c, err := s.connectMailbox(ctx, user)
	if err != nil {
		return nil, err
	}
	defer s.disconnect(c)

	c.Timeout = 30 * time.Second
	if _, err := c.Select(inboxFolder, true); err != nil {
		err = errors.Wrapf(mailbridge_errors.ErrMailConnection, "error selecting folder: %v", err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	// SEARCH SINCE works on day granularity; exact ordering is restored below
	// with the UID and internal-date filters.
	criteria := go_imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := c.UidSearch(criteria)
	c.Timeout = 0
	if err != nil {
		err = errors.Wrapf(mailbridge_errors.ErrMailConnection, "error searching for new messages: %v", err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	uids = filterUIDs(uids, user.Watermark())
	span.LogFields(tracingLog.Int("uids.new", len(uids)))
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(go_imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &go_imap.BodySectionName{Peek: true}
	items := []go_imap.FetchItem{
		go_imap.FetchEnvelope,
		go_imap.FetchInternalDate,
		go_imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *go_imap.Message, 10)
	done := make(chan error, 1)

	c.Timeout = 60 * time.Second
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var result []models.RawMessage
	for msg := range messages {
		// The day-granular search can return same-day messages already seen
		// in a previous pass; only internal dates strictly after the last
		// check survive.
		if !user.LastCheckTime.IsZero() && !msg.InternalDate.After(user.LastCheckTime) {
			continue
		}

		result = append(result, models.RawMessage{
			UID:        msg.Uid,
			Subject:    subjectOf(msg.Envelope),
			Sender:     senderOf(msg.Envelope),
			HTMLBody:   htmlBodyOf(msg, section),
			ReceivedAt: msg.InternalDate,
		})
	}
	c.Timeout = 0

	if err := <-done; err != nil {
		err = errors.Wrapf(mailbridge_errors.ErrMailConnection, "error fetching messages: %v", err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })
	span.LogFields(tracingLog.Int("messages.fetched", len(result)))

	return result, nil
}

func (s *mailSource) searchWindow() time.Duration {
	minutes := s.cfg.SearchWindowMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}

// sinceBound clamps the search lower bound so a long poller outage cannot
// widen the query beyond the configured window.
func sinceBound(lastCheck, now time.Time, window time.Duration) time.Time {
	if lastCheck.IsZero() || now.Sub(lastCheck) > window {
		return now.Add(-window)
	}
	return lastCheck
}

// filterUIDs drops UIDs at or below the watermark and returns the remainder
// in ascending order.
func filterUIDs(uids []uint32, watermark uint32) []uint32 {
	var out []uint32
	for _, uid := range uids {
		if uid > watermark {
			out = append(out, uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
