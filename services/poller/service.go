package poller

import (
	"context"
	"sync"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"

	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/dto"
	"github.com/taskcloud/mailbridge/interfaces"
	"github.com/taskcloud/mailbridge/internal/logger"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/tracing"
	"github.com/taskcloud/mailbridge/internal/utils"
	"github.com/taskcloud/mailbridge/services/dispatch"
	"github.com/taskcloud/mailbridge/services/tracker"
)

type pollerService struct {
	cfg        *config.PollerConfig
	log        logger.Logger
	repository interfaces.UserMailboxRepository
	source     interfaces.MailSource
	parser     *tracker.Parser
	dispatcher *dispatch.Dispatcher
	sink       interfaces.DeliverySink
	publisher  interfaces.EventsPublisher

	// inFlight keeps at most one active poll per user across overlapping passes.
	inFlight sync.Map

	statsMutex sync.RWMutex
	lastPass   interfaces.PassStats
}

func NewPollOrchestrator(
	cfg *config.PollerConfig,
	log logger.Logger,
	repository interfaces.UserMailboxRepository,
	source interfaces.MailSource,
	parser *tracker.Parser,
	dispatcher *dispatch.Dispatcher,
	sink interfaces.DeliverySink,
	publisher interfaces.EventsPublisher,
) interfaces.PollOrchestrator {
	return &pollerService{
		cfg:        cfg,
		log:        log,
		repository: repository,
		source:     source,
		parser:     parser,
		dispatcher: dispatcher,
		sink:       sink,
		publisher:  publisher,
	}
}

type userResult struct {
	seen    int
	sent    int
	skipped bool
	failed  bool
}

// RunPass polls every configured user concurrently. One user's failure never
// touches another user's watermark or deliveries.
func (s *pollerService) RunPass(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PollerService.RunPass")
	defer span.Finish()
	tracing.TagComponentService(span)

	passID := uuid.New().String()
	span.SetTag("passId", passID)
	startedAt := utils.Now()

	users, err := s.repository.GetAllUsers(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogKV("users.count", len(users))

	results := make([]userResult, len(users))
	var wg sync.WaitGroup

	for i, user := range users {
		wg.Add(1)
		go func(i int, user *models.UserMailbox) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Errorf("panic while polling user %s: %v", user.ID, r)
					results[i].failed = true
				}
			}()
			results[i] = s.pollUser(ctx, passID, user)
		}(i, user)
	}
	wg.Wait()

	stats := interfaces.PassStats{
		PassID:     passID,
		StartedAt:  startedAt,
		FinishedAt: utils.Now(),
		UsersTotal: len(users),
	}
	for _, r := range results {
		if r.skipped {
			stats.UsersSkipped++
		}
		if r.failed {
			stats.UsersFailed++
		}
		stats.MessagesSeen += r.seen
		stats.NotificationsSent += r.sent
	}

	s.statsMutex.Lock()
	s.lastPass = stats
	s.statsMutex.Unlock()

	s.log.Infof("pass %s finished: %d users, %d skipped, %d failed, %d messages, %d notifications",
		passID, stats.UsersTotal, stats.UsersSkipped, stats.UsersFailed, stats.MessagesSeen, stats.NotificationsSent)
	return nil
}

func (s *pollerService) LastPass() interfaces.PassStats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()
	return s.lastPass
}

func (s *pollerService) pollUser(ctx context.Context, passID string, user *models.UserMailbox) userResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PollerService.pollUser")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagUser(span, user.ID)

	if !user.HasCredentials() {
		s.log.Debugf("skipping user %s: mailbox not configured", user.ID)
		return userResult{skipped: true}
	}

	validate := mailvalidate.ValidateEmailSyntax(user.MailboxAddress)
	if !validate.IsValid {
		s.log.Warnf("skipping user %s: invalid mailbox address", user.ID)
		return userResult{skipped: true}
	}

	if _, busy := s.inFlight.LoadOrStore(user.ID, struct{}{}); busy {
		span.LogKV("skip", "poll already in flight")
		return userResult{skipped: true}
	}
	defer s.inFlight.Delete(user.ID)

	messages, err := s.fetchWithRetry(ctx, user)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to fetch mailbox for user %s: %v", user.ID, err)
		return userResult{failed: true}
	}

	result := userResult{seen: len(messages)}
	now := utils.Now()
	maxUID := user.Watermark()

	for _, msg := range messages {
		if msg.UID > maxUID {
			maxUID = msg.UID
		}

		notification := s.buildNotification(user, msg, now)
		if notification == nil {
			continue
		}

		deliverErr := s.sink.Send(ctx, *notification)
		if deliverErr != nil {
			s.log.Errorf("failed to deliver notification for user %s uid %d: %v", user.ID, msg.UID, deliverErr)
		} else {
			result.sent++
		}
		s.publishDispatched(ctx, passID, user, msg, notification, deliverErr == nil)
	}

	// The watermark moves even when deliveries failed; a broken chat must not
	// replay the same mail forever.
	if err := s.repository.UpdateWatermark(ctx, user.ID, maxUID, now); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to update watermark for user %s: %v", user.ID, err)
		result.failed = true
	}

	return result
}

// fetchWithRetry wraps MailSource.FetchSince with a fixed-delay retry policy.
func (s *pollerService) fetchWithRetry(ctx context.Context, user *models.UserMailbox) ([]models.RawMessage, error) {
	policy := &backoff.Backoff{
		Min:    time.Duration(s.cfg.FetchRetryDelaySec) * time.Second,
		Max:    time.Duration(s.cfg.FetchRetryDelaySec) * time.Second,
		Factor: 1,
	}

	// A misconfigured retry count must not skip the fetch entirely.
	attempts := s.cfg.FetchRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		messages, err := s.source.FetchSince(ctx, user)
		if err == nil {
			return messages, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		s.log.Warnf("fetch attempt %d/%d failed for user %s: %v", attempt, attempts, user.ID, err)
		select {
		case <-time.After(policy.Duration()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (s *pollerService) buildNotification(user *models.UserMailbox, msg models.RawMessage, now time.Time) *models.OutboundNotification {
	outcome := s.parser.Classify(msg.HTMLBody)

	switch outcome.Kind {
	case tracker.OutcomeTrackerEvents:
		return s.dispatcher.BuildTrackerNotification(user, msg, outcome, now)
	case tracker.OutcomeTrackerNoEvents:
		// Tracker housekeeping mail with nothing actionable stays silent.
		return nil
	default:
		return s.dispatcher.BuildGenericNotification(user, msg, now)
	}
}

func (s *pollerService) publishDispatched(ctx context.Context, passID string, user *models.UserMailbox, msg models.RawMessage, notification *models.OutboundNotification, delivered bool) {
	event := dto.NotificationDispatched{
		PassID:     passID,
		UserID:     user.ID,
		Recipient:  notification.Recipient,
		MessageUID: msg.UID,
		RichFormat: notification.RichFormat,
		Muted:      notification.Muted,
		Delivered:  delivered,
		SentAt:     utils.Now(),
	}
	if err := s.publisher.PublishNotificationDispatched(ctx, event); err != nil {
		s.log.Warnf("failed to publish dispatch event for user %s: %v", user.ID, err)
	}
}
