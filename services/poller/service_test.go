package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/dto"
	"github.com/taskcloud/mailbridge/internal/logger"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/utils"
	"github.com/taskcloud/mailbridge/services/dispatch"
	"github.com/taskcloud/mailbridge/services/tracker"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeRepo struct {
	mu    sync.Mutex
	users []*models.UserMailbox

	watermarkErr   error
	watermarkCalls map[string]int
}

func (r *fakeRepo) GetAllUsers(ctx context.Context) ([]*models.UserMailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.UserMailbox(nil), r.users...), nil
}

func (r *fakeRepo) GetByChatID(ctx context.Context, chatID string) (*models.UserMailbox, error) {
	return nil, nil
}

func (r *fakeRepo) Upsert(ctx context.Context, user *models.UserMailbox) (*models.UserMailbox, error) {
	return user, nil
}

func (r *fakeRepo) UpdatePrefs(ctx context.Context, chatID string, notifyGenericMail, quietHoursEnabled bool, enabledEvents []string) error {
	return nil
}

func (r *fakeRepo) UpdateWatermark(ctx context.Context, userID string, lastProcessedUID uint32, lastCheckTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watermarkCalls == nil {
		r.watermarkCalls = map[string]int{}
	}
	r.watermarkCalls[userID]++

	if r.watermarkErr != nil {
		return r.watermarkErr
	}

	for _, u := range r.users {
		if u.ID != userID {
			continue
		}
		if lastProcessedUID > u.Watermark() {
			u.LastProcessedUID = utils.Ptr(lastProcessedUID)
		}
		u.LastCheckTime = lastCheckTime
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, chatID string) error {
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	mailbox  map[string][]models.RawMessage
	failures map[string]int
	calls    map[string]int
}

func (s *fakeSource) FetchSince(ctx context.Context, user *models.UserMailbox) ([]models.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[user.ID]++

	if s.failures[user.ID] > 0 {
		s.failures[user.ID]--
		return nil, errors.New("connection reset")
	}

	var out []models.RawMessage
	for _, msg := range s.mailbox[user.ID] {
		if msg.UID > user.Watermark() {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeSink struct {
	mu      sync.Mutex
	sent    []models.OutboundNotification
	sendErr error
}

func (s *fakeSink) Send(ctx context.Context, notification models.OutboundNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, notification)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []dto.NotificationDispatched
}

func (p *fakePublisher) PublishNotificationDispatched(ctx context.Context, event dto.NotificationDispatched) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error {
	return nil
}

func pollerConfig() *config.PollerConfig {
	return &config.PollerConfig{
		SearchWindowMinutes: 15,
		FetchRetries:        3,
		FetchRetryDelaySec:  0,
	}
}

func configuredUser(id string) *models.UserMailbox {
	return &models.UserMailbox{
		ID:                id,
		ChatID:            "chat-" + id,
		MailboxAddress:    id + "@task-cloud.ru",
		AuthSecret:        "secret",
		ImapServer:        "imap.task-cloud.ru",
		NotifyGenericMail: true,
	}
}

func genericMail(uid uint32) models.RawMessage {
	return models.RawMessage{
		UID:     uid,
		Subject: "hello",
		Sender:  "someone@example.com",
	}
}

func newTestPoller(repo *fakeRepo, source *fakeSource, sink *fakeSink, publisher *fakePublisher) *pollerService {
	parser := tracker.NewParser(&config.TrackerConfig{
		BaseURL: "https://jira.task-cloud.ru",
		Markers: []string{"jira.task-cloud.ru"},
	})
	return NewPollOrchestrator(
		pollerConfig(),
		getLogger(),
		repo,
		source,
		parser,
		dispatch.NewDispatcher(),
		sink,
		publisher,
	).(*pollerService)
}

func TestRunPass_DeliversNewMailAndAdvancesWatermark(t *testing.T) {
	// Arrange
	user := configuredUser("u1")
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{mailbox: map[string][]models.RawMessage{
		"u1": {genericMail(5), genericMail(6)},
	}}
	sink := &fakeSink{}
	publisher := &fakePublisher{}
	p := newTestPoller(repo, source, sink, publisher)

	// Act
	err := p.RunPass(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Len(t, sink.sent, 2)
	assert.Equal(t, uint32(6), user.Watermark())
	assert.Len(t, publisher.events, 2)

	stats := p.LastPass()
	assert.Equal(t, 1, stats.UsersTotal)
	assert.Equal(t, 2, stats.MessagesSeen)
	assert.Equal(t, 2, stats.NotificationsSent)
}

func TestRunPass_NeverRedeliversBelowWatermark(t *testing.T) {
	// Arrange
	user := configuredUser("u1")
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{mailbox: map[string][]models.RawMessage{
		"u1": {genericMail(5), genericMail(6)},
	}}
	sink := &fakeSink{}
	publisher := &fakePublisher{}
	p := newTestPoller(repo, source, sink, publisher)

	// Act
	require.NoError(t, p.RunPass(context.Background()))
	source.mailbox["u1"] = []models.RawMessage{genericMail(6), genericMail(7)}
	require.NoError(t, p.RunPass(context.Background()))

	// Assert: uid 6 went out exactly once across both passes
	uids := map[uint32]int{}
	for _, e := range publisher.events {
		uids[e.MessageUID]++
	}
	assert.Equal(t, 1, uids[6])
	assert.Len(t, sink.sent, 3)
	assert.Equal(t, uint32(7), user.Watermark())
}

func TestRunPass_SkipsUnconfiguredUsers(t *testing.T) {
	// Arrange
	configured := configuredUser("u1")
	unconfigured := &models.UserMailbox{ID: "u2", ChatID: "chat-u2"}
	repo := &fakeRepo{users: []*models.UserMailbox{configured, unconfigured}}
	source := &fakeSource{mailbox: map[string][]models.RawMessage{
		"u1": {genericMail(1)},
	}}
	sink := &fakeSink{}
	p := newTestPoller(repo, source, sink, &fakePublisher{})

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert
	assert.Len(t, sink.sent, 1)
	assert.Equal(t, 1, p.LastPass().UsersSkipped)
	assert.Zero(t, source.calls["u2"])
	assert.Zero(t, repo.watermarkCalls["u2"])
}

func TestRunPass_OneUserFailureDoesNotTouchOthers(t *testing.T) {
	// Arrange
	healthy := configuredUser("u1")
	broken := configuredUser("u2")
	repo := &fakeRepo{users: []*models.UserMailbox{healthy, broken}}
	source := &fakeSource{
		mailbox: map[string][]models.RawMessage{
			"u1": {genericMail(3)},
			"u2": {genericMail(9)},
		},
		failures: map[string]int{"u2": 100},
	}
	sink := &fakeSink{}
	p := newTestPoller(repo, source, sink, &fakePublisher{})

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert
	assert.Len(t, sink.sent, 1)
	assert.Equal(t, uint32(3), healthy.Watermark())
	assert.Zero(t, broken.Watermark())
	assert.Zero(t, repo.watermarkCalls["u2"])
	assert.Equal(t, 1, p.LastPass().UsersFailed)
}

func TestRunPass_RetriesFetchBeforeGivingUp(t *testing.T) {
	// Arrange
	user := configuredUser("u1")
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{
		mailbox:  map[string][]models.RawMessage{"u1": {genericMail(4)}},
		failures: map[string]int{"u1": 2},
	}
	sink := &fakeSink{}
	p := newTestPoller(repo, source, sink, &fakePublisher{})

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert: two failures then success on the third attempt
	assert.Equal(t, 3, source.calls["u1"])
	assert.Len(t, sink.sent, 1)
	assert.Equal(t, uint32(4), user.Watermark())
}

func TestRunPass_ExhaustedRetriesCountAsFailure(t *testing.T) {
	// Arrange
	user := configuredUser("u1")
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{
		failures: map[string]int{"u1": 100},
	}
	p := newTestPoller(repo, source, &fakeSink{}, &fakePublisher{})

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert
	assert.Equal(t, 3, source.calls["u1"])
	assert.Equal(t, 1, p.LastPass().UsersFailed)
	assert.Zero(t, user.Watermark())
}

func TestRunPass_ZeroRetryConfigStillFetchesOnce(t *testing.T) {
	// Arrange
	cfg := pollerConfig()
	cfg.FetchRetries = 0
	user := configuredUser("u1")
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{mailbox: map[string][]models.RawMessage{
		"u1": {genericMail(7)},
	}}
	sink := &fakeSink{}
	parser := tracker.NewParser(&config.TrackerConfig{
		BaseURL: "https://jira.task-cloud.ru",
		Markers: []string{"jira.task-cloud.ru"},
	})
	p := NewPollOrchestrator(cfg, getLogger(), repo, source, parser,
		dispatch.NewDispatcher(), sink, &fakePublisher{}).(*pollerService)

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert: the mailbox is still read rather than silently treated as empty
	assert.Equal(t, 1, source.calls["u1"])
	assert.Len(t, sink.sent, 1)
	assert.Equal(t, uint32(7), user.Watermark())
}

func TestRunPass_DeliveryFailureStillAdvancesWatermark(t *testing.T) {
	// Arrange
	user := configuredUser("u1")
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{mailbox: map[string][]models.RawMessage{
		"u1": {genericMail(8)},
	}}
	sink := &fakeSink{sendErr: errors.New("chat blocked the bot")}
	publisher := &fakePublisher{}
	p := newTestPoller(repo, source, sink, publisher)

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert
	assert.Equal(t, uint32(8), user.Watermark())
	assert.Zero(t, p.LastPass().NotificationsSent)
	require.Len(t, publisher.events, 1)
	assert.False(t, publisher.events[0].Delivered)
}

func TestRunPass_EmptyMailboxStillAdvancesCheckTime(t *testing.T) {
	// Arrange
	user := configuredUser("u1")
	user.LastCheckTime = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{users: []*models.UserMailbox{user}}
	source := &fakeSource{}
	p := newTestPoller(repo, source, &fakeSink{}, &fakePublisher{})

	// Act
	require.NoError(t, p.RunPass(context.Background()))

	// Assert
	assert.Equal(t, 1, repo.watermarkCalls["u1"])
	assert.True(t, user.LastCheckTime.After(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)))
}
