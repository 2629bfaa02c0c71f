package services

import (
	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/interfaces"
	"github.com/taskcloud/mailbridge/internal/logger"
	"github.com/taskcloud/mailbridge/internal/repository"
	"github.com/taskcloud/mailbridge/services/dispatch"
	"github.com/taskcloud/mailbridge/services/events"
	"github.com/taskcloud/mailbridge/services/imap"
	"github.com/taskcloud/mailbridge/services/poller"
	"github.com/taskcloud/mailbridge/services/telegram"
	"github.com/taskcloud/mailbridge/services/tracker"
)

type Services struct {
	EventsPublisher  interfaces.EventsPublisher
	MailSource       interfaces.MailSource
	DeliverySink     interfaces.DeliverySink
	PollOrchestrator interfaces.PollOrchestrator
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	var publisher interfaces.EventsPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}

		var err error
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("RabbitMQ URL not configured, dispatch events will not be published")
		publisher = events.NoopPublisher{}
	}

	mailSource := imap.NewMailSource(cfg.PollerConfig, log)
	deliverySink := telegram.NewTelegramService(cfg.TelegramConfig, log)
	parser := tracker.NewParser(cfg.TrackerConfig)
	dispatcher := dispatch.NewDispatcher()

	services := Services{
		EventsPublisher: publisher,
		MailSource:      mailSource,
		DeliverySink:    deliverySink,
		PollOrchestrator: poller.NewPollOrchestrator(
			cfg.PollerConfig,
			log,
			repos.UserMailboxRepository,
			mailSource,
			parser,
			dispatcher,
			deliverySink,
			publisher,
		),
	}

	return &services, nil
}
