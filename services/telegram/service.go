package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/interfaces"
	"github.com/taskcloud/mailbridge/internal/enum"
	er "github.com/taskcloud/mailbridge/internal/errors"
	"github.com/taskcloud/mailbridge/internal/logger"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/tracing"
)

type telegramService struct {
	cfg    *config.TelegramConfig
	log    logger.Logger
	client *http.Client
}

func NewTelegramService(cfg *config.TelegramConfig, log logger.Logger) interfaces.DeliverySink {
	return &telegramService{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *telegramService) Send(ctx context.Context, notification models.OutboundNotification) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TelegramService.Send")
	defer span.Finish()
	tracing.TagComponentRest(span)
	span.SetTag("recipient", notification.Recipient)
	span.SetTag("muted", notification.Muted)

	payload := sendMessageRequest{
		ChatID:              notification.Recipient,
		Text:                notification.Body,
		ParseMode:           parseModeOf(notification),
		DisableNotification: notification.Muted,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal sendMessage payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.cfg.APIBase, s.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build sendMessage request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "sendMessage request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to read sendMessage response")
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "unexpected sendMessage response: %s", string(respBody))
	}

	if !parsed.OK {
		err := errors.Wrapf(er.ErrDeliveryRejected, "status %d code %d: %s", resp.StatusCode, parsed.ErrorCode, parsed.Description)
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Debugf("delivered notification to chat %s", notification.Recipient)
	return nil
}

func parseModeOf(notification models.OutboundNotification) string {
	switch notification.RichFormat {
	case enum.FormatHTML:
		return "HTML"
	case enum.FormatMarkdown:
		return "MarkdownV2"
	default:
		return ""
	}
}
