package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/taskcloud/mailbridge/interfaces"
	"github.com/taskcloud/mailbridge/internal/enum"
	er "github.com/taskcloud/mailbridge/internal/errors"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/tracing"
)

type upsertUserRequest struct {
	ChatID            string   `json:"chatId" binding:"required"`
	MailboxAddress    string   `json:"mailboxAddress"`
	AuthSecret        string   `json:"authSecret"`
	AuthMethod        string   `json:"authMethod"`
	ImapServer        string   `json:"imapServer"`
	ImapPort          int      `json:"imapPort"`
	ImapTLS           *bool    `json:"imapTls"`
	NotifyGenericMail *bool    `json:"notifyGenericMail"`
	QuietHoursEnabled *bool    `json:"quietHoursEnabled"`
	EnabledEvents     []string `json:"enabledEvents"`
}

type updatePrefsRequest struct {
	NotifyGenericMail bool     `json:"notifyGenericMail"`
	QuietHoursEnabled bool     `json:"quietHoursEnabled"`
	EnabledEvents     []string `json:"enabledEvents"`
}

// UpsertUser creates or updates a user's mailbox configuration
func UpsertUser(repo interfaces.UserMailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "UpsertUser")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req upsertUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, bad := validEvents(req.EnabledEvents)
		if bad != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type: " + bad})
			return
		}

		user := &models.UserMailbox{
			ChatID:            req.ChatID,
			MailboxAddress:    req.MailboxAddress,
			AuthSecret:        req.AuthSecret,
			AuthMethod:        enum.AuthMethod(req.AuthMethod),
			ImapServer:        req.ImapServer,
			ImapPort:          req.ImapPort,
			ImapTLS:           boolOr(req.ImapTLS, true),
			NotifyGenericMail: boolOr(req.NotifyGenericMail, true),
			QuietHoursEnabled: boolOr(req.QuietHoursEnabled, true),
			EnabledEvents:     pq.StringArray(events),
		}
		if user.AuthMethod == "" {
			user.AuthMethod = enum.AuthPassword
		}
		if user.ImapPort == 0 {
			user.ImapPort = 993
		}

		saved, err := repo.Upsert(ctx, user)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, saved)
	}
}

// GetUser returns a user's configuration by chat id
func GetUser(repo interfaces.UserMailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "GetUser")
		defer span.Finish()
		tracing.TagComponentRest(span)

		user, err := repo.GetByChatID(ctx, c.Param("chatId"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// UpdateUserPrefs updates only a user's notification preferences
func UpdateUserPrefs(repo interfaces.UserMailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "UpdateUserPrefs")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req updatePrefsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, bad := validEvents(req.EnabledEvents)
		if bad != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type: " + bad})
			return
		}

		chatID := c.Param("chatId")
		if err := repo.UpdatePrefs(ctx, chatID, req.NotifyGenericMail, req.QuietHoursEnabled, events); err != nil {
			if errors.Is(err, er.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "preferences updated", "chatId": chatID})
	}
}

// DeleteUser removes a user's configuration
func DeleteUser(repo interfaces.UserMailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "DeleteUser")
		defer span.Finish()
		tracing.TagComponentRest(span)

		chatID := c.Param("chatId")
		if err := repo.Delete(ctx, chatID); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "user removed", "chatId": chatID})
	}
}

// TriggerPass kicks off an on-demand polling pass
func TriggerPass(orchestrator interfaces.PollOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "TriggerPass")
		defer span.Finish()
		tracing.TagComponentRest(span)

		if err := orchestrator.RunPass(ctx); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, orchestrator.LastPass())
	}
}

func validEvents(eventNames []string) ([]string, string) {
	events := make([]string, 0, len(eventNames))
	for _, name := range eventNames {
		t, ok := enum.DecodeEventType(name)
		if !ok {
			return nil, name
		}
		events = append(events, t.String())
	}
	return events, ""
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
