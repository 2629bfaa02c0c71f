package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/taskcloud/mailbridge/api/handlers"
	"github.com/taskcloud/mailbridge/api/middleware"
	"github.com/taskcloud/mailbridge/internal/repository"
	"github.com/taskcloud/mailbridge/internal/tracing"
	"github.com/taskcloud/mailbridge/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.PollOrchestrator))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILBRIDGE-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	{
		// User mailbox endpoints
		users := api.Group("/users")
		{
			users.POST("", handlers.UpsertUser(repos.UserMailboxRepository))
			users.GET("/:chatId", handlers.GetUser(repos.UserMailboxRepository))
			users.PUT("/:chatId/prefs", handlers.UpdateUserPrefs(repos.UserMailboxRepository))
			users.DELETE("/:chatId", handlers.DeleteUser(repos.UserMailboxRepository))
		}

		// On-demand polling pass
		api.POST("/poll", handlers.TriggerPass(s.PollOrchestrator))
	}
}
