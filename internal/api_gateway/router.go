package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/handler"
	"github.com/pawnmarket-contract-engine/internal/api_gateway/middleware"
	"github.com/pawnmarket-contract-engine/internal/config"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	cfg *config.Config,
	rdb redis.Cmdable,
	actionHandler *handler.ActionHandler,
	evidenceHandler *handler.EvidenceHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger, "/health"))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	v1.Use(middleware.BodyLimit(cfg.Server.MaxUploadBytes))
	v1.Use(middleware.Idempotency(logger, rdb, cfg.Redis.IdempotencyTTL))
	{
		// Quotes and request history per contract
		contracts := v1.Group("/contracts")
		{
			contracts.GET("/:id/quote", actionHandler.Quote)
			contracts.GET("/:id/action-requests", actionHandler.ListByContract)
		}

		// Action request lifecycle
		requests := v1.Group("/action-requests")
		{
			requests.POST("", actionHandler.Create)
			requests.GET("/:id", actionHandler.GetByID)
			requests.POST("/:id/pawner-slip", evidenceHandler.SubmitPawnerSlip)
			requests.POST("/:id/investor-slip", evidenceHandler.SubmitInvestorSlip)
			requests.POST("/:id/investor-decision", actionHandler.DecideInvestor)
			requests.POST("/:id/sign", actionHandler.Sign)
			requests.POST("/:id/confirm", actionHandler.Confirm)
			requests.POST("/:id/cancel", actionHandler.Cancel)
			requests.GET("/:id/verifications", actionHandler.ListVerifications)
			requests.GET("/:id/audit", actionHandler.ListAudit)
		}

		// Slip and signature images, fetched by the vision service
		v1.GET("/evidence/:id", evidenceHandler.Download)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
