package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"freelance/internal/handler"
	"freelance/internal/middleware"
	"freelance/internal/mpesa"
	"freelance/internal/observability"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	JobHandler      *handler.JobHandler
	PaymentHandler  *handler.PaymentHandler
	CallbackHandler *handler.CallbackHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
	Logger          *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		observability.WritePrometheus(c.Writer)
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	if deps.RedisClient != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	}
	{
		// Job routes.
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", deps.JobHandler.CreateJob)
			jobs.GET("/:id", deps.JobHandler.GetJob)
			jobs.POST("/:id/payments", deps.PaymentHandler.InitiatePayment)
			jobs.GET("/:id/payments", deps.PaymentHandler.ListJobPayments)
			jobs.POST("/:id/dispatches", deps.PaymentHandler.DispatchPayment)
		}

		// Payment routes.
		payments := v1.Group("/payments")
		{
			payments.GET("/:id", deps.PaymentHandler.GetPayment)
		}
	}

	// M-Pesa callbacks. Re-deliveries are deduplicated by the payment record,
	// not by Idempotency-Key.
	router.POST(mpesa.JobPaymentCallbackPath, deps.CallbackHandler.JobPayment)
	router.POST(mpesa.DispatchResultCallbackPath, deps.CallbackHandler.DispatchResult)
	router.POST(mpesa.DispatchTimeoutCallbackPath, deps.CallbackHandler.DispatchQueueTimeout)

	return router
}
