package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api/handlers"
	"github.com/jafarshop/orderengine/internal/api/middleware"
	"github.com/jafarshop/orderengine/internal/cache"
	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/service"
)

// Dependencies are what the router needs beyond configuration. Cache may be nil.
type Dependencies struct {
	Services *service.Services
	Staff    middleware.StaffLookup
	Cache    cache.Cache
	Logger   *zap.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	svc := deps.Services
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(middleware.PrometheusMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.RequestTimeout(cfg.API.RequestTimeout))
	{
		// authenticated by signature, not by credentials
		v1.POST("/payments/webhook", handlers.HandlePaymentWebhook(svc.Payment, logger))

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(cfg.API.JWTSecret, deps.Staff, logger))
		{
			checkout := authed.Group("")
			checkout.Use(middleware.RequireRole(domain.RoleBuyer))
			checkout.Use(middleware.IdempotencyMiddleware(deps.Cache, cfg.API.IdempotencyTTL, logger))
			checkout.POST("/checkout", handlers.HandleCheckout(svc.Checkout, svc.Orders, logger))

			authed.GET("/orders", handlers.HandleListOrders(svc.Orders, logger))
			authed.GET("/orders/:id", handlers.HandleGetOrder(svc.Orders, logger))
			authed.GET("/orders/:id/tracking", handlers.HandleTrackingHistory(svc.Tracking, logger))
			authed.POST("/orders/:id/tracking", handlers.HandleAppendTracking(svc.Tracking, logger))
			authed.POST("/orders/:id/payment/confirm", handlers.HandleConfirmPayment(svc.Payment, logger))
			authed.POST("/orders/:id/cancel", handlers.HandleCancelOrder(svc.Cancellation, logger))
		}

		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(cfg.API.JWTSecret, deps.Staff, logger))
		adminRoutes.Use(middleware.RequireRole(domain.RoleAdmin))
		{
			adminRoutes.GET("/orders", handlers.HandleListOrders(svc.Orders, logger))
			adminRoutes.POST("/orders/:id/refund", handlers.HandleRefundOrder(svc.Tracking, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}
