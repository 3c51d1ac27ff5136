package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/catalog"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CheckoutService drives checkouts
type CheckoutService interface {
	Checkout(ctx context.Context, intent models.CheckoutIntent) (*service.CheckoutResult, error)
	Confirm(ctx context.Context, externalID string, req gateway.ConfirmRequest) (*service.ConfirmResult, error)
	Resume(ctx context.Context, externalID string) (*service.ConfirmResult, error)
}

// PaymentConfigService reads and updates the payment configuration
type PaymentConfigService interface {
	Get(ctx context.Context) (*models.GatewayConfig, error)
	Update(ctx context.Context, upd service.GatewayConfigUpdate) (*models.GatewayConfig, error)
	Public(ctx context.Context) service.PublicGatewayConfig
}

// GeoChecker resolves whether a client IP is blocked
type GeoChecker interface {
	Check(ctx context.Context, ip string) (string, bool, error)
}

// GatewayEventPublisher hands verified webhook events to the worker
type GatewayEventPublisher interface {
	PublishGatewayEvent(ctx context.Context, event *models.GatewayPaymentEvent) error
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the handler dependencies
type Deps struct {
	Checkout    CheckoutService
	Pricing     *service.PriceCalculator
	Catalog     *catalog.Catalog
	Config      PaymentConfigService
	Geo         GeoChecker
	Events      GatewayEventPublisher
	Auth        *auth.Manager
	Secure      bool
	CORSOrigins []string
	Ready       map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	if len(h.deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.deps.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
			ExposeHeaders:    []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhooks/stripe", h.stripeWebhook)

		store := v1.Group("", h.geoBlock())
		store.GET("/catalog", h.getCatalog)
		store.GET("/payment/config", h.publicPaymentConfig)
		store.POST("/coupons/validate", h.validateCoupon)
		store.POST("/checkout", h.createCheckout)
		store.POST("/checkout/:externalId/confirm", h.confirmCheckout)
		store.GET("/checkout/:externalId/resume", h.resumeCheckout)

		v1.POST("/admin/login", h.adminLogin)
		admin := v1.Group("/admin", h.deps.Auth.Middleware())
		admin.GET("/payment-config", h.getPaymentConfig)
		admin.PUT("/payment-config", h.updatePaymentConfig)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings the database and Redis
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, dep := range h.deps.Ready {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not ready",
				"dependency": name,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// geoBlock refuses storefront requests from blocked countries. Lookup failures let the request through.
func (h *Handler) geoBlock() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.deps.Geo == nil {
			c.Next()
			return
		}

		country, blocked, err := h.deps.Geo.Check(c.Request.Context(), c.ClientIP())
		if err != nil {
			h.logger.Warn("Geo check failed", zap.Error(err))
		}
		if blocked {
			h.logger.Info("Request blocked", zap.String("country", country))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "blocked"})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
