package api

import (
	"io"
	"net/http"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// stripeWebhook verifies a Stripe notification and queues it for the webhook worker
func (h *Handler) stripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "Unreadable body", nil)
		return
	}

	cfg, err := h.deps.Config.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load payment config for webhook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	event, ok, err := gateway.ParseStripeWebhook(payload, c.GetHeader("Stripe-Signature"), cfg.StripeWebhookSecret)
	if err != nil {
		h.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		util.WebhookEventsTotal.WithLabelValues(models.GatewayStripe, "rejected").Inc()
		badRequest(c, "Invalid webhook", nil)
		return
	}
	if !ok {
		util.WebhookEventsTotal.WithLabelValues(models.GatewayStripe, "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	msg := &models.GatewayPaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeGatewayPaymentSucceeded,
			Timestamp: time.Now(),
		},
		Gateway:        event.Gateway,
		GatewayEventID: event.ID,
		ExternalID:     event.ExternalID,
	}
	if event.Outcome.Kind == gateway.OutcomeDeclined {
		msg.EventType = models.EventTypeGatewayPaymentFailed
		msg.Reason = event.Outcome.Reason
	}

	if err := h.deps.Events.PublishGatewayEvent(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to queue webhook event",
			zap.String("gateway_event_id", event.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	util.WebhookEventsTotal.WithLabelValues(models.GatewayStripe, "queued").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}
