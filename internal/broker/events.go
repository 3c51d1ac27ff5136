package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders  *Producer
	gateway *Producer
}

// NewEventPublisher creates a new event publisher. orders carries reconciled orders,
// gateway carries verified webhook notifications.
func NewEventPublisher(orders, gateway *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, gateway: gateway}
}

// PublishOrderReconciled publishes ORDER_PAID / ORDER_FAILED events keyed by external id
func (ep *EventPublisher) PublishOrderReconciled(ctx context.Context, event *models.OrderReconciledEvent) error {
	return ep.orders.PublishEvent(ctx, OrderKey(event.ExternalID), event)
}

// PublishGatewayEvent publishes a verified gateway notification for the webhook worker
func (ep *EventPublisher) PublishGatewayEvent(ctx context.Context, event *models.GatewayPaymentEvent) error {
	return ep.gateway.PublishEvent(ctx, OrderKey(event.ExternalID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onGatewayPayment func(context.Context, *models.GatewayPaymentEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnGatewayPayment registers a handler for gateway payment events
func (eh *EventHandler) OnGatewayPayment(handler func(context.Context, *models.GatewayPaymentEvent) error) {
	eh.onGatewayPayment = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to unmarshal base event: %w", err))
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeGatewayPaymentSucceeded, models.EventTypeGatewayPaymentFailed:
		if eh.onGatewayPayment != nil {
			var event models.GatewayPaymentEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to unmarshal gateway payment event: %w", err))
			}
			return eh.onGatewayPayment(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
