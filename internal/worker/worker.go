package worker

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const webhookDedupeTTL = 24 * time.Hour

// GatewayEventApplier reconciles orders from gateway notifications
type GatewayEventApplier interface {
	ApplyGatewayEvent(ctx context.Context, event gateway.WebhookEvent) error
}

// EventDeduper claims event ids so concurrent consumers process each event once
type EventDeduper interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// EventLedger durably records processed events
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// WebhookWorker applies verified gateway notifications from Kafka
type WebhookWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orchestrator GatewayEventApplier
	deduper      EventDeduper
	ledger       EventLedger
	maxRetries   uint64
	retryDelay   time.Duration
	logger       *zap.Logger
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(
	consumer *broker.Consumer,
	orchestrator GatewayEventApplier,
	deduper EventDeduper,
	ledger EventLedger,
) *WebhookWorker {
	w := &WebhookWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		orchestrator: orchestrator,
		deduper:      deduper,
		ledger:       ledger,
		maxRetries:   3,
		retryDelay:   500 * time.Millisecond,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnGatewayPayment(w.HandleGatewayPayment)
	return w
}

// Start starts the worker
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting webhook worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *WebhookWorker) Stop() error {
	w.logger.Info("Stopping webhook worker")
	return w.consumer.Close()
}

// HandleGatewayPayment applies one gateway event at most once
func (w *WebhookWorker) HandleGatewayPayment(ctx context.Context, event *models.GatewayPaymentEvent) error {
	key := fmt.Sprintf("webhook:%s:%s", event.Gateway, event.GatewayEventID)
	logger := w.logger.With(
		zap.String("gateway", event.Gateway),
		zap.String("gateway_event_id", event.GatewayEventID),
		zap.String("external_id", event.ExternalID))

	if w.ledger != nil {
		done, err := w.ledger.IsEventProcessed(ctx, key)
		if err != nil {
			logger.Warn("Event ledger unavailable", zap.Error(err))
		} else if done {
			util.WebhookEventsTotal.WithLabelValues(event.Gateway, "duplicate").Inc()
			return nil
		}
	}

	if w.deduper != nil {
		claimed, err := w.deduper.ClaimIdempotencyKey(ctx, key, webhookDedupeTTL)
		if err != nil {
			logger.Warn("Webhook dedupe unavailable, applying anyway", zap.Error(err))
		} else if !claimed {
			logger.Info("Duplicate webhook event skipped")
			util.WebhookEventsTotal.WithLabelValues(event.Gateway, "duplicate").Inc()
			return nil
		}
	}

	apply := func() error {
		return w.orchestrator.ApplyGatewayEvent(ctx, toWebhookEvent(event))
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(w.retryDelay), w.maxRetries), ctx)
	if err := backoff.Retry(apply, b); err != nil {
		logger.Error("Failed to apply webhook event", zap.Error(err))
		util.WebhookEventsTotal.WithLabelValues(event.Gateway, "failed").Inc()
		if w.deduper != nil {
			if rerr := w.deduper.ReleaseIdempotencyKey(ctx, key); rerr != nil {
				logger.Warn("Failed to release webhook claim", zap.Error(rerr))
			}
		}
		return err
	}

	if w.ledger != nil {
		if err := w.ledger.MarkEventProcessed(ctx, key, event.EventType); err != nil {
			logger.Warn("Failed to record processed event", zap.Error(err))
		}
	}
	return nil
}

func toWebhookEvent(event *models.GatewayPaymentEvent) gateway.WebhookEvent {
	outcome := gateway.Confirmed()
	if event.EventType == models.EventTypeGatewayPaymentFailed {
		outcome = gateway.Declined(event.Reason)
	}
	return gateway.WebhookEvent{
		ID:         event.GatewayEventID,
		Gateway:    event.Gateway,
		ExternalID: event.ExternalID,
		Outcome:    outcome,
	}
}

// StaleOrderSweeper resolves abandoned pending orders
type StaleOrderSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepWorker periodically asks the gateways about stale pending orders
type SweepWorker struct {
	sweeper   StaleOrderSweeper
	interval  time.Duration
	olderThan time.Duration
	logger    *zap.Logger
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sweeper StaleOrderSweeper, interval, olderThan time.Duration) *SweepWorker {
	return &SweepWorker{
		sweeper:   sweeper,
		interval:  interval,
		olderThan: olderThan,
		logger:    util.GetLogger(),
	}
}

// Start runs a sweep every interval until ctx is cancelled
func (sw *SweepWorker) Start(ctx context.Context) error {
	sw.logger.Info("Starting sweep worker",
		zap.Duration("interval", sw.interval),
		zap.Duration("older_than", sw.olderThan))

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			resolved, err := sw.sweeper.SweepStale(ctx, sw.olderThan)
			if err != nil {
				sw.logger.Error("Stale order sweep failed", zap.Error(err))
				continue
			}
			if resolved > 0 {
				sw.logger.Info("Stale orders resolved", zap.Int("count", resolved))
			}
		}
	}
}
