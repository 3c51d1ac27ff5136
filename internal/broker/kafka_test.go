package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestConsumer() *Consumer {
	return &Consumer{
		redeliveries:    2,
		redeliveryDelay: time.Millisecond,
		logger:          zap.NewNop(),
	}
}

func TestDeliverRedeliversUntilHandled(t *testing.T) {
	c := newTestConsumer()
	calls := 0
	err := c.deliver(context.Background(), kafka.Message{Offset: 7}, func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("database unavailable")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDeliverGivesUpAfterBudget(t *testing.T) {
	c := newTestConsumer()
	calls := 0
	err := c.deliver(context.Background(), kafka.Message{}, func(context.Context, kafka.Message) error {
		calls++
		return errors.New("database unavailable")
	})

	assert.EqualError(t, err, "database unavailable")
	assert.Equal(t, 3, calls)
}

func TestDeliverStopsOnPermanentError(t *testing.T) {
	c := newTestConsumer()
	calls := 0
	err := c.deliver(context.Background(), kafka.Message{}, func(context.Context, kafka.Message) error {
		calls++
		return backoff.Permanent(errors.New("bad payload"))
	})

	assert.EqualError(t, err, "bad payload")
	assert.Equal(t, 1, calls)
}

func TestDeliverStopsWhenCancelled(t *testing.T) {
	c := newTestConsumer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := c.deliver(ctx, kafka.Message{}, func(context.Context, kafka.Message) error {
		calls++
		return errors.New("database unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOrderKey(t *testing.T) {
	assert.Equal(t, "order-pi_123", OrderKey("pi_123"))
}
