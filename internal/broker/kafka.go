package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OrderKey is the partition key of every event about one checkout. Events of one order
// land on the same partition and are consumed in publish order.
func OrderKey(externalID string) string {
	return "order-" + externalID
}

// Producer writes JSON checkout events to a single topic
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer that hashes message keys onto partitions
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}}
}

// PublishEvent marshals event and writes it under key
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to write %s event: %w", p.writer.Topic, err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key))
	return nil
}

// Close flushes pending writes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MessageHandler processes one message. Errors wrapped with backoff.Permanent are not redelivered.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consumer reads a topic as part of a consumer group. A failing message is redelivered in
// place before the consumer moves past its offset.
type Consumer struct {
	reader          *kafka.Reader
	redeliveries    uint64
	redeliveryDelay time.Duration
	logger          *zap.Logger
}

// NewConsumer creates a group consumer starting at the oldest uncommitted offset
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{
		reader:          reader,
		redeliveries:    5,
		redeliveryDelay: 500 * time.Millisecond,
		logger:          util.GetLogger().With(zap.String("topic", topic)),
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// StartConsuming fetches messages until ctx is cancelled. Offsets are committed only after the
// handler succeeded or the redelivery budget is spent; a cancelled delivery is left uncommitted
// so the group picks it up again after a restart.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			c.logger.Warn("Error fetching message", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := c.deliver(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Message dropped after redeliveries",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("Error committing message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// deliver runs handler until it succeeds, returns a permanent error, the redelivery budget
// is spent or ctx ends
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.redeliveryDelay
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := handler(ctx, msg)
		if err != nil {
			c.logger.Warn("Message handler failed",
				zap.Int64("offset", msg.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.redeliveries), ctx))
}
