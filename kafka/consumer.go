package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice-svc/middleware"
	"backoffice-svc/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CompletionApplier applies order completions and reversals to the
// denormalized counters.
type CompletionApplier interface {
	ApplyOrderCompletion(ctx context.Context, ev models.OrderCompletion) error
	ReverseOrderCompletion(ctx context.Context, ev models.OrderCompletion) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

func InitConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *kafkago.Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	logger.Info("Kafka consumer initialized", zap.String("topic", topic), zap.String("group_id", groupID))
	return r
}

// Consumer applies order_completed and order_reversed events. Offsets are
// committed per message after handling; both events are idempotent per order
// so redelivery is safe.
type Consumer struct {
	reader     messageReader
	applier    CompletionApplier
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewConsumer(reader messageReader, applier CompletionApplier, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		applier:    applier,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Kafka consumer error", zap.Error(err))
			continue
		}
		if err := c.handleMessageWithRetry(ctx, msg); err != nil {
			c.logger.Error("Failed to handle message after retries",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("Failed to commit offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handleMessageWithRetry(ctx context.Context, msg kafkago.Message) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.handleMessage(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, errPermanent) {
			return err
		}
		lastErr = err
		if attempt < c.maxRetries {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

var errPermanent = errors.New("permanent message failure")

func (c *Consumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kafkaHeaderCarrier(msg.Headers))
	ctx, span := otel.Tracer("backoffice-service").Start(ctx, "ProcessOrderEvent")
	defer span.End()

	var event OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to unmarshal event: %w", errPermanent, err)
	}
	span.SetAttributes(attribute.String("event.type", event.EventType))

	var apply func(ctx context.Context, ev models.OrderCompletion) error
	switch event.EventType {
	case EventOrderCompleted:
		apply = c.applier.ApplyOrderCompletion
	case EventOrderReversed:
		apply = c.applier.ReverseOrderCompletion
	default:
		c.logger.Debug("Ignoring event", zap.String("event_type", event.EventType))
		return nil
	}
	if event.OrderID == "" || event.CustomerID == "" {
		return fmt.Errorf("%w: %s without order_id or customer_id", errPermanent, event.EventType)
	}

	if err := apply(ctx, event.OrderCompletion); err != nil {
		span.RecordError(err)
		if errors.Is(err, models.ErrNotFound) || models.IsInvariantViolation(err) {
			return fmt.Errorf("%w: %w", errPermanent, err)
		}
		return err
	}

	c.logger.Info("Order event applied",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID),
		zap.String("customer_id", event.CustomerID),
	)
	return nil
}

type kafkaHeaderCarrier []kafkago.Header

func (c kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c kafkaHeaderCarrier) Set(string, string) {}

func (c kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}
