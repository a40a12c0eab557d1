package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice-svc/middleware"
	"backoffice-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	EventOrderCompleted = "order_completed"
	EventOrderReversed  = "order_reversed"
)

func InitProducer(brokers []string, logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", brokers))
	return producer, nil
}

// Publisher sends JSON events with the trace context in the message headers.
type Publisher struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, event any) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(eventJSON),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	carrier := make(saramaHeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = []sarama.RecordHeader(carrier)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// OrderEvent is the wire shape on the order topic.
type OrderEvent struct {
	EventType string `json:"event_type"`
	models.OrderCompletion
}

// CompletionPublisher hands order completions to the order topic; the consumer
// applies them to the counters.
type CompletionPublisher struct {
	publisher *Publisher
	topic     string
}

func NewCompletionPublisher(p *Publisher, topic string) *CompletionPublisher {
	return &CompletionPublisher{publisher: p, topic: topic}
}

func (c *CompletionPublisher) OrderCompleted(ctx context.Context, ev models.OrderCompletion) error {
	return c.publisher.Publish(ctx, c.topic, ev.CustomerID, OrderEvent{EventType: EventOrderCompleted, OrderCompletion: ev})
}

// OrderReversed shares the completion's key so both land on one partition in order.
func (c *CompletionPublisher) OrderReversed(ctx context.Context, ev models.OrderCompletion) error {
	return c.publisher.Publish(ctx, c.topic, ev.CustomerID, OrderEvent{EventType: EventOrderReversed, OrderCompletion: ev})
}

type saramaHeaderCarrier []sarama.RecordHeader

func (c saramaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *saramaHeaderCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c saramaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
