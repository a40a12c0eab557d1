package audit

import (
	"context"

	"backoffice-svc/models"
)

type publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// KafkaSink streams entries to a topic, keyed by resource type.
type KafkaSink struct {
	publisher publisher
	topic     string
}

func NewKafkaSink(p publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: p, topic: topic}
}

func (s *KafkaSink) Append(ctx context.Context, entries ...models.AuditLogEntry) error {
	for _, e := range entries {
		if err := s.publisher.Publish(ctx, s.topic, string(e.ResourceType), e); err != nil {
			return err
		}
	}
	return nil
}
