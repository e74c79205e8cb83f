package repository

import (
	"context"

	"MarketLabel/internal/domain/models"
	"MarketLabel/internal/domain/repository"
	pkgkafka "MarketLabel/pkg/kafka"
)

// KafkaPublisher publishes label run events keyed by symbol.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, run *models.LabelRun) error {
	return p.producer.Publish(ctx, p.topic, []byte(run.Symbol), models.NewLabelRunEvent(run))
}

// Close is a no-op; the producer belongs to whoever built it.
func (p *KafkaPublisher) Close() error { return nil }

// NopPublisher drops events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRun(context.Context, *models.LabelRun) error { return nil }

func (NopPublisher) Close() error { return nil }

var (
	_ repository.Publisher = (*KafkaPublisher)(nil)
	_ repository.Publisher = NopPublisher{}
)
