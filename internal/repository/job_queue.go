package repository

import (
	"context"

	"MarketLabel/internal/domain/models"
	"MarketLabel/internal/domain/repository"
	pkgkafka "MarketLabel/pkg/kafka"
	"MarketLabel/pkg/queue"
)

// KafkaJobQueue publishes label jobs to the jobs topic, keyed by symbol so
// jobs for one symbol stay ordered.
type KafkaJobQueue struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaJobQueue(producer *pkgkafka.Producer, topic string) *KafkaJobQueue {
	return &KafkaJobQueue{producer: producer, topic: topic}
}

func (q *KafkaJobQueue) Enqueue(ctx context.Context, job models.LabelJob) error {
	return q.producer.Publish(ctx, q.topic, []byte(job.Symbol), job)
}

// RedisJobQueue pushes label jobs onto the Redis list queue.
type RedisJobQueue struct {
	q queue.Enqueuer
}

func NewRedisJobQueue(q queue.Enqueuer) *RedisJobQueue {
	return &RedisJobQueue{q: q}
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, job models.LabelJob) error {
	return q.q.Enqueue(ctx, models.LabelJobType, job)
}

var (
	_ repository.JobQueue = (*KafkaJobQueue)(nil)
	_ repository.JobQueue = (*RedisJobQueue)(nil)
)
