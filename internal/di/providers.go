package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MarketLabel/internal/domain/repository"
	"MarketLabel/internal/handler/api"
	internalrepo "MarketLabel/internal/repository"
	"MarketLabel/internal/service/ratelimit"
	"MarketLabel/internal/usecase"
	"MarketLabel/pkg/cache"
	pkgch "MarketLabel/pkg/clickhouse"
	"MarketLabel/pkg/config"
	xhttp "MarketLabel/pkg/http"
	pkgkafka "MarketLabel/pkg/kafka"
	applogger "MarketLabel/pkg/logger"
	"MarketLabel/pkg/metrics"
	"MarketLabel/pkg/queue"
	"MarketLabel/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.AutoCreate),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the app logger. Error logs are digested to the logs
// topic when one is configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AttachDigest(&applogger.DigestConfig{
			FlushInterval: 30 * time.Second,
			Topic:         cfg.Kafka.LogsTopic,
			Publisher:     producer,
		})
	}
	return l, l.DetachDigest, nil
}

// ProvideClickHouseClient connects and makes sure the schema exists.
func ProvideClickHouseClient(cfg *config.Config, l applogger.Interface) (*pkgch.Client, func(), error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))

	return client, func() { _ = client.Close() }, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideCandleStore(ch *pkgch.Client, cfg *config.Config, l applogger.Interface) repository.CandleStore {
	return internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database, l)
}

func ProvideLabelStore(ch *pkgch.Client, cfg *config.Config, l applogger.Interface) repository.LabelStore {
	return internalrepo.NewCHLabelStore(ch, cfg.ClickHouse.Database, l)
}

// ProvidePublisher publishes run events to the events topic, or drops them without Kafka.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideRedisClient connects to Redis, or returns nil when Redis is disabled.
// The cache and the jobs queue share the client.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCache returns an in-process cache, layered over Redis when enabled.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, func(), error) {
	if client == nil {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(256))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc := cache.NewRedisCache(client, cfg.Redis.Prefix)
	lc := cache.NewLayeredCache(rc, 64, time.Minute)
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideRedisQueue builds the Redis jobs queue, or nil unless queue.enabled.
func ProvideRedisQueue(cfg *config.Config, client *redis.Client, l applogger.Interface) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		Permanent: func(err error) bool {
			return errors.Is(err, pkgkafka.ErrPermanent)
		},
	}, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvideJobQueue picks the transport POST /api/labels/jobs writes to.
// Kafka wins when both are configured. Nil disables the endpoint.
func ProvideJobQueue(cfg *config.Config, producer *pkgkafka.Producer, rq *queue.RedisQueue) repository.JobQueue {
	switch {
	case producer != nil:
		return internalrepo.NewKafkaJobQueue(producer, cfg.Kafka.JobsTopic)
	case rq != nil:
		return internalrepo.NewRedisJobQueue(rq)
	default:
		return nil
	}
}

func ProvideLabeler(
	cfg *config.Config,
	candles repository.CandleStore,
	labels repository.LabelStore,
	pub repository.Publisher,
	c cache.Service,
	m repository.Metrics,
	l applogger.Interface,
) (*usecase.Labeler, error) {
	labeler, err := usecase.NewLabeler(cfg.Labeling, candles, labels, pub, c, m, l)
	if err != nil {
		return nil, fmt.Errorf("labeler: %w", err)
	}
	return labeler, nil
}

func ProvideLabelJobHandler(cfg *config.Config, labeler *usecase.Labeler, m repository.Metrics, l applogger.Interface) *usecase.LabelJobHandler {
	return usecase.NewLabelJobHandler(cfg.Kafka.JobsTopic, labeler, m, l)
}

// ProvideKafkaConsumer creates the jobs consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l applogger.Interface) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Log: l})
	return consumer, nil
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, 10*time.Minute)
}

func ProvideCandlesUseCase(store repository.CandleStore, cfg *config.Config) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store, cfg.Labeling.Lookback)
}

func ProvideLabelsHandler(
	l applogger.Interface,
	labeler *usecase.Labeler,
	candles *usecase.CandlesUseCase,
	store repository.CandleStore,
	jobs repository.JobQueue,
) *api.LabelsEchoHandler {
	h := api.NewLabelsEchoHandler(l, labeler, candles, store)
	if jobs != nil {
		h.SetJobQueue(jobs)
	}
	return h
}

func ProvideHTTPServer(cfg *config.Config, h *api.LabelsEchoHandler, limiter *ratelimit.Limiter, l applogger.Interface) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithRateLimiter(limiter),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	rq *queue.RedisQueue,
	jobs *usecase.LabelJobHandler,
	l applogger.Interface,
) *server.App {
	return server.New(cfg, httpServer, consumer, rq, jobs, l)
}
