package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketLabel/pkg/config"
	xhttp "MarketLabel/pkg/http"
	pkgkafka "MarketLabel/pkg/kafka"
	applogger "MarketLabel/pkg/logger"
	"MarketLabel/pkg/queue"
)

// JobHandler consumes label jobs from either transport.
type JobHandler interface {
	pkgkafka.MessageHandler
	Type() string
}

// App runs the HTTP API and whichever jobs transport is configured.
type App struct {
	cfg        *config.Config
	log        applogger.Interface
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	queue      *queue.RedisQueue
	jobs       JobHandler
}

// New creates a new App. consumer and q may be nil.
func New(
	cfg *config.Config,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	jobs JobHandler,
	log applogger.Interface,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		consumer:   consumer,
		queue:      q,
		jobs:       jobs,
	}
}

// Run starts everything and blocks until ctx is done or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.consumer != nil && a.jobs != nil {
		a.consumer.RegisterHandler(a.jobs)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.jobs.Topic()))
	}

	if a.queue != nil && a.jobs != nil {
		a.queue.RegisterJob(a.jobs)
		if err := a.queue.Start(); err != nil {
			a.log.Error("redis queue start error", applogger.Error(err))
			return err
		}
		a.log.Info("label jobs bound to redis queue", applogger.String("type", a.jobs.Type()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then waits for in-flight work.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("redis queue stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.log.Info("shutdown complete")
	return firstErr
}
