//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MarketLabel/internal/usecase"
	"MarketLabel/pkg/config"
	applogger "MarketLabel/pkg/logger"
	"MarketLabel/pkg/server"
)

var labelingSet = wire.NewSet(
	// Infrastructure clients
	ProvideKafkaProducer,
	ProvideLogger,
	wire.Bind(new(applogger.Interface), new(*applogger.Logger)),
	ProvideClickHouseClient,
	ProvideRedisClient,
	ProvideCache,

	// Metrics
	ProvideMetrics,

	// Repositories
	ProvideCandleStore,
	ProvideLabelStore,
	ProvidePublisher,

	// Use cases
	ProvideLabeler,
)

// InitializeApp wires up the long-running service.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		labelingSet,
		ProvideLabelJobHandler,
		ProvideKafkaConsumer,
		ProvideRedisQueue,
		ProvideJobQueue,
		ProvideRateLimiter,
		ProvideCandlesUseCase,
		ProvideLabelsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeLabeler wires the labeling use case alone, for one-shot tools.
func InitializeLabeler(cfg *config.Config) (*usecase.Labeler, func(), error) {
	wire.Build(labelingSet)
	return nil, nil, nil
}
