//go:build wireinject
// +build wireinject

package di

import (
	"FinSense/pkg/config"
	"FinSense/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideBarCache,
		ProvideLocker,
		ProvideClickHouseClient,
		ProvideBadgerDB,
		ProvidePostgresClient,

		// Repositories
		ProvideEventPublisher,
		ProvidePredictionStore,
		ProvideModelRegistry,
		ProvideSourceBarFeed,
		ProvideBarFeed,

		// Services
		ProvideEngineer,
		ProvideTrainer,
		ProvideModelManager,
		ProvideTracker,
		ProvideLearner,
		ProvideSentimentEngine,

		// Use cases
		ProvideAnalyzeUseCase,
		ProvideBarsUseCase,
		ProvideTaskRunner,
		ProvidePriceBook,
		ProvideQuoteProcessor,
		ProvideQuotePipeline,
		ProvideQuoteCollector,
		ProvideKafkaConsumer,
		ProvideVerificationSweep,
		ProvideJobQueue,

		// HTTP
		ProvideHealthChecks,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeToolkit wires the stores and services used by finsensectl.
func InitializeToolkit(cfg *config.Config) (*Toolkit, func(), error) {
	wire.Build(
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		ProvideRedisCache,
		ProvideLocker,
		ProvideClickHouseClient,
		ProvideBadgerDB,
		ProvidePostgresClient,

		ProvideEventPublisher,
		ProvidePredictionStore,
		ProvideModelRegistry,
		ProvideSourceBarFeed,

		ProvideEngineer,
		ProvideTrainer,
		ProvideModelManager,
		ProvideTracker,
		ProvideLearner,

		ProvideJobPublisher,
		ProvideToolkit,
	)
	return nil, nil, nil
}
