//go:build wireinject
// +build wireinject

package di

import (
	"ClientPulse/pkg/config"
	"ClientPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,

		// Repositories (with business logic)
		ProvideHistoryStore,
		ProvideTradeSink,
		ProvideTradePublisher,
		ProvideAlertPublisher,
		ProvideTradeStream,
		ProvideCache,

		// Domain services
		ProvideEstimator,

		// Use cases
		ProvideSwitchUsecase,
		ProvideTradeIngest,
		ProvideTradeCollector,
		ProvideKafkaTradesHandler,
		ProvideAnalyzeJob,

		// Background workers
		ProvideQueue,
		ProvideKafkaConsumer,

		// HTTP handlers
		ProvideClientsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
