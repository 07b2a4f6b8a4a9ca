//go:build wireinject
// +build wireinject

package di

import (
	"OptSignal/pkg/config"
	"OptSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCache,

		// Repositories and vendors
		ProvideBarStore,
		ProvideBarStorage,
		ProvideBarPublisher,
		ProvideResultSink,
		ProvideEventPublisher,
		ProvideFinnhubREST,
		ProvideFinnhubStream,
		ProvidePredictor,

		// Use cases
		ProvideStrategyUseCase,
		ProvideReportUseCase,
		ProvideBarsUseCase,
		ProvideJobQueue,
		ProvideBacktestJobs,
		ProvideBarProcessor,
		ProvideTickCollector,
		ProvideKafkaConsumer,
		ProvideKafkaBarsHandler,

		// Transport
		ProvideStrategyHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
