//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/filevault-backend/internal/conf"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	dataProviderSet,
	repositoryProviderSet,
	useCaseProviderSet,
	httpServiceProviderSet,
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideDB,
	provideBlobStore,
	provideStatsCache,
	provideUploadLocker,
	provideHasher,
	provideWorkerPool,
	provideRegistry,
	provideMetrics,
)

// Repository providers
var repositoryProviderSet = wire.NewSet(
	provideFileRepo,
	provideStatsRepo,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	provideStatsUseCase,
	provideFileUseCase,
)

// HTTP service providers
var httpServiceProviderSet = wire.NewSet(
	provideFileService,
)

// Server providers
var serverProviderSet = wire.NewSet(
	provideHealthChecker,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
