package injector

import (
	"time"

	"github.com/lk2023060901/filevault-backend/internal/conf"
	"github.com/lk2023060901/filevault-backend/internal/data"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	filedata "github.com/lk2023060901/filevault-backend/internal/file/data"
	"github.com/lk2023060901/filevault-backend/internal/file/hasher"
	"github.com/lk2023060901/filevault-backend/internal/file/service"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/metrics"
	"github.com/lk2023060901/filevault-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/filevault-backend/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const poolShutdownTimeout = 10 * time.Second

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideDB(d *data.Data) *database.DB {
	return d.DB
}

func provideBlobStore(d *data.Data) biz.BlobStore {
	return d.Blobs
}

func provideStatsCache(d *data.Data, config *conf.Config) biz.StatsCache {
	return d.StatsCache(config)
}

func provideUploadLocker(d *data.Data, config *conf.Config) biz.UploadLocker {
	return d.UploadLocker(config)
}

func provideHasher(config *conf.Config) (*hasher.Hasher, error) {
	return hasher.New(config.Hash.Algorithm, config.Hash.ChunkSize, config.Storage.SpoolDir)
}

func provideWorkerPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(config.Upload.WorkerPool(), log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Shutdown(poolShutdownTimeout)
	}
	return pool, cleanup, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(config *conf.Config, reg *prometheus.Registry) *metrics.Metrics {
	if !config.Server.MetricsEnabled {
		return nil
	}
	return metrics.New(reg)
}

// Repository providers

func provideFileRepo(db *database.DB) biz.FileRepo {
	return filedata.NewFileRepo(db)
}

func provideStatsRepo(db *database.DB) biz.StatsRepo {
	return filedata.NewStatsRepo(db)
}

// Use case providers

func provideStatsUseCase(
	db *database.DB,
	repo biz.StatsRepo,
	cache biz.StatsCache,
	m *metrics.Metrics,
	log *logger.Logger,
) *biz.StatsUseCase {
	return biz.NewStatsUseCase(db, repo, cache, m, log)
}

func provideFileUseCase(
	config *conf.Config,
	repo biz.FileRepo,
	db *database.DB,
	blobs biz.BlobStore,
	h *hasher.Hasher,
	stats *biz.StatsUseCase,
	locker biz.UploadLocker,
	pool *workerpool.Pool,
	m *metrics.Metrics,
	log *logger.Logger,
) *biz.FileUseCase {
	return biz.NewFileUseCase(repo, db, blobs, h, stats, locker, pool, m, log, biz.FileOptions{
		MaxIngestAttempts: config.Upload.MaxIngestAttempts,
		BatchMaxFiles:     config.Upload.BatchMaxFiles,
	})
}

// Service providers

func provideFileService(
	config *conf.Config,
	files *biz.FileUseCase,
	stats *biz.StatsUseCase,
	log *logger.Logger,
) *service.FileService {
	return service.NewFileService(files, stats, config.Server.MaxUploadBytes, log)
}

func provideHealthChecker(d *data.Data) server.HealthChecker {
	return d
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	stats *biz.StatsUseCase,
	pool *workerpool.Pool,
) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		Stats:      stats,
		Pool:       pool,
	}
}
