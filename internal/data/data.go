package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/conf"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	filedata "github.com/lk2023060901/filevault-backend/internal/file/data"
	"github.com/lk2023060901/filevault-backend/internal/file/models"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/minio"
	"github.com/lk2023060901/filevault-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data 持有数据库、Redis 与对象存储连接
type Data struct {
	DB          *database.DB
	RedisClient *redis.Client // redis.enabled=false 时为 nil
	MinIOClient *minio.Client // storage.backend=local 时为 nil
	Blobs       biz.BlobStore
	Logger      *logger.Logger
}

// NewData 按配置初始化数据层，返回的 cleanup 关闭所有连接
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	var closers []func()
	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := database.New(config.Database, log.Named("database"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := models.AutoMigrate(ctx, db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	d := &Data{DB: db, Logger: log}

	if config.Redis.Enabled {
		rc, err := redis.New(&config.Redis.Config, log.Named("redis"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.RedisClient = rc
		closers = append(closers, func() {
			if err := rc.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		})
	}

	switch config.Storage.Backend {
	case conf.StorageMinIO:
		mc, err := minio.NewClient(config.MinIO, log.Named("minio"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
		closers = append(closers, func() { _ = mc.Close() })
		if err := mc.EnsureBucket(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		d.MinIOClient = mc
		d.Blobs = filedata.NewMinioBlobStore(mc)
	default:
		local, err := filedata.NewLocalBlobStore(config.Storage.LocalPath, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init local storage: %w", err)
		}
		d.Blobs = local
	}

	log.Info("data layer initialized",
		zap.String("database", config.Database.Driver),
		zap.String("storage", config.Storage.Backend),
		zap.Bool("redis", config.Redis.Enabled),
	)
	return d, cleanup, nil
}

// HealthCheck 检查所有后端连接
func (d *Data) HealthCheck(ctx context.Context) error {
	if err := d.DB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.MinIOClient != nil {
		if err := d.MinIOClient.Ping(ctx); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	}
	return nil
}

// StatsCache 返回统计缓存，未启用 Redis 时为 nil
func (d *Data) StatsCache(config *conf.Config) biz.StatsCache {
	if d.RedisClient == nil {
		return nil
	}
	return filedata.NewRedisStatsCache(d.RedisClient, config.Redis.StatsTTL)
}

// UploadLocker 返回按哈希的上传锁，未启用 Redis 时为 nil
func (d *Data) UploadLocker(config *conf.Config) biz.UploadLocker {
	if d.RedisClient == nil {
		return nil
	}
	return filedata.NewRedisUploadLocker(d.RedisClient, config.Redis.LockTTL, config.Redis.LockWait, d.Logger)
}
