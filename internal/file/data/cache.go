package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

// Redis key layout
const (
	statsCacheKey     = "filevault:stats"
	uploadLockPrefix  = "filevault:upload-lock:"
	lockRetryInterval = 50 * time.Millisecond
)

type cachedStats struct {
	TotalStorageUsed  int64     `json:"total_storage_used"`
	TotalStorageSaved int64     `json:"total_storage_saved"`
	TotalFiles        int64     `json:"total_files"`
	TotalUniqueFiles  int64     `json:"total_unique_files"`
	Version           int64     `json:"version"`
	LastUpdated       time.Time `json:"last_updated"`
	Stale             bool      `json:"stale"`
}

// RedisStatsCache 统计快照的 Redis 缓存
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache 创建统计缓存
func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{client: client, ttl: ttl}
}

var _ biz.StatsCache = (*RedisStatsCache)(nil)

// Get 读取缓存，未命中返回 biz.ErrNotFound
func (c *RedisStatsCache) Get(ctx context.Context) (*biz.StatsSnapshot, error) {
	var v cachedStats
	if err := c.client.GetJSON(ctx, statsCacheKey, &v); err != nil {
		if redis.IsNil(err) {
			return nil, fmt.Errorf("stats cache: %w", biz.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read stats cache: %w", err)
	}
	return &biz.StatsSnapshot{
		TotalStorageUsed:  v.TotalStorageUsed,
		TotalStorageSaved: v.TotalStorageSaved,
		TotalFiles:        v.TotalFiles,
		TotalUniqueFiles:  v.TotalUniqueFiles,
		Version:           v.Version,
		LastUpdated:       v.LastUpdated,
		Stale:             v.Stale,
	}, nil
}

// Set 写入缓存
func (c *RedisStatsCache) Set(ctx context.Context, s *biz.StatsSnapshot) error {
	return c.client.SetJSON(ctx, statsCacheKey, cachedStats{
		TotalStorageUsed:  s.TotalStorageUsed,
		TotalStorageSaved: s.TotalStorageSaved,
		TotalFiles:        s.TotalFiles,
		TotalUniqueFiles:  s.TotalUniqueFiles,
		Version:           s.Version,
		LastUpdated:       s.LastUpdated,
		Stale:             s.Stale,
	}, c.ttl)
}

// Invalidate 删除缓存
func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	_, err := c.client.Del(ctx, statsCacheKey)
	return err
}

// RedisUploadLocker 按内容哈希加分布式锁
type RedisUploadLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logger.Logger
}

// NewRedisUploadLocker 创建上传锁。wait 为等待持有者释放的最长时间。
func NewRedisUploadLocker(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *RedisUploadLocker {
	return &RedisUploadLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: log.Named("upload-lock"),
	}
}

var _ biz.UploadLocker = (*RedisUploadLocker)(nil)

// Lock 获取锁并返回释放函数
func (l *RedisUploadLocker) Lock(ctx context.Context, hash string) (func(), error) {
	key := uploadLockPrefix + hash
	retries := int(l.wait / lockRetryInterval)

	token, err := l.client.TryLock(ctx, key, l.ttl, retries, lockRetryInterval)
	if err != nil {
		return nil, err
	}

	return func() {
		if err := l.client.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			l.logger.WithContext(ctx).Warn("failed to release upload lock",
				zap.String("hash", hash),
				zap.Error(err),
			)
		}
	}, nil
}
