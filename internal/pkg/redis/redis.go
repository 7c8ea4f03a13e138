package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client Redis 客户端封装
type Client struct {
	config *Config
	logger *logger.Logger
	rdb    redis.UniversalClient
}

// New 创建 Redis 客户端，单机或哨兵模式由 MasterName 决定
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs,
		MasterName: cfg.MasterName,
		Username:   cfg.Username,
		Password:   cfg.Password,
		DB:         cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,

		MaxRetries: cfg.MaxRetries,
	})

	client := &Client{
		config: cfg,
		logger: log,
		rdb:    rdb,
	}

	// 健康检查
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client initialized successfully",
		zap.Strings("addrs", cfg.Addrs),
		zap.String("master_name", cfg.MasterName),
		zap.Int("db", cfg.DB),
	)

	return client, nil
}

// NewFromUniversal 包装已有的 go-redis 客户端
func NewFromUniversal(rdb redis.UniversalClient, log *logger.Logger) *Client {
	return &Client{
		config: DefaultConfig(),
		logger: log,
		rdb:    rdb,
	}
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭客户端
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("failed to close redis client", zap.Error(err))
		return err
	}
	c.logger.Info("redis client closed")
	return nil
}

// Universal 返回底层 go-redis 客户端
func (c *Client) Universal() redis.UniversalClient {
	return c.rdb
}
