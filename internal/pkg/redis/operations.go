package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ==================== String Operations ====================

// Set 设置键值
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := c.rdb.Set(ctx, key, value, expiration).Err()
	if err != nil {
		c.logger.WithContext(ctx).Error("redis set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Get 获取键值
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil && !IsNil(err) {
		c.logger.WithContext(ctx).Error("redis get failed", zap.String("key", key), zap.Error(err))
	}
	return val, err
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.WithContext(ctx).Error("redis del failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return n, err
}

// ==================== JSON Operations ====================

// SetJSON 序列化 value 为 JSON 后写入
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, data, expiration)
}

// GetJSON 读取 JSON 并反序列化到 dest，键不存在时返回 ErrNil
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}

// ==================== Distributed Lock ====================

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lock 获取分布式锁，返回释放所需的 token
func (c *Client) Lock(ctx context.Context, key string, expiration time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, key, token, expiration).Result()
	if err != nil {
		c.logger.WithContext(ctx).Error("redis lock failed", zap.String("key", key), zap.Error(err))
		return "", err
	}
	if !ok {
		return "", ErrLockNotAcquired
	}

	c.logger.WithContext(ctx).Debug("redis lock acquired",
		zap.String("key", key),
		zap.Duration("expiration", expiration),
	)
	return token, nil
}

// Unlock 释放分布式锁（使用 Lua 脚本保证原子性）
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	n, err := c.rdb.Eval(ctx, unlockScript, []string{key}, token).Int64()
	if err != nil {
		c.logger.WithContext(ctx).Error("redis unlock failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrLockNotOwned
	}

	c.logger.WithContext(ctx).Debug("redis lock released", zap.String("key", key))
	return nil
}

// TryLock 尝试获取分布式锁（带重试）
func (c *Client) TryLock(ctx context.Context, key string, expiration time.Duration, maxRetries int, retryDelay time.Duration) (string, error) {
	var err error
	for i := 0; i <= maxRetries; i++ {
		var token string
		token, err = c.Lock(ctx, key, expiration)
		if err == nil {
			return token, nil
		}

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return "", fmt.Errorf("failed to acquire lock after %d retries: %w", maxRetries, err)
}
