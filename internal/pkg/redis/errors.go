package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// 预定义错误
var (
	ErrNil             = redis.Nil // Key 不存在
	ErrClosed          = errors.New("redis: client is closed")
	ErrLockNotAcquired = errors.New("redis: lock held by another owner")
	ErrLockNotOwned    = errors.New("redis: lock token mismatch or lock expired")
)

// IsNil 判断是否是 Key 不存在错误
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsClosed 判断是否是客户端已关闭错误
func IsClosed(err error) bool {
	return errors.Is(err, redis.ErrClosed) || errors.Is(err, ErrClosed)
}
