package redis

import (
	"errors"
	"time"
)

// Config Redis 配置
type Config struct {
	// 单机地址 (host:port)；配置 MasterName 时为哨兵地址列表
	Addrs      []string `mapstructure:"addrs" yaml:"addrs"`
	MasterName string   `mapstructure:"master_name" yaml:"master_name"` // 哨兵模式主节点名称

	// 认证配置
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`

	// 连接池配置
	PoolSize     int `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`

	// 超时配置
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout" yaml:"pool_timeout"`

	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addrs: []string{"localhost:6379"},

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,

		MaxRetries: 3,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Addrs) == 0 {
		return errors.New("redis: at least one address is required")
	}
	for _, addr := range c.Addrs {
		if addr == "" {
			return errors.New("redis: empty address")
		}
	}
	if c.DB < 0 || c.DB > 15 {
		return errors.New("redis: db must be between 0 and 15")
	}
	if c.PoolSize < 0 || c.MinIdleConns < 0 {
		return errors.New("redis: pool sizes must be >= 0")
	}
	if c.MinIdleConns > c.PoolSize && c.PoolSize > 0 {
		return errors.New("redis: min idle conns cannot exceed pool size")
	}
	return nil
}
