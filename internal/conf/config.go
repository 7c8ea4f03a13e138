package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/file/hasher"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/minio"
	"github.com/lk2023060901/filevault-backend/internal/pkg/redis"
	"github.com/lk2023060901/filevault-backend/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 FILEVAULT_SERVER_PORT
const EnvPrefix = "FILEVAULT"

// Storage backends
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database *database.Config `mapstructure:"database"`
	Redis    RedisConfig      `mapstructure:"redis"`
	Storage  StorageConfig    `mapstructure:"storage"`
	MinIO    *minio.Config    `mapstructure:"minio"`
	Hash     HashConfig       `mapstructure:"hash"`
	Stats    StatsConfig      `mapstructure:"stats"`
	Upload   UploadConfig     `mapstructure:"upload"`
	Log      *logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // debug, release, test
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig 关闭时统计不缓存、上传不加分布式锁
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	LockWait     time.Duration `mapstructure:"lock_wait"`
	StatsTTL     time.Duration `mapstructure:"stats_ttl"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // local, minio
	LocalPath string `mapstructure:"local_path"`
	SpoolDir  string `mapstructure:"spool_dir"`
}

type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"` // sha256, blake3, blake2b
	ChunkSize int    `mapstructure:"chunk_size"`
}

type StatsConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type UploadConfig struct {
	Workers           int `mapstructure:"workers"`
	BatchMaxFiles     int `mapstructure:"batch_max_files"`
	MaxIngestAttempts int `mapstructure:"max_ingest_attempts"`
}

// WorkerPool 批量上传使用的 worker pool 配置
func (c UploadConfig) WorkerPool() *workerpool.Config {
	cfg := workerpool.DefaultConfig()
	cfg.Workers = c.Workers
	return cfg
}

// LoadConfig 读取配置文件（path 为空时只使用默认值与环境变量）
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_bytes", int64(100<<20))
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.metrics_enabled", true)

	db := database.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.sqlitepath", db.SQLitePath)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.automigrate", db.AutoMigrate)

	rd := redis.DefaultConfig()
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addrs", rd.Addrs)
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.pool_timeout", rd.PoolTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.lock_wait", 5*time.Second)
	v.SetDefault("redis.stats_ttl", time.Minute)

	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.local_path", "data/blobs")
	v.SetDefault("storage.spool_dir", "")

	mc := minio.DefaultConfig()
	v.SetDefault("minio.endpoint", mc.Endpoint)
	v.SetDefault("minio.access_key_id", mc.AccessKeyID)
	v.SetDefault("minio.secret_access_key", mc.SecretAccessKey)
	v.SetDefault("minio.region", mc.Region)
	v.SetDefault("minio.use_ssl", mc.UseSSL)
	v.SetDefault("minio.bucket", mc.Bucket)
	v.SetDefault("minio.bucket_lookup", string(mc.BucketLookup))
	v.SetDefault("minio.request_timeout", mc.RequestTimeout)

	v.SetDefault("hash.algorithm", hasher.SHA256)
	v.SetDefault("hash.chunk_size", hasher.DefaultChunkSize)

	v.SetDefault("stats.reconcile_interval", 5*time.Minute)

	v.SetDefault("upload.workers", workerpool.DefaultConfig().Workers)
	v.SetDefault("upload.batch_max_files", 20)
	v.SetDefault("upload.max_ingest_attempts", 3)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server: invalid mode %q", c.Server.Mode)
	}
	if c.Server.MaxUploadBytes < 0 {
		return errors.New("server: max_upload_bytes must not be negative")
	}

	if c.Database == nil {
		return errors.New("database: configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.Redis.Enabled {
		if err := c.Redis.Config.Validate(); err != nil {
			return err
		}
		if c.Redis.LockTTL <= 0 {
			return errors.New("redis: lock_ttl must be positive")
		}
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalPath == "" {
			return errors.New("storage: local_path is required for the local backend")
		}
	case StorageMinIO:
		if c.MinIO == nil {
			return errors.New("minio: configuration is required for the minio backend")
		}
		if err := c.MinIO.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}

	switch c.Hash.Algorithm {
	case hasher.SHA256, hasher.BLAKE3, hasher.BLAKE2B:
	default:
		return fmt.Errorf("hash: unsupported algorithm %q", c.Hash.Algorithm)
	}

	if c.Upload.Workers <= 0 {
		return errors.New("upload: workers must be positive")
	}
	if c.Upload.BatchMaxFiles <= 0 {
		return errors.New("upload: batch_max_files must be positive")
	}

	if c.Log == nil {
		return errors.New("log: configuration is required")
	}
	return c.Log.Validate()
}
