package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// TaskResult 任务结果
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config Worker Pool 配置
type Config struct {
	Workers        int           `mapstructure:"workers"`         // worker 数量上限
	ExpiryDuration time.Duration `mapstructure:"expiry_duration"` // 空闲 worker 回收间隔
	Nonblocking    bool          `mapstructure:"nonblocking"`     // 池满时立即返回 ErrPoolFull
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:        8,
		ExpiryDuration: time.Minute,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Panicked  int64 // panic
	Running   int64 // 运行中
}

// Pool 基于 ants 的有界 goroutine 池
type Pool struct {
	pool   *ants.Pool
	config *Config
	logger *logger.Logger

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	running   atomic.Int64

	closeOnce sync.Once
}

// New 创建 Worker Pool
func New(config *Config, log *logger.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0, got %d", config.Workers)
	}

	p := &Pool{
		config: config,
		logger: log,
	}

	opts := []ants.Option{
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(v interface{}) {
			p.panicked.Add(1)
			log.Error("worker panic", zap.Any("error", v), zap.Stack("stack"))
		}),
	}
	if config.ExpiryDuration > 0 {
		opts = append(opts, ants.WithExpiryDuration(config.ExpiryDuration))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool

	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.completed.Add(1)
		}()
		task()
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolClosed):
		p.submitted.Add(-1)
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		p.submitted.Add(-1)
		return ErrPoolFull
	default:
		p.submitted.Add(-1)
		return err
	}
}

// SubmitWithResult 提交任务并获取结果；提交失败时结果通道直接携带错误
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	resultCh := make(chan TaskResult, 1)

	err := p.Submit(func() {
		defer close(resultCh)
		result, err := task()
		resultCh <- TaskResult{Data: result, Error: err}
	})
	if err != nil {
		resultCh <- TaskResult{Error: err}
		close(resultCh)
	}

	return resultCh
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Running:   p.running.Load(),
	}
}

// Shutdown 等待运行中的任务结束后关闭
func (p *Pool) Shutdown(timeout time.Duration) {
	p.closeOnce.Do(func() {
		if err := p.pool.ReleaseTimeout(timeout); err != nil {
			p.logger.Warn("worker pool release timed out", zap.Error(err))
		}
	})
}
