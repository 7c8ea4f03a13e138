package biz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/metrics"
	"go.uber.org/zap"
)

const rebuildRetries = 3

// StatsUseCase 维护存储统计聚合。聚合只是缓存，任何时候都可以从文件记录重建。
type StatsUseCase struct {
	tx      Transactor
	repo    StatsRepo
	cache   StatsCache
	metrics *metrics.Metrics
	logger  *logger.Logger

	// set when an in-transaction recompute failed and the row may lag the files table
	stale atomic.Bool
}

// NewStatsUseCase 创建统计用例，cache 可以为 nil
func NewStatsUseCase(tx Transactor, repo StatsRepo, cache StatsCache, m *metrics.Metrics, log *logger.Logger) *StatsUseCase {
	return &StatsUseCase{
		tx:      tx,
		repo:    repo,
		cache:   cache,
		metrics: m,
		logger:  log.Named("stats"),
	}
}

// RecomputeInTx recomputes the aggregate inside the mutation transaction carried
// by ctx. Failure is isolated in a savepoint so the mutation still commits; the
// aggregate is then flagged stale until the reconciler or the next mutation fixes it.
func (uc *StatsUseCase) RecomputeInTx(ctx context.Context) {
	err := uc.tx.Savepoint(ctx, "stats_recompute", func(ctx context.Context) error {
		_, err := uc.repo.Recompute(ctx)
		return err
	})
	if err == nil {
		uc.metrics.ObserveRecompute(true)
		uc.stale.Store(false)
		return
	}

	uc.metrics.ObserveRecompute(false)
	uc.stale.Store(true)
	uc.logger.WithContext(ctx).Error("storage stats recompute failed, aggregate marked stale", zap.Error(err))

	if err := uc.tx.Savepoint(ctx, "stats_mark_stale", uc.repo.MarkStale); err != nil {
		uc.logger.WithContext(ctx).Warn("failed to persist stale flag", zap.Error(err))
	}
}

// Invalidate drops the cached snapshot after a committed mutation
func (uc *StatsUseCase) Invalidate(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx); err != nil {
		uc.logger.WithContext(ctx).Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

// Rebuild recomputes the aggregate from scratch in its own transaction,
// retrying serialization failures and deadlocks
func (uc *StatsUseCase) Rebuild(ctx context.Context) (*StatsSnapshot, error) {
	var snap *StatsSnapshot
	err := uc.tx.ExecuteWithRetry(ctx, rebuildRetries, func(ctx context.Context) error {
		s, err := uc.repo.Recompute(ctx)
		snap = s
		return err
	})
	if err != nil {
		uc.metrics.ObserveRecompute(false)
		return nil, fmt.Errorf("rebuild storage stats: %w", err)
	}

	uc.metrics.ObserveRecompute(true)
	uc.stale.Store(false)
	uc.Invalidate(ctx)
	return snap, nil
}

// Snapshot returns the current aggregate: cache, then the stored row, then a
// fresh recompute when the row does not exist yet
func (uc *StatsUseCase) Snapshot(ctx context.Context) (*StatsSnapshot, error) {
	if uc.cache != nil {
		s, err := uc.cache.Get(ctx)
		switch {
		case err == nil:
			s.Stale = s.Stale || uc.stale.Load()
			return s, nil
		case !errors.Is(err, ErrNotFound):
			uc.logger.WithContext(ctx).Warn("stats cache read failed", zap.Error(err))
		}
	}

	s, err := uc.repo.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		s, err = uc.Rebuild(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load storage stats: %w", err)
	}
	s.Stale = s.Stale || uc.stale.Load()

	if uc.cache != nil {
		uc.fillCache(ctx, s)
	}
	return s, nil
}

// fillCache stores s, then drops it again when the row moved past s while it
// was being written. A mutation that committed between the row read and the
// Set has already invalidated, so the late Set would otherwise outlive it.
func (uc *StatsUseCase) fillCache(ctx context.Context, s *StatsSnapshot) {
	log := uc.logger.WithContext(ctx)
	if err := uc.cache.Set(ctx, s); err != nil {
		log.Warn("stats cache write failed", zap.Error(err))
		return
	}

	current, err := uc.repo.Get(ctx)
	if err == nil && current.Version == s.Version && current.Stale == s.Stale {
		return
	}
	if err != nil {
		log.Warn("stats version check failed, dropping cached snapshot", zap.Error(err))
	} else {
		log.Debug("stats moved while caching, dropping cached snapshot",
			zap.Int64("cached_version", s.Version),
			zap.Int64("current_version", current.Version),
		)
	}
	uc.Invalidate(ctx)
}

// IsStale reports whether a recompute failed since the last successful one
func (uc *StatsUseCase) IsStale() bool {
	return uc.stale.Load()
}

// RunReconciler rebuilds the aggregate every interval until ctx is done
func (uc *StatsUseCase) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	uc.logger.Info("stats reconciler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stats reconciler stopped")
			return
		case <-ticker.C:
			wasStale := uc.stale.Load()
			if _, err := uc.Rebuild(ctx); err != nil {
				uc.logger.Error("stats reconcile failed", zap.Error(err))
				continue
			}
			if wasStale {
				uc.logger.Info("stale storage stats reconciled")
			}
		}
	}
}
