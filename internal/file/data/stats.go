package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	"github.com/lk2023060901/filevault-backend/internal/file/models"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"gorm.io/gorm/clause"
)

// StatsRepo 统计聚合仓储实现
type StatsRepo struct {
	db  *database.DB
	now biz.Clock
}

// NewStatsRepo 创建统计聚合仓储
func NewStatsRepo(db *database.DB) *StatsRepo {
	return &StatsRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ biz.StatsRepo = (*StatsRepo)(nil)

type statsAggregate struct {
	TotalFiles       int64
	TotalUniqueFiles int64
	TotalBytes       int64
	UniqueBytes      int64
}

const statsAggregateSelect = `COUNT(*) AS total_files,
	CAST(COALESCE(SUM(CASE WHEN is_duplicate = false THEN 1 ELSE 0 END), 0) AS BIGINT) AS total_unique_files,
	CAST(COALESCE(SUM(size_bytes), 0) AS BIGINT) AS total_bytes,
	CAST(COALESCE(SUM(CASE WHEN is_duplicate = false THEN size_bytes ELSE 0 END), 0) AS BIGINT) AS unique_bytes`

// Recompute 从 files 表重新计算聚合并写入单行。
// 先锁定统计行再聚合，并发重算在 postgres 上按提交顺序串行。
func (r *StatsRepo) Recompute(ctx context.Context) (*biz.StatsSnapshot, error) {
	db := r.db.WithContext(ctx)
	now := r.now()

	seed := &models.StorageStats{ID: models.StatsRowID, LastUpdated: now}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, fmt.Errorf("failed to seed stats row: %w", err)
	}

	q := db
	if r.db.Dialect() == database.DriverPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.StorageStats
	if err := q.Where("id = ?", models.StatsRowID).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to lock stats row: %w", err)
	}

	var agg statsAggregate
	err := db.Model(&models.File{}).
		Select(statsAggregateSelect).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate files: %w", err)
	}

	row.TotalStorageUsed = agg.UniqueBytes
	row.TotalStorageSaved = agg.TotalBytes - agg.UniqueBytes
	row.TotalFiles = agg.TotalFiles
	row.TotalUniqueFiles = agg.TotalUniqueFiles
	row.Version++
	row.Stale = false
	row.LastUpdated = now

	err = db.Model(&models.StorageStats{}).
		Where("id = ?", models.StatsRowID).
		Updates(map[string]interface{}{
			"total_storage_used":  row.TotalStorageUsed,
			"total_storage_saved": row.TotalStorageSaved,
			"total_files":         row.TotalFiles,
			"total_unique_files":  row.TotalUniqueFiles,
			"version":             row.Version,
			"stale":               false,
			"last_updated":        now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store stats: %w", err)
	}
	return toSnapshot(&row), nil
}

// Get 读取统计行
func (r *StatsRepo) Get(ctx context.Context) (*biz.StatsSnapshot, error) {
	var row models.StorageStats
	if err := r.db.WithContext(ctx).Where("id = ?", models.StatsRowID).Take(&row).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("stats row: %w", biz.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return toSnapshot(&row), nil
}

// MarkStale 标记统计行需要重建
func (r *StatsRepo) MarkStale(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Model(&models.StorageStats{}).
		Where("id = ?", models.StatsRowID).
		Update("stale", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark stats stale: %w", err)
	}
	return nil
}

func toSnapshot(row *models.StorageStats) *biz.StatsSnapshot {
	return &biz.StatsSnapshot{
		TotalStorageUsed:  row.TotalStorageUsed,
		TotalStorageSaved: row.TotalStorageSaved,
		TotalFiles:        row.TotalFiles,
		TotalUniqueFiles:  row.TotalUniqueFiles,
		Version:           row.Version,
		LastUpdated:       row.LastUpdated.UTC(),
		Stale:             row.Stale,
	}
}
