package models

import (
	"context"
	"fmt"

	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
)

// OwnerHashIndex is the partial unique index that allows exactly one
// owning record per content hash
const OwnerHashIndex = "ux_files_owner_hash"

// AutoMigrate 自动迁移文件相关表
func AutoMigrate(ctx context.Context, db *database.DB) error {
	if !db.Config().AutoMigrate {
		return nil
	}

	if err := db.AutoMigrate(ctx, &File{}, &StorageStats{}); err != nil {
		return err
	}

	if err := createIndexes(ctx, db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes 创建 gorm 标签无法表达的索引
func createIndexes(ctx context.Context, db *database.DB) error {
	if err := db.WithContext(ctx).Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ` + OwnerHashIndex + `
		ON files(content_hash)
		WHERE is_duplicate = false
	`).Error; err != nil {
		return err
	}

	if err := db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_files_dup_uploaded
		ON files(is_duplicate, uploaded_at DESC)
	`).Error; err != nil {
		return err
	}

	return nil
}

// DropTables 删除所有文件相关表（仅用于测试）
func DropTables(ctx context.Context, db *database.DB) error {
	return db.WithContext(ctx).Migrator().DropTable(&StorageStats{}, &File{})
}
