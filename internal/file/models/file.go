package models

import (
	"time"
)

// File 文件记录（唯一内容的所有者或指向所有者的重复记录）
type File struct {
	ID               string    `gorm:"column:id;type:uuid;primaryKey"`
	StorageKey       *string   `gorm:"column:storage_key;size:512"`
	OriginalFilename string    `gorm:"column:original_filename;size:255;not null;index:idx_files_original_filename"`
	ContentType      string    `gorm:"column:content_type;size:255;not null;index:idx_files_content_type"`
	SizeBytes        int64     `gorm:"column:size_bytes;not null;index:idx_files_size_bytes"`
	ContentHash      string    `gorm:"column:content_hash;size:128;not null;index:idx_files_content_hash"`
	IsDuplicate      bool      `gorm:"column:is_duplicate;not null"`
	OriginalFileID   *string   `gorm:"column:original_file_id;type:uuid;index:idx_files_original_file_id"`
	UploadedAt       time.Time `gorm:"column:uploaded_at;not null;index:idx_files_uploaded_at"`

	// 所有者存在重复记录时数据库拒绝删除
	Original *File `gorm:"foreignKey:OriginalFileID;references:ID;constraint:OnDelete:RESTRICT"`
}

// TableName 指定表名
func (File) TableName() string {
	return "files"
}

// StatsRowID is the primary key of the single statistics row
const StatsRowID = 1

// StorageStats 存储统计聚合（单行，可由 files 表完全重建）
type StorageStats struct {
	ID                int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	TotalStorageUsed  int64     `gorm:"column:total_storage_used;not null;default:0"`
	TotalStorageSaved int64     `gorm:"column:total_storage_saved;not null;default:0"`
	TotalFiles        int64     `gorm:"column:total_files;not null;default:0"`
	TotalUniqueFiles  int64     `gorm:"column:total_unique_files;not null;default:0"`
	Version           int64     `gorm:"column:version;not null;default:0"`
	Stale             bool      `gorm:"column:stale;not null;default:false"`
	LastUpdated       time.Time `gorm:"column:last_updated;not null"`
}

// TableName 指定表名
func (StorageStats) TableName() string {
	return "storage_stats"
}
