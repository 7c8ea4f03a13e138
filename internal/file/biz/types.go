package biz

import (
	"io"
	"math"
	"time"
)

// FileRecord 文件记录
type FileRecord struct {
	ID               string
	StorageKey       string // 仅所有者记录持有
	OriginalFilename string
	ContentType      string
	SizeBytes        int64
	ContentHash      string
	IsDuplicate      bool
	OriginalFileID   *string // 重复记录指向的所有者；历史遗留数据可能为空
	UploadedAt       time.Time
}

// OwnsBytes reports whether the record holds the physical copy of its content
func (r *FileRecord) OwnsBytes() bool {
	return !r.IsDuplicate
}

// UploadInput 上传请求
type UploadInput struct {
	Reader       io.Reader
	Filename     string
	ContentType  string // 可选，缺省时按扩展名或内容推断
	DeclaredSize int64  // 客户端声明的大小，<=0 表示未知
}

// UploadResult 上传结果
type UploadResult struct {
	Record         *FileRecord
	IsDuplicate    bool
	OriginalFileID string
}

// Download 下载句柄，调用方负责关闭 Reader
type Download struct {
	Reader      io.ReadCloser
	Filename    string
	ContentType string
	Size        int64
	Record      *FileRecord
}

// BatchItem 批量上传中单个文件的结果
type BatchItem struct {
	Filename string
	Result   *UploadResult
	Err      error
}

// StatsSnapshot 存储统计快照
type StatsSnapshot struct {
	TotalStorageUsed  int64
	TotalStorageSaved int64
	TotalFiles        int64
	TotalUniqueFiles  int64
	Version           int64
	LastUpdated       time.Time
	Stale             bool
}

// SavedPercentage is saved / (used + saved) * 100, or 0 for an empty store
func (s *StatsSnapshot) SavedPercentage() float64 {
	total := s.TotalStorageUsed + s.TotalStorageSaved
	if total == 0 {
		return 0
	}
	return float64(s.TotalStorageSaved) / float64(total) * 100
}

// RoundedSavedPercentage rounds SavedPercentage to two decimals
func (s *StatsSnapshot) RoundedSavedPercentage() float64 {
	return math.Round(s.SavedPercentage()*100) / 100
}

// BucketCount 分面统计的一个区间
type BucketCount struct {
	Label string
	Count int64
}
