package service

import (
	"time"

	"github.com/lk2023060901/filevault-backend/internal/file/biz"
)

// FileResponse 文件记录响应
type FileResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"file_type"`
	Size             int64     `json:"size"`
	ContentHash      string    `json:"content_hash"`
	IsDuplicate      bool      `json:"is_duplicate"`
	OriginalFileID   *string   `json:"original_file_id"`
	UploadedAt       time.Time `json:"uploaded_at"`
	DownloadURL      string    `json:"download_url"`
}

// UploadResponse 上传响应
type UploadResponse struct {
	File           *FileResponse `json:"file"`
	IsDuplicate    bool          `json:"is_duplicate"`
	OriginalFileID string        `json:"original_file_id,omitempty"`
	Message        string        `json:"message"`
}

// BatchItemResponse 批量上传单个文件结果
type BatchItemResponse struct {
	Filename string          `json:"filename"`
	Success  bool            `json:"success"`
	Result   *UploadResponse `json:"result,omitempty"`
	Code     int             `json:"code,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BatchUploadResponse 批量上传响应
type BatchUploadResponse struct {
	Items     []BatchItemResponse `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// StatsResponse 存储统计响应
type StatsResponse struct {
	TotalStorageUsed  int64     `json:"total_storage_used"`
	TotalStorageSaved int64     `json:"total_storage_saved"`
	TotalFiles        int64     `json:"total_files"`
	TotalUniqueFiles  int64     `json:"total_unique_files"`
	SavedPercentage   float64   `json:"saved_percentage"`
	Version           int64     `json:"version"`
	LastUpdated       time.Time `json:"last_updated"`
	Stale             bool      `json:"stale"`
}

// RangeCount 分面统计项
type RangeCount struct {
	Range string `json:"range"`
	Count int64  `json:"count"`
}

// ListFilesRequest 文件列表查询参数
type ListFilesRequest struct {
	Search      string `form:"search"`
	FileType    string `form:"file_type"`
	MinSize     *int64 `form:"min_size"`
	MaxSize     *int64 `form:"max_size"`
	StartDate   string `form:"start_date"`
	EndDate     string `form:"end_date"`
	IsDuplicate *bool  `form:"is_duplicate"`
	Ordering    string `form:"ordering"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}

func toFileResponse(rec *biz.FileRecord) *FileResponse {
	return &FileResponse{
		ID:               rec.ID,
		OriginalFilename: rec.OriginalFilename,
		ContentType:      rec.ContentType,
		Size:             rec.SizeBytes,
		ContentHash:      rec.ContentHash,
		IsDuplicate:      rec.IsDuplicate,
		OriginalFileID:   rec.OriginalFileID,
		UploadedAt:       rec.UploadedAt,
		DownloadURL:      "/api/v1/files/" + rec.ID + "/download",
	}
}

func toUploadResponse(res *biz.UploadResult) *UploadResponse {
	resp := &UploadResponse{
		File:           toFileResponse(res.Record),
		IsDuplicate:    res.IsDuplicate,
		OriginalFileID: res.OriginalFileID,
		Message:        "File uploaded",
	}
	if res.IsDuplicate {
		resp.Message = "Duplicate content, linked to existing file"
	}
	return resp
}

func toStatsResponse(s *biz.StatsSnapshot) *StatsResponse {
	return &StatsResponse{
		TotalStorageUsed:  s.TotalStorageUsed,
		TotalStorageSaved: s.TotalStorageSaved,
		TotalFiles:        s.TotalFiles,
		TotalUniqueFiles:  s.TotalUniqueFiles,
		SavedPercentage:   s.RoundedSavedPercentage(),
		Version:           s.Version,
		LastUpdated:       s.LastUpdated,
		Stale:             s.Stale,
	}
}

func toRangeCounts(buckets []biz.BucketCount) []RangeCount {
	out := make([]RangeCount, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, RangeCount{Range: b.Label, Count: b.Count})
	}
	return out
}
