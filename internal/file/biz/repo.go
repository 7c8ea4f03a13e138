package biz

import (
	"context"
	"io"
	"time"
)

// FileRepo 文件记录仓储接口。写操作通过 ctx 加入调用方的事务。
type FileRepo interface {
	// Create inserts rec. A uniqueness or foreign key violation is reported as ErrRaceLost.
	Create(ctx context.Context, rec *FileRecord) error
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	// GetByIDForUpdate locks the row for the rest of the transaction where the dialect supports it
	GetByIDForUpdate(ctx context.Context, id string) (*FileRecord, error)
	GetOwnerByHash(ctx context.Context, hash string) (*FileRecord, error)
	CountReferents(ctx context.Context, ownerID string) (int64, error)
	// Delete removes the row. A foreign key violation is reported as ErrConflict.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q *ListQuery) ([]*FileRecord, int64, error)
	DistinctContentTypes(ctx context.Context) ([]string, error)
	SizeHistogram(ctx context.Context, buckets []SizeBucket) ([]BucketCount, error)
	DateHistogram(ctx context.Context, buckets []DateBucket) ([]BucketCount, error)
}

// StatsRepo 统计聚合仓储接口
type StatsRepo interface {
	// Recompute derives the aggregate from the files table and upserts the single row
	Recompute(ctx context.Context) (*StatsSnapshot, error)
	// Get returns the stored row, or ErrNotFound before the first recompute
	Get(ctx context.Context) (*StatsSnapshot, error)
	MarkStale(ctx context.Context) error
}

// Transactor runs functions inside a database transaction carried by ctx
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error
	ExecuteWithRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error
}

// BlobStore 物理字节存储，按不透明的 storage key 寻址
type BlobStore interface {
	// Put stores size bytes from r and returns a fresh storage key derived from hash
	Put(ctx context.Context, hash string, r io.Reader, size int64, contentType string) (string, error)
	// Get opens the blob; ErrBlobNotFound if absent
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob; ErrBlobNotFound if absent
	Delete(ctx context.Context, key string) error
}

// StatsCache 统计快照缓存
type StatsCache interface {
	Get(ctx context.Context) (*StatsSnapshot, error) // ErrNotFound on miss
	Set(ctx context.Context, s *StatsSnapshot) error
	Invalidate(ctx context.Context) error
}

// UploadLocker serialises uploads of the same content hash across processes.
// It only reduces contention; the unique index stays authoritative.
type UploadLocker interface {
	Lock(ctx context.Context, hash string) (unlock func(), err error)
}

// Clock 时间源
type Clock func() time.Time
