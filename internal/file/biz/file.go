package biz

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/filevault-backend/internal/file/hasher"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/metrics"
	"github.com/lk2023060901/filevault-backend/internal/pkg/workerpool"
	"go.uber.org/zap"
)

const maxFilenameLength = 255

// FileOptions 文件用例配置
type FileOptions struct {
	MaxIngestAttempts int // 上传因并发冲突重试的上限
	BatchMaxFiles     int // 单次批量上传的文件数上限
}

// DefaultFileOptions 默认配置
func DefaultFileOptions() FileOptions {
	return FileOptions{
		MaxIngestAttempts: 3,
		BatchMaxFiles:     20,
	}
}

// FileUseCase 文件上传、去重、下载与删除用例
type FileUseCase struct {
	repo    FileRepo
	tx      Transactor
	blobs   BlobStore
	hasher  *hasher.Hasher
	stats   *StatsUseCase
	locker  UploadLocker
	pool    *workerpool.Pool
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     Clock
	opts    FileOptions
}

// NewFileUseCase 创建文件用例。locker 与 pool 可以为 nil。
func NewFileUseCase(
	repo FileRepo,
	tx Transactor,
	blobs BlobStore,
	h *hasher.Hasher,
	stats *StatsUseCase,
	locker UploadLocker,
	pool *workerpool.Pool,
	m *metrics.Metrics,
	log *logger.Logger,
	opts FileOptions,
) *FileUseCase {
	defaults := DefaultFileOptions()
	if opts.MaxIngestAttempts <= 0 {
		opts.MaxIngestAttempts = defaults.MaxIngestAttempts
	}
	if opts.BatchMaxFiles <= 0 {
		opts.BatchMaxFiles = defaults.BatchMaxFiles
	}

	return &FileUseCase{
		repo:    repo,
		tx:      tx,
		blobs:   blobs,
		hasher:  h,
		stats:   stats,
		locker:  locker,
		pool:    pool,
		metrics: m,
		logger:  log.Named("file"),
		now:     func() time.Time { return time.Now().UTC() },
		opts:    opts,
	}
}

// Upload spools and hashes the content, then stores it as a new owning record
// or as a duplicate of the existing owner for the same hash
func (uc *FileUseCase) Upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	start := time.Now()

	res, err := uc.upload(ctx, in)
	if err != nil {
		uc.metrics.ObserveUpload(metrics.ResultFailed, 0, 0)
		return nil, err
	}

	result := metrics.ResultUnique
	if res.IsDuplicate {
		result = metrics.ResultDuplicate
	}
	uc.metrics.ObserveUpload(result, res.Record.SizeBytes, time.Since(start))
	return res, nil
}

func (uc *FileUseCase) upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	if in == nil || in.Reader == nil {
		return nil, fmt.Errorf("%w: no file payload", ErrInvalidInput)
	}

	filename, err := cleanFilename(in.Filename)
	if err != nil {
		return nil, err
	}

	sp, err := uc.hasher.Spool(ctx, in.Reader)
	if err != nil {
		return nil, spoolError(err)
	}
	defer func() {
		if err := sp.Close(); err != nil {
			uc.logger.WithContext(ctx).Warn("failed to remove spool file", zap.Error(err))
		}
	}()

	log := uc.logger.WithContext(ctx).With(
		zap.String("filename", filename),
		zap.String("hash", sp.Hash),
		zap.Int64("size", sp.Size),
	)

	if in.DeclaredSize > 0 && in.DeclaredSize != sp.Size {
		log.Warn("declared size differs from received size, using received size",
			zap.Int64("declared_size", in.DeclaredSize))
	}

	contentType := ResolveContentType(in.ContentType, filename, sp.Head)

	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, sp.Hash)
		if err != nil {
			log.Warn("upload lock unavailable, relying on unique index", zap.Error(err))
		} else {
			defer unlock()
		}
	}

	return uc.ingest(ctx, log, sp, filename, contentType)
}

// ingest resolves the hash and takes the duplicate or the promote path. Losing
// the owner race, or the owner vanishing under a duplicate insert, re-resolves.
func (uc *FileUseCase) ingest(ctx context.Context, log *logger.Logger, sp *hasher.Spool, filename, contentType string) (*UploadResult, error) {
	for attempt := 1; attempt <= uc.opts.MaxIngestAttempts; attempt++ {
		owner, err := uc.repo.GetOwnerByHash(ctx, sp.Hash)
		switch {
		case err == nil:
			res, err := uc.linkDuplicate(ctx, log, sp, owner, filename, contentType)
			if errors.Is(err, ErrRaceLost) {
				log.Warn("owner removed during duplicate insert, retrying", zap.Int("attempt", attempt))
				continue
			}
			return res, err

		case errors.Is(err, ErrNotFound):
			res, err := uc.promote(ctx, log, sp, filename, contentType)
			if errors.Is(err, ErrRaceLost) {
				uc.metrics.RaceLost()
				log.Info("lost owner race, retrying as duplicate", zap.Int("attempt", attempt))
				continue
			}
			return res, err

		default:
			return nil, fmt.Errorf("resolve content hash: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: content hash %s still contended after %d attempts", ErrConflict, sp.Hash, uc.opts.MaxIngestAttempts)
}

// promote stores the spooled bytes and creates the owning record
func (uc *FileUseCase) promote(ctx context.Context, log *logger.Logger, sp *hasher.Spool, filename, contentType string) (*UploadResult, error) {
	f, err := sp.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: reopen spool: %w", ErrStorageMedium, err)
	}
	key, err := uc.blobs.Put(ctx, sp.Hash, f, sp.Size, contentType)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: store content: %w", ErrStorageMedium, err)
	}

	rec := uc.newRecord(sp, filename, contentType)
	rec.StorageKey = key

	err = uc.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := uc.repo.Create(ctx, rec); err != nil {
			return err
		}
		uc.stats.RecomputeInTx(ctx)
		return nil
	})
	if err != nil {
		uc.discardBlob(ctx, log, key)
		if errors.Is(err, ErrRaceLost) {
			return nil, ErrRaceLost
		}
		return nil, fmt.Errorf("create file record: %w", err)
	}
	uc.stats.Invalidate(ctx)

	log.Info("stored unique content", zap.String("id", rec.ID), zap.String("storage_key", key))
	return &UploadResult{Record: rec}, nil
}

// linkDuplicate creates a record aliasing owner; the spooled bytes are dropped by the caller
func (uc *FileUseCase) linkDuplicate(ctx context.Context, log *logger.Logger, sp *hasher.Spool, owner *FileRecord, filename, contentType string) (*UploadResult, error) {
	ownerID := owner.ID
	rec := uc.newRecord(sp, filename, contentType)
	rec.IsDuplicate = true
	rec.OriginalFileID = &ownerID

	err := uc.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := uc.repo.Create(ctx, rec); err != nil {
			return err
		}
		uc.stats.RecomputeInTx(ctx)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRaceLost) {
			return nil, ErrRaceLost
		}
		return nil, fmt.Errorf("create duplicate record: %w", err)
	}
	uc.stats.Invalidate(ctx)

	log.Info("stored duplicate content", zap.String("id", rec.ID), zap.String("original_file_id", ownerID))
	return &UploadResult{Record: rec, IsDuplicate: true, OriginalFileID: ownerID}, nil
}

func (uc *FileUseCase) newRecord(sp *hasher.Spool, filename, contentType string) *FileRecord {
	return &FileRecord{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		ContentType:      contentType,
		SizeBytes:        sp.Size,
		ContentHash:      sp.Hash,
		UploadedAt:       uc.now(),
	}
}

// discardBlob removes a promoted blob whose record was never committed
func (uc *FileUseCase) discardBlob(ctx context.Context, log *logger.Logger, key string) {
	if err := uc.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, ErrBlobNotFound) {
		log.Error("failed to discard promoted blob, blob orphaned", zap.String("storage_key", key), zap.Error(err))
		return
	}
	log.Debug("discarded promoted blob", zap.String("storage_key", key))
}

// BatchUpload runs each upload on the worker pool. Outcomes are independent:
// one failed file does not affect the others.
func (uc *FileUseCase) BatchUpload(ctx context.Context, inputs []*UploadInput) ([]BatchItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no files in batch", ErrInvalidInput)
	}
	if len(inputs) > uc.opts.BatchMaxFiles {
		return nil, fmt.Errorf("%w: batch of %d files exceeds limit of %d", ErrInvalidInput, len(inputs), uc.opts.BatchMaxFiles)
	}

	items := make([]BatchItem, len(inputs))
	var wg sync.WaitGroup

	for i, in := range inputs {
		if in != nil {
			items[i].Filename = in.Filename
		}

		run := func() {
			defer wg.Done()
			items[i].Result, items[i].Err = uc.Upload(ctx, in)
		}

		wg.Add(1)
		if uc.pool == nil {
			run()
			continue
		}
		if err := uc.pool.Submit(run); err != nil {
			wg.Done()
			items[i].Err = fmt.Errorf("schedule upload: %w", err)
		}
	}

	wg.Wait()
	return items, nil
}

// Get 获取文件记录
func (uc *FileUseCase) Get(ctx context.Context, id string) (*FileRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("file %q: %w", id, ErrNotFound)
	}
	return uc.repo.GetByID(ctx, id)
}

// Open resolves a record to its backing bytes, following a duplicate exactly
// one hop to its owner. Bytes missing from storage are reported, not hidden.
func (uc *FileUseCase) Open(ctx context.Context, id string) (*Download, error) {
	rec, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := uc.resolveOwner(ctx, rec)
	if err != nil {
		return nil, err
	}

	rc, err := uc.blobs.Get(ctx, owner.StorageKey)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			uc.logger.WithContext(ctx).Error("file content missing from storage",
				zap.String("id", rec.ID),
				zap.String("owner_id", owner.ID),
				zap.String("storage_key", owner.StorageKey),
			)
			return nil, fmt.Errorf("file %s: %w", rec.ID, ErrContentMissing)
		}
		return nil, fmt.Errorf("%w: open content: %w", ErrStorageMedium, err)
	}

	return &Download{
		Reader:      rc,
		Filename:    rec.OriginalFilename,
		ContentType: rec.ContentType,
		Size:        rec.SizeBytes,
		Record:      rec,
	}, nil
}

func (uc *FileUseCase) resolveOwner(ctx context.Context, rec *FileRecord) (*FileRecord, error) {
	if rec.OwnsBytes() {
		return rec, nil
	}

	// legacy rows may carry a nulled back-reference; they can never be resolved
	if rec.OriginalFileID == nil {
		return nil, fmt.Errorf("duplicate %s has no original: %w", rec.ID, ErrContentMissing)
	}

	owner, err := uc.repo.GetByID(ctx, *rec.OriginalFileID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("original %s of duplicate %s is gone: %w", *rec.OriginalFileID, rec.ID, ErrContentMissing)
	}
	if err != nil {
		return nil, err
	}
	if !owner.OwnsBytes() {
		return nil, fmt.Errorf("original %s of duplicate %s is itself a duplicate: %w", owner.ID, rec.ID, ErrContentMissing)
	}
	return owner, nil
}

// Delete removes a record. Duplicates only lose their row. An owner is
// refused with a ReferencedError while duplicates point at it; otherwise its
// row goes in a transaction and its bytes are removed after commit.
func (uc *FileUseCase) Delete(ctx context.Context, id string) error {
	rec, err := uc.Get(ctx, id)
	if err != nil {
		uc.metrics.ObserveDelete("not_found")
		return err
	}
	log := uc.logger.WithContext(ctx).With(zap.String("id", rec.ID), zap.Bool("is_duplicate", rec.IsDuplicate))

	err = uc.tx.Transaction(ctx, func(ctx context.Context) error {
		if rec.OwnsBytes() {
			locked, err := uc.repo.GetByIDForUpdate(ctx, rec.ID)
			if err != nil {
				return err
			}
			n, err := uc.repo.CountReferents(ctx, locked.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return &ReferencedError{FileID: locked.ID, Referents: n}
			}
		}

		if err := uc.repo.Delete(ctx, rec.ID); err != nil {
			return err
		}
		uc.stats.RecomputeInTx(ctx)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			uc.metrics.ObserveDelete("conflict")
			log.Info("refused to delete referenced file", zap.Error(err))
		case errors.Is(err, ErrNotFound):
			uc.metrics.ObserveDelete("not_found")
		default:
			uc.metrics.ObserveDelete("failed")
		}
		return err
	}
	uc.stats.Invalidate(ctx)
	uc.metrics.ObserveDelete("deleted")

	if rec.OwnsBytes() && rec.StorageKey != "" {
		// the row is gone; finish the blob even if the caller went away
		if err := uc.blobs.Delete(context.WithoutCancel(ctx), rec.StorageKey); err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				log.Warn("owned content was already missing from storage", zap.String("storage_key", rec.StorageKey))
			} else {
				log.Error("failed to delete content, blob orphaned", zap.String("storage_key", rec.StorageKey), zap.Error(err))
			}
		}
	}

	log.Info("file deleted")
	return nil
}

// List 按条件分页查询文件记录
func (uc *FileUseCase) List(ctx context.Context, q *ListQuery) ([]*FileRecord, int64, error) {
	if q == nil {
		q = &ListQuery{}
	}
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	return uc.repo.List(ctx, q)
}

// ContentTypes 返回所有出现过的内容类型
func (uc *FileUseCase) ContentTypes(ctx context.Context) ([]string, error) {
	return uc.repo.DistinctContentTypes(ctx)
}

// SizeRanges 返回文件大小分布
func (uc *FileUseCase) SizeRanges(ctx context.Context) ([]BucketCount, error) {
	return uc.repo.SizeHistogram(ctx, DefaultSizeBuckets)
}

// DateRanges 返回上传时间分布
func (uc *FileUseCase) DateRanges(ctx context.Context) ([]BucketCount, error) {
	return uc.repo.DateHistogram(ctx, DateBuckets(uc.now()))
}

// cleanFilename keeps the base name of a client supplied path
func cleanFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if len(name) > maxFilenameLength {
		return "", fmt.Errorf("%w: filename longer than %d bytes", ErrInvalidInput, maxFilenameLength)
	}
	return name, nil
}

func spoolError(err error) error {
	switch {
	case errors.Is(err, hasher.ErrEmpty):
		return fmt.Errorf("%w: empty file", ErrInvalidInput)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, hasher.ErrRead):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorageMedium, err)
	}
}
