package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	"github.com/lk2023060901/filevault-backend/internal/file/models"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileRepo 文件记录仓储实现
type FileRepo struct {
	db *database.DB
}

// NewFileRepo 创建文件记录仓储
func NewFileRepo(db *database.DB) *FileRepo {
	return &FileRepo{db: db}
}

var _ biz.FileRepo = (*FileRepo)(nil)

func toFilePO(rec *biz.FileRecord) *models.File {
	po := &models.File{
		ID:               rec.ID,
		OriginalFilename: rec.OriginalFilename,
		ContentType:      rec.ContentType,
		SizeBytes:        rec.SizeBytes,
		ContentHash:      rec.ContentHash,
		IsDuplicate:      rec.IsDuplicate,
		OriginalFileID:   rec.OriginalFileID,
		UploadedAt:       rec.UploadedAt,
	}
	if rec.StorageKey != "" {
		key := rec.StorageKey
		po.StorageKey = &key
	}
	return po
}

func toFileRecord(po *models.File) *biz.FileRecord {
	rec := &biz.FileRecord{
		ID:               po.ID,
		OriginalFilename: po.OriginalFilename,
		ContentType:      po.ContentType,
		SizeBytes:        po.SizeBytes,
		ContentHash:      po.ContentHash,
		IsDuplicate:      po.IsDuplicate,
		OriginalFileID:   po.OriginalFileID,
		UploadedAt:       po.UploadedAt.UTC(),
	}
	if po.StorageKey != nil {
		rec.StorageKey = *po.StorageKey
	}
	return rec
}

// Create 创建文件记录
func (r *FileRepo) Create(ctx context.Context, rec *biz.FileRecord) error {
	err := r.db.WithContext(ctx).Create(toFilePO(rec)).Error
	switch {
	case err == nil:
		return nil
	case database.IsDuplicateKeyError(err), database.IsForeignKeyError(err):
		return fmt.Errorf("%w: %v", biz.ErrRaceLost, err)
	default:
		return fmt.Errorf("failed to create file record: %w", err)
	}
}

// GetByID 根据ID获取文件记录
func (r *FileRepo) GetByID(ctx context.Context, id string) (*biz.FileRecord, error) {
	return r.take(r.db.WithContext(ctx).Where("id = ?", id), id)
}

// GetByIDForUpdate 获取并锁定文件记录（sqlite 为单写者，无需行锁）
func (r *FileRepo) GetByIDForUpdate(ctx context.Context, id string) (*biz.FileRecord, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialect() == database.DriverPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.take(q.Where("id = ?", id), id)
}

// GetOwnerByHash 查找持有该内容的记录
func (r *FileRepo) GetOwnerByHash(ctx context.Context, hash string) (*biz.FileRecord, error) {
	return r.take(r.db.WithContext(ctx).Where("content_hash = ? AND is_duplicate = ?", hash, false), hash)
}

func (r *FileRepo) take(q *gorm.DB, ref string) (*biz.FileRecord, error) {
	var po models.File
	if err := q.Take(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("file %s: %w", ref, biz.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	return toFileRecord(&po), nil
}

// CountReferents 统计指向该所有者的重复记录数
func (r *FileRepo) CountReferents(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.File{}).
		Where("original_file_id = ?", ownerID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count referents: %w", err)
	}
	return n, nil
}

// Delete 删除文件记录
func (r *FileRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.File{})
	if res.Error != nil {
		if database.IsForeignKeyError(res.Error) {
			return fmt.Errorf("file %s still has duplicate records: %w", id, biz.ErrConflict)
		}
		return fmt.Errorf("failed to delete file record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("file %s: %w", id, biz.ErrNotFound)
	}
	return nil
}

var orderColumns = map[biz.OrderField]string{
	biz.OrderUploadedAt:       "uploaded_at",
	biz.OrderOriginalFilename: "original_filename",
	biz.OrderSize:             "size_bytes",
}

// List 按条件分页查询
func (r *FileRepo) List(ctx context.Context, q *biz.ListQuery) ([]*biz.FileRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.File{})
	for _, p := range q.Predicates {
		query = applyPredicate(query, p)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	column, ok := orderColumns[q.Order.Field]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unsupported ordering %q", biz.ErrInvalidInput, q.Order.Field)
	}

	var pos []*models.File
	err := query.
		Scopes(
			database.OrderBy(column, q.Order.Desc),
			database.OrderBy("id", false),
			database.Paginate(q.Page, q.PageSize),
		).
		Find(&pos).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}

	records := make([]*biz.FileRecord, 0, len(pos))
	for _, po := range pos {
		records = append(records, toFileRecord(po))
	}
	return records, total, nil
}

func applyPredicate(q *gorm.DB, p biz.Predicate) *gorm.DB {
	switch p.Kind {
	case biz.PredFilenameContains:
		return q.Where(`LOWER(original_filename) LIKE ? ESCAPE '\'`, containsPattern(p.Text))
	case biz.PredContentTypeContains:
		return q.Where(`LOWER(content_type) LIKE ? ESCAPE '\'`, containsPattern(p.Text))
	case biz.PredSizeAtLeast:
		return q.Where("size_bytes >= ?", p.Size)
	case biz.PredSizeAtMost:
		return q.Where("size_bytes <= ?", p.Size)
	case biz.PredUploadedAfter:
		return q.Where("uploaded_at >= ?", p.Time.UTC())
	case biz.PredUploadedBefore:
		return q.Where("uploaded_at < ?", p.Time.UTC())
	case biz.PredDuplicateIs:
		return q.Where("is_duplicate = ?", p.Flag)
	default:
		return q
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// DistinctContentTypes 返回所有内容类型
func (r *FileRepo) DistinctContentTypes(ctx context.Context) ([]string, error) {
	types := []string{}
	err := r.db.WithContext(ctx).
		Model(&models.File{}).
		Distinct("content_type").
		Order("content_type").
		Pluck("content_type", &types).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list content types: %w", err)
	}
	return types, nil
}

// SizeHistogram 按大小区间计数
func (r *FileRepo) SizeHistogram(ctx context.Context, buckets []biz.SizeBucket) ([]biz.BucketCount, error) {
	out := make([]biz.BucketCount, 0, len(buckets))
	for _, b := range buckets {
		q := r.db.WithContext(ctx).Model(&models.File{}).Where("size_bytes >= ?", b.Min)
		if b.Max > 0 {
			q = q.Where("size_bytes < ?", b.Max)
		}

		var n int64
		if err := q.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count size range %s: %w", b.Label, err)
		}
		out = append(out, biz.BucketCount{Label: b.Label, Count: n})
	}
	return out, nil
}

// DateHistogram 按上传时间区间计数
func (r *FileRepo) DateHistogram(ctx context.Context, buckets []biz.DateBucket) ([]biz.BucketCount, error) {
	out := make([]biz.BucketCount, 0, len(buckets))
	for _, b := range buckets {
		q := r.db.WithContext(ctx).Model(&models.File{})
		if !b.From.IsZero() {
			q = q.Where("uploaded_at >= ?", b.From.UTC())
		}
		if !b.To.IsZero() {
			q = q.Where("uploaded_at < ?", b.To.UTC())
		}

		var n int64
		if err := q.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count date range %s: %w", b.Label, err)
		}
		out = append(out, biz.BucketCount{Label: b.Label, Count: n})
	}
	return out, nil
}
