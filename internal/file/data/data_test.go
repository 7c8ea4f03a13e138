package data_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	"github.com/lk2023060901/filevault-backend/internal/file/data"
	"github.com/lk2023060901/filevault-backend/internal/file/models"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database/dbtest"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	db := dbtest.NewSQLite(t)
	require.NoError(t, models.AutoMigrate(context.Background(), db))
	return db
}

func ownerRecord(hash, name, contentType string, size int64, at time.Time) *biz.FileRecord {
	return &biz.FileRecord{
		ID:               uuid.NewString(),
		StorageKey:       "files/" + hash + "/" + uuid.NewString(),
		OriginalFilename: name,
		ContentType:      contentType,
		SizeBytes:        size,
		ContentHash:      hash,
		UploadedAt:       at,
	}
}

func duplicateRecord(owner *biz.FileRecord, name string, at time.Time) *biz.FileRecord {
	id := owner.ID
	return &biz.FileRecord{
		ID:               uuid.NewString(),
		OriginalFilename: name,
		ContentType:      owner.ContentType,
		SizeBytes:        owner.SizeBytes,
		ContentHash:      owner.ContentHash,
		IsDuplicate:      true,
		OriginalFileID:   &id,
		UploadedAt:       at,
	}
}

func TestFileRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := data.NewFileRepo(setupDB(t))

	o := ownerRecord("aa11", "report.pdf", "application/pdf", 100, base)
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.StorageKey, got.StorageKey)
	assert.Equal(t, "report.pdf", got.OriginalFilename)
	assert.False(t, got.IsDuplicate)
	assert.Nil(t, got.OriginalFileID)
	assert.True(t, got.UploadedAt.Equal(base))

	byHash, err := repo.GetOwnerByHash(ctx, "aa11")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byHash.ID)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, biz.ErrNotFound)

	_, err = repo.GetOwnerByHash(ctx, "ffff")
	assert.ErrorIs(t, err, biz.ErrNotFound)
}

func TestFileRepo_SecondOwnerLosesRace(t *testing.T) {
	ctx := context.Background()
	repo := data.NewFileRepo(setupDB(t))

	require.NoError(t, repo.Create(ctx, ownerRecord("bb22", "a.txt", "text/plain", 5, base)))
	err := repo.Create(ctx, ownerRecord("bb22", "b.txt", "text/plain", 5, base))
	assert.ErrorIs(t, err, biz.ErrRaceLost)
}

func TestFileRepo_DuplicateOfMissingOwnerLosesRace(t *testing.T) {
	ctx := context.Background()
	repo := data.NewFileRepo(setupDB(t))

	ghost := ownerRecord("cc33", "ghost.txt", "text/plain", 5, base)
	err := repo.Create(ctx, duplicateRecord(ghost, "dup.txt", base))
	assert.ErrorIs(t, err, biz.ErrRaceLost)
}

func TestFileRepo_DeleteReferencedOwner(t *testing.T) {
	ctx := context.Background()
	repo := data.NewFileRepo(setupDB(t))

	o := ownerRecord("dd44", "a.txt", "text/plain", 5, base)
	d := duplicateRecord(o, "b.txt", base)
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.Create(ctx, d))

	n, err := repo.CountReferents(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = repo.Delete(ctx, o.ID)
	assert.ErrorIs(t, err, biz.ErrConflict)

	require.NoError(t, repo.Delete(ctx, d.ID))
	require.NoError(t, repo.Delete(ctx, o.ID))

	err = repo.Delete(ctx, o.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
}

func TestFileRepo_GetByIDForUpdate(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := data.NewFileRepo(db)

	o := ownerRecord("ee55", "a.txt", "text/plain", 5, base)
	require.NoError(t, repo.Create(ctx, o))

	err := db.Transaction(ctx, func(ctx context.Context) error {
		got, err := repo.GetByIDForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, o.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
}

func seedCatalog(t *testing.T, repo *data.FileRepo) (owners []*biz.FileRecord) {
	t.Helper()
	ctx := context.Background()

	a := ownerRecord("h1", "Report_2024.PDF", "application/pdf", 500, base.Add(-40*24*time.Hour))
	b := ownerRecord("h2", "photo.png", "image/png", 2<<20, base.Add(-3*24*time.Hour))
	c := ownerRecord("h3", "notes.txt", "text/plain", 10, base.Add(-time.Hour))
	for _, rec := range []*biz.FileRecord{a, b, c} {
		require.NoError(t, repo.Create(ctx, rec))
	}
	require.NoError(t, repo.Create(ctx, duplicateRecord(b, "copy of photo.png", base.Add(-10*24*time.Hour))))
	return []*biz.FileRecord{a, b, c}
}

func names(recs []*biz.FileRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.OriginalFilename)
	}
	return out
}

func TestFileRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := data.NewFileRepo(setupDB(t))
	seedCatalog(t, repo)

	tests := []struct {
		name  string
		query *biz.ListQuery
		want  []string
		total int64
	}{
		{
			name:  "default newest first",
			query: &biz.ListQuery{Order: biz.DefaultOrdering},
			want:  []string{"notes.txt", "photo.png", "copy of photo.png", "Report_2024.PDF"},
			total: 4,
		},
		{
			name:  "filename contains is case insensitive",
			query: &biz.ListQuery{Predicates: []biz.Predicate{biz.FilenameContains("report")}, Order: biz.DefaultOrdering},
			want:  []string{"Report_2024.PDF"},
			total: 1,
		},
		{
			name:  "underscore is literal",
			query: &biz.ListQuery{Predicates: []biz.Predicate{biz.FilenameContains("t_2")}, Order: biz.DefaultOrdering},
			want:  []string{"Report_2024.PDF"},
			total: 1,
		},
		{
			name:  "content type and duplicates",
			query: &biz.ListQuery{Predicates: []biz.Predicate{biz.ContentTypeContains("image"), biz.DuplicateIs(true)}, Order: biz.DefaultOrdering},
			want:  []string{"copy of photo.png"},
			total: 1,
		},
		{
			name:  "size range ascending",
			query: &biz.ListQuery{Predicates: []biz.Predicate{biz.SizeAtLeast(10), biz.SizeAtMost(500)}, Order: biz.Ordering{Field: biz.OrderSize}},
			want:  []string{"notes.txt", "Report_2024.PDF"},
			total: 2,
		},
		{
			name: "uploaded window",
			query: &biz.ListQuery{
				Predicates: []biz.Predicate{biz.UploadedAfter(base.Add(-11 * 24 * time.Hour)), biz.UploadedBefore(base.Add(-time.Hour))},
				Order:      biz.Ordering{Field: biz.OrderOriginalFilename},
			},
			want:  []string{"copy of photo.png", "photo.png"},
			total: 2,
		},
		{
			name:  "second page",
			query: &biz.ListQuery{Order: biz.DefaultOrdering, Page: 2, PageSize: 3},
			want:  []string{"Report_2024.PDF"},
			total: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.List(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestFileRepo_Facets(t *testing.T) {
	ctx := context.Background()
	repo := data.NewFileRepo(setupDB(t))
	seedCatalog(t, repo)

	types, err := repo.DistinctContentTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"application/pdf", "image/png", "text/plain"}, types)

	sizes, err := repo.SizeHistogram(ctx, biz.DefaultSizeBuckets)
	require.NoError(t, err)
	counts := map[string]int64{}
	var sum int64
	for _, b := range sizes {
		counts[b.Label] = b.Count
		sum += b.Count
	}
	assert.Equal(t, int64(4), sum)
	assert.Equal(t, int64(2), counts[biz.DefaultSizeBuckets[0].Label])
	assert.Equal(t, int64(2), counts[biz.DefaultSizeBuckets[2].Label])

	dates, err := repo.DateHistogram(ctx, biz.DateBuckets(base))
	require.NoError(t, err)
	require.Len(t, dates, 4)
	sum = 0
	for _, b := range dates {
		sum += b.Count
	}
	assert.Equal(t, int64(4), sum)
	assert.Equal(t, int64(1), dates[0].Count) // today
	assert.Equal(t, int64(1), dates[1].Count) // last 7 days
	assert.Equal(t, int64(1), dates[2].Count) // last 30 days
	assert.Equal(t, int64(1), dates[3].Count) // older
}

func TestStatsRepo(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	files := data.NewFileRepo(db)
	stats := data.NewStatsRepo(db)

	_, err := stats.Get(ctx)
	assert.ErrorIs(t, err, biz.ErrNotFound)

	empty, err := stats.Recompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalFiles)
	assert.Equal(t, int64(1), empty.Version)

	o := ownerRecord("ff66", "a.bin", "application/octet-stream", 10000, base)
	require.NoError(t, files.Create(ctx, o))
	require.NoError(t, files.Create(ctx, duplicateRecord(o, "b.bin", base)))

	snap, err := stats.Recompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), snap.TotalStorageUsed)
	assert.Equal(t, int64(10000), snap.TotalStorageSaved)
	assert.Equal(t, int64(2), snap.TotalFiles)
	assert.Equal(t, int64(1), snap.TotalUniqueFiles)
	assert.Equal(t, int64(2), snap.Version)
	assert.False(t, snap.Stale)

	require.NoError(t, stats.MarkStale(ctx))
	stored, err := stats.Get(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Stale)
	assert.Equal(t, int64(10000), stored.TotalStorageSaved)

	again, err := stats.Recompute(ctx)
	require.NoError(t, err)
	assert.False(t, again.Stale)
	assert.Equal(t, snap.TotalStorageUsed, again.TotalStorageUsed)
	assert.Equal(t, snap.TotalStorageSaved, again.TotalStorageSaved)
	assert.Equal(t, int64(3), again.Version)
}

func TestLocalBlobStore(t *testing.T) {
	ctx := context.Background()
	store, err := data.NewLocalBlobStore(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	payload := []byte("hello content addressed world")
	k1, err := store.Put(ctx, "abcdef", bytes.NewReader(payload), int64(len(payload)), "text/plain")
	require.NoError(t, err)
	k2, err := store.Put(ctx, "abcdef", bytes.NewReader(payload), int64(len(payload)), "text/plain")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(k1, "files/ab/abcdef/"))
	assert.NotEqual(t, k1, k2)

	rc, err := store.Get(ctx, k1)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, k1))
	assert.ErrorIs(t, store.Delete(ctx, k1), biz.ErrBlobNotFound)
	_, err = store.Get(ctx, k1)
	assert.ErrorIs(t, err, biz.ErrBlobNotFound)

	// 另一个键不受影响
	rc, err = store.Get(ctx, k2)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestLocalBlobStore_RejectsShortWriteAndEscapes(t *testing.T) {
	ctx := context.Background()
	store, err := data.NewLocalBlobStore(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	_, err = store.Put(ctx, "abcdef", strings.NewReader("abc"), 10, "text/plain")
	assert.ErrorIs(t, err, biz.ErrStorageMedium)

	_, err = store.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, biz.ErrStorageMedium)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Put(cancelled, "abcdef", strings.NewReader("abc"), 3, "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}
