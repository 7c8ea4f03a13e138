package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/filevault-backend/internal/file/models"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func owner(hash string) *models.File {
	key := "files/" + hash
	return &models.File{
		ID:               uuid.NewString(),
		StorageKey:       &key,
		OriginalFilename: "a.txt",
		ContentType:      "text/plain",
		SizeBytes:        10,
		ContentHash:      hash,
		UploadedAt:       time.Now().UTC(),
	}
}

func duplicateOf(o *models.File) *models.File {
	id := o.ID
	return &models.File{
		ID:               uuid.NewString(),
		OriginalFilename: "b.txt",
		ContentType:      o.ContentType,
		SizeBytes:        o.SizeBytes,
		ContentHash:      o.ContentHash,
		IsDuplicate:      true,
		OriginalFileID:   &id,
		UploadedAt:       time.Now().UTC(),
	}
}

func TestOwnerHashIndex(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, models.AutoMigrate(ctx, db))

	first := owner("h1")
	require.NoError(t, db.WithContext(ctx).Create(first).Error)

	// a second owner for the same hash violates the partial unique index
	err := db.WithContext(ctx).Create(owner("h1")).Error
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKeyError(err))

	// any number of duplicates may share the hash
	require.NoError(t, db.WithContext(ctx).Create(duplicateOf(first)).Error)
	require.NoError(t, db.WithContext(ctx).Create(duplicateOf(first)).Error)

	// a different hash gets its own owner
	require.NoError(t, db.WithContext(ctx).Create(owner("h2")).Error)
}

func TestOwnerDeleteRestricted(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, models.AutoMigrate(ctx, db))

	first := owner("h1")
	require.NoError(t, db.WithContext(ctx).Create(first).Error)
	dup := duplicateOf(first)
	require.NoError(t, db.WithContext(ctx).Create(dup).Error)

	err := db.WithContext(ctx).Delete(&models.File{}, "id = ?", first.ID).Error
	require.Error(t, err)
	assert.True(t, database.IsForeignKeyError(err))

	require.NoError(t, db.WithContext(ctx).Delete(&models.File{}, "id = ?", dup.ID).Error)
	require.NoError(t, db.WithContext(ctx).Delete(&models.File{}, "id = ?", first.ID).Error)
}

func TestAutoMigrateIdempotent(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, models.AutoMigrate(ctx, db))
	require.NoError(t, models.AutoMigrate(ctx, db))
	assert.True(t, db.Migrator().HasIndex(&models.File{}, models.OwnerHashIndex))
}
