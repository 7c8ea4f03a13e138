package data

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lk2023060901/filevault-backend/internal/conf"
	"github.com/lk2023060901/filevault-backend/internal/file/models"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewData_SQLiteAndLocalStorage(t *testing.T) {
	dir := t.TempDir()
	cfg, err := conf.LoadConfig("")
	require.NoError(t, err)
	cfg.Database.Driver = database.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(dir, "filevault.db")
	cfg.Database.LogLevel = "silent"
	cfg.Storage.LocalPath = filepath.Join(dir, "blobs")

	d, cleanup, err := NewData(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.NotNil(t, d.Blobs)
	assert.Nil(t, d.RedisClient)
	assert.Nil(t, d.MinIOClient)
	assert.Nil(t, d.StatsCache(cfg))
	assert.Nil(t, d.UploadLocker(cfg))
	assert.NoError(t, d.HealthCheck(context.Background()))
	assert.True(t, d.DB.Migrator().HasIndex(&models.File{}, models.OwnerHashIndex))
}
