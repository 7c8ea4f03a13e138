// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

// NewSQLite opens a file-backed sqlite database under t.TempDir and closes it on cleanup
func NewSQLite(t testing.TB) *database.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Driver = database.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "test.db")
	cfg.LogLevel = "silent"
	cfg.PrepareStmt = false

	db, err := database.New(cfg, logger.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
