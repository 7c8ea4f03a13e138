package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestConfig_Validate(t *testing.T) {
	sqliteCfg := database.DefaultConfig()
	sqliteCfg.Driver = database.DriverSQLite

	tests := []struct {
		name    string
		mutate  func(c *database.Config)
		wantErr bool
	}{
		{name: "default config", mutate: func(c *database.Config) {}},
		{name: "sqlite config", mutate: func(c *database.Config) { c.Driver = database.DriverSQLite }},
		{name: "unknown driver", mutate: func(c *database.Config) { c.Driver = "oracle" }, wantErr: true},
		{name: "missing host", mutate: func(c *database.Config) { c.Host = "" }, wantErr: true},
		{name: "invalid port", mutate: func(c *database.Config) { c.Port = 0 }, wantErr: true},
		{name: "invalid SSL mode", mutate: func(c *database.Config) { c.SSLMode = "sometimes" }, wantErr: true},
		{name: "invalid log level", mutate: func(c *database.Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *database.Config) {
			c.Driver = database.DriverSQLite
			c.SQLitePath = ""
		}, wantErr: true},
		{name: "idle exceeds open", mutate: func(c *database.Config) {
			c.MaxIdleConns = 100
			c.MaxOpenConns = 10
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := database.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := database.DefaultConfig()
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=filevault sslmode=disable TimeZone=UTC",
		cfg.DSN())
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{2, 10, 2, 10},
		{0, 10, 1, 10},
		{1, 0, 1, database.DefaultPageSize},
		{1, 500, 1, database.MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.page, tt.size), func(t *testing.T) {
			page, size := database.NormalizePage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSize, size)
		})
	}

	assert.Equal(t, int64(0), database.TotalPages(0, 10))
	assert.Equal(t, int64(1), database.TotalPages(10, 10))
	assert.Equal(t, int64(2), database.TotalPages(11, 10))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, database.IsDuplicateKeyError(nil))
	assert.True(t, database.IsDuplicateKeyError(gorm.ErrDuplicatedKey))
	assert.True(t, database.IsDuplicateKeyError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, database.IsDuplicateKeyError(errors.New("UNIQUE constraint failed: files.content_hash")))
	assert.False(t, database.IsDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, database.IsDuplicateKeyError(errors.New("connection refused")))
}

func TestIsForeignKeyError(t *testing.T) {
	assert.False(t, database.IsForeignKeyError(nil))
	assert.True(t, database.IsForeignKeyError(gorm.ErrForeignKeyViolated))
	assert.True(t, database.IsForeignKeyError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, database.IsForeignKeyError(errors.New("FOREIGN KEY constraint failed")))
	assert.False(t, database.IsForeignKeyError(&pgconn.PgError{Code: "23505"}))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, database.IsRetryableError(nil))
	assert.True(t, database.IsRetryableError(&pgconn.PgError{Code: "40001"}))
	assert.True(t, database.IsRetryableError(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, database.IsRetryableError(errors.New("database is locked")))
	assert.False(t, database.IsRetryableError(&pgconn.PgError{Code: "23505"}))
}

type widget struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"uniqueIndex"`
}

func TestTransactionAndSavepoint(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.AutoMigrate(ctx, &widget{}))

	err := db.Transaction(ctx, func(ctx context.Context) error {
		require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "a"}).Error)

		spErr := db.Savepoint(ctx, "sp_widget", func(ctx context.Context) error {
			require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "b"}).Error)
			return errors.New("discard b")
		})
		assert.EqualError(t, spErr, "discard b")

		return db.WithContext(ctx).Create(&widget{Name: "c"}).Error
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.WithContext(ctx).Model(&widget{}).Order("name").Pluck("name", &names).Error)
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestTransactionRollback(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.AutoMigrate(ctx, &widget{}))

	err := db.Transaction(ctx, func(ctx context.Context) error {
		require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "a"}).Error)
		return db.WithContext(ctx).Create(&widget{Name: "a"}).Error
	})
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKeyError(err))

	var count int64
	require.NoError(t, db.WithContext(ctx).Model(&widget{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSavepointRequiresTransaction(t *testing.T) {
	db := dbtest.NewSQLite(t)
	err := db.Savepoint(context.Background(), "sp", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestExecuteWithRetry(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.AutoMigrate(ctx, &widget{}))

	attempts := 0
	err := db.ExecuteWithRetry(ctx, 3, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return db.WithContext(ctx).Create(&widget{Name: "a"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	attempts = 0
	err = db.ExecuteWithRetry(ctx, 3, func(ctx context.Context) error {
		attempts++
		return errors.New("not retryable")
	})
	assert.EqualError(t, err, "not retryable")
	assert.Equal(t, 1, attempts)
}
