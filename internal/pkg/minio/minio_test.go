package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.AccessKeyID = "minioadmin"
		cfg.SecretAccessKey = "minioadmin"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: true},
		{name: "missing access key", mutate: func(c *Config) { c.AccessKeyID = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.SecretAccessKey = "" }, wantErr: true},
		{name: "missing bucket", mutate: func(c *Config) { c.Bucket = "" }, wantErr: true},
		{name: "bad lookup", mutate: func(c *Config) { c.BucketLookup = "virtual" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.True(t, IsNotFound(ErrObjectNotFound))
	assert.True(t, IsNotFound(WrapError("GetObject", ErrObjectNotFound, "b", "o")))
	assert.True(t, IsNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, IsNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, IsNotFound(errors.New("timeout")))
}

func TestClassify(t *testing.T) {
	err := classify("StatObject", minio.ErrorResponse{Code: "NoSuchKey"}, "bucket", "key")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, "minio: StatObject failed for bucket=bucket, object=key: minio: object not found", err.Error())

	other := errors.New("connection reset")
	assert.ErrorIs(t, classify("GetObject", other, "bucket", "key"), other)
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(&Config{Endpoint: "localhost:9000"}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewClient(nil, logger.NewNop())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// Runs against a live MinIO when FILEVAULT_IT=1 (MINIO_ENDPOINT, default localhost:9000, minioadmin credentials).
func TestClientRoundTrip(t *testing.T) {
	if os.Getenv("FILEVAULT_IT") != "1" {
		t.Skip("set FILEVAULT_IT=1 to run against a live MinIO")
	}

	cfg := DefaultConfig()
	if ep := os.Getenv("MINIO_ENDPOINT"); ep != "" {
		cfg.Endpoint = ep
	}
	cfg.AccessKeyID = "minioadmin"
	cfg.SecretAccessKey = "minioadmin"
	cfg.Bucket = "filevault-it"

	client, err := NewClient(cfg, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.EnsureBucket(ctx))

	key := "it/" + uuid.NewString()
	payload := []byte("hello blob")
	_, err = client.PutObject(ctx, key, bytes.NewReader(payload), int64(len(payload)), "text/plain")
	require.NoError(t, err)

	rc, info, err := client.GetObject(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), info.Size)

	require.NoError(t, client.RemoveObject(ctx, key))
	assert.ErrorIs(t, client.RemoveObject(ctx, key), ErrObjectNotFound)

	_, _, err = client.GetObject(ctx, key)
	assert.True(t, IsNotFound(err))
}
