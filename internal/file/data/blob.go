package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/minio"
	"go.uber.org/zap"
)

// blobKey 生成存储键：files/{hash[:2]}/{hash}/{uuid}。
// 每次提升都使用新键，竞争失败方清理自己的对象时不会误删获胜方的。
func blobKey(hash string) string {
	prefix := hash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return fmt.Sprintf("files/%s/%s/%s", prefix, hash, uuid.NewString())
}

// LocalBlobStore 本地文件系统存储
type LocalBlobStore struct {
	root   string
	logger *logger.Logger
}

// NewLocalBlobStore 创建本地存储，root 不存在时自动创建
func NewLocalBlobStore(root string, log *logger.Logger) (*LocalBlobStore, error) {
	if root == "" {
		return nil, errors.New("local blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &LocalBlobStore{root: abs, logger: log.Named("blob.local")}, nil
}

var _ biz.BlobStore = (*LocalBlobStore)(nil)

func (s *LocalBlobStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if key == "" || !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid storage key %q", biz.ErrStorageMedium, key)
	}
	return p, nil
}

// Put 先写临时文件再原子重命名
func (s *LocalBlobStore) Put(ctx context.Context, hash string, r io.Reader, size int64, _ string) (string, error) {
	key := blobKey(hash)
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	if size >= 0 && n != size {
		return "", fmt.Errorf("%w: wrote %d of %d bytes", biz.ErrStorageMedium, n, size)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	committed = true

	s.logger.WithContext(ctx).Debug("blob stored", zap.String("key", key), zap.Int64("size", n))
	return key, nil
}

// Get 打开存储对象
func (s *LocalBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, biz.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	return f, nil
}

// Delete 删除存储对象并清理空目录
func (s *LocalBlobStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", key, biz.ErrBlobNotFound)
		}
		return fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}

	// 目录非空时 Remove 失败，忽略即可
	for dir := filepath.Dir(p); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}

	s.logger.WithContext(ctx).Debug("blob deleted", zap.String("key", key))
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// MinioBlobStore MinIO 对象存储
type MinioBlobStore struct {
	client *minio.Client
}

// NewMinioBlobStore 创建 MinIO 存储
func NewMinioBlobStore(client *minio.Client) *MinioBlobStore {
	return &MinioBlobStore{client: client}
}

var _ biz.BlobStore = (*MinioBlobStore)(nil)

// Put 上传对象
func (s *MinioBlobStore) Put(ctx context.Context, hash string, r io.Reader, size int64, contentType string) (string, error) {
	key := blobKey(hash)
	if _, err := s.client.PutObject(ctx, key, r, size, contentType); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	return key, nil
}

// Get 下载对象
func (s *MinioBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, _, err := s.client.GetObject(ctx, key)
	if err != nil {
		if minio.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, biz.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	return rc, nil
}

// Delete 删除对象
func (s *MinioBlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, key); err != nil {
		if minio.IsNotFound(err) {
			return fmt.Errorf("%s: %w", key, biz.ErrBlobNotFound)
		}
		return fmt.Errorf("%w: %v", biz.ErrStorageMedium, err)
	}
	return nil
}
