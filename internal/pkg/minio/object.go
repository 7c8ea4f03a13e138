package minio

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectInfo represents metadata of a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// PutObject uploads size bytes from reader under objectName in the configured bucket
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}
	if objectName == "" {
		return ObjectInfo{}, ErrInvalidObjectName
	}

	info, err := c.client.PutObject(ctx, c.config.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		c.logger.WithContext(ctx).Error("failed to upload object",
			zap.String("bucket", c.config.Bucket),
			zap.String("object", objectName),
			zap.Error(err),
		)
		return ObjectInfo{}, WrapError("PutObject", err, c.config.Bucket, objectName)
	}

	c.logger.WithContext(ctx).Debug("object uploaded",
		zap.String("object", objectName),
		zap.Int64("size", info.Size),
	)

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  contentType,
		LastModified: info.LastModified,
	}, nil
}

// GetObject opens objectName for reading. A missing object is reported with
// ErrObjectNotFound, checked eagerly so callers can tell before streaming.
func (c *Client) GetObject(ctx context.Context, objectName string) (io.ReadCloser, ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return nil, ObjectInfo{}, err
	}

	obj, err := c.client.GetObject(ctx, c.config.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classify("GetObject", err, c.config.Bucket, objectName)
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, classify("GetObject", err, c.config.Bucket, objectName)
	}

	return obj, toObjectInfo(stat), nil
}

// StatObject returns metadata for objectName
func (c *Client) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}

	stat, err := c.client.StatObject(ctx, c.config.Bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, classify("StatObject", err, c.config.Bucket, objectName)
	}
	return toObjectInfo(stat), nil
}

// RemoveObject deletes objectName. Removing a missing object reports ErrObjectNotFound.
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	if _, err := c.StatObject(ctx, objectName); err != nil {
		return err
	}

	if err := c.client.RemoveObject(ctx, c.config.Bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return classify("RemoveObject", err, c.config.Bucket, objectName)
	}

	c.logger.WithContext(ctx).Debug("object removed", zap.String("object", objectName))
	return nil
}

func toObjectInfo(stat minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ETag:         stat.ETag,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}
}

// classify maps minio "no such key" responses onto ErrObjectNotFound
func classify(op string, err error, bucket, object string) error {
	if IsNotFound(err) {
		return WrapError(op, ErrObjectNotFound, bucket, object)
	}
	return WrapError(op, err, bucket, object)
}
