package biz

import (
	"errors"
	"fmt"
)

// 文件相关错误
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrStorageMedium  = errors.New("storage medium error")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not found")
	ErrContentMissing = fmt.Errorf("content missing from storage: %w", ErrNotFound)

	// ErrRaceLost is returned by FileRepo.Create when a concurrent upload
	// already owns the hash, or the owner vanished under a duplicate insert.
	// The upload path recovers from it; callers never see it.
	ErrRaceLost = errors.New("lost owner race")

	// ErrBlobNotFound is returned by BlobStore for an unknown storage key
	ErrBlobNotFound = errors.New("blob not found")
)

// ReferencedError reports an owning record that still has duplicate referents
type ReferencedError struct {
	FileID    string
	Referents int64
}

func (e *ReferencedError) Error() string {
	return fmt.Sprintf("file %s is referenced by %d duplicate record(s)", e.FileID, e.Referents)
}

func (e *ReferencedError) Unwrap() error {
	return ErrConflict
}
