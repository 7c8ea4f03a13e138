// Package hasher spools an upload to a temporary file while computing its
// content digest, so the bytes are read from the client exactly once.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Supported digest algorithms
const (
	SHA256  = "sha256"
	BLAKE3  = "blake3"
	BLAKE2B = "blake2b"
)

// DefaultChunkSize is the read size used while spooling
const DefaultChunkSize = 64 * 1024

// HeadSize is how many leading bytes are kept for content sniffing
const HeadSize = 512

// ErrEmpty is returned for zero-length input
var ErrEmpty = errors.New("hasher: empty content")

// ErrRead wraps failures reading the upload stream
var ErrRead = errors.New("hasher: read upload")

// ErrUnsupportedAlgorithm is returned by New for an unknown algorithm name
var ErrUnsupportedAlgorithm = errors.New("hasher: unsupported algorithm")

// Hasher computes content digests with a fixed algorithm
type Hasher struct {
	algorithm string
	chunkSize int
	spoolDir  string
}

// New returns a Hasher. An empty spoolDir uses os.TempDir.
func New(algorithm string, chunkSize int, spoolDir string) (*Hasher, error) {
	if algorithm == "" {
		algorithm = SHA256
	}
	if _, err := newDigest(algorithm); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if spoolDir != "" {
		if err := os.MkdirAll(spoolDir, 0o755); err != nil {
			return nil, fmt.Errorf("hasher: create spool dir: %w", err)
		}
	}

	return &Hasher{
		algorithm: algorithm,
		chunkSize: chunkSize,
		spoolDir:  spoolDir,
	}, nil
}

// Algorithm returns the digest algorithm name
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

func newDigest(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	case BLAKE2B:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// Spool is a temporary copy of an upload together with its digest
type Spool struct {
	Path string
	Hash string
	Size int64
	Head []byte
}

// Open reopens the spooled bytes from the start
func (s *Spool) Open() (*os.File, error) {
	return os.Open(s.Path)
}

// Close removes the spool file. Calling it more than once is safe.
func (s *Spool) Close() error {
	if s == nil || s.Path == "" {
		return nil
	}
	err := os.Remove(s.Path)
	s.Path = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Spool copies r into a temporary file in fixed-size chunks while hashing it.
// ctx is checked between chunks. On error nothing is left on disk.
func (h *Hasher) Spool(ctx context.Context, r io.Reader) (_ *Spool, err error) {
	digest, err := newDigest(h.algorithm)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(h.spoolDir, "upload-*.part")
	if err != nil {
		return nil, fmt.Errorf("hasher: create spool file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("hasher: close spool file: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	head := make([]byte, 0, HeadSize)
	w := io.MultiWriter(f, digest)
	buf := make([]byte, h.chunkSize)
	var size int64

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return nil, fmt.Errorf("hasher: write spool file: %w", werr)
			}
			if room := HeadSize - len(head); room > 0 {
				head = append(head, buf[:min(n, room)]...)
			}
			size += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, rerr)
		}
	}

	if size == 0 {
		return nil, ErrEmpty
	}

	return &Spool{
		Path: f.Name(),
		Hash: hex.EncodeToString(digest.Sum(nil)),
		Size: size,
		Head: head,
	}, nil
}

// HashReader digests r without spooling it
func (h *Hasher) HashReader(r io.Reader) (string, int64, error) {
	digest, err := newDigest(h.algorithm)
	if err != nil {
		return "", 0, err
	}
	n, err := io.CopyBuffer(digest, r, make([]byte, h.chunkSize))
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(digest.Sum(nil)), n, nil
}
