package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spoolFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "upload-*.part"))
	require.NoError(t, err)
	return matches
}

func TestSpool(t *testing.T) {
	dir := t.TempDir()
	h, err := New(SHA256, 1024, dir)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("0123456789"), 1000)
	sp, err := h.Spool(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), sp.Hash)
	assert.Len(t, sp.Hash, 64)
	assert.Equal(t, int64(10000), sp.Size)
	assert.Equal(t, content[:HeadSize], sp.Head)

	f, err := sp.Open()
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, content, got)

	require.NoError(t, sp.Close())
	require.NoError(t, sp.Close())
	assert.Empty(t, spoolFiles(t, dir))
}

func TestSpoolSmallHead(t *testing.T) {
	h, err := New(SHA256, 4, t.TempDir())
	require.NoError(t, err)

	sp, err := h.Spool(context.Background(), strings.NewReader("hello"))
	require.NoError(t, err)
	defer sp.Close()

	assert.Equal(t, []byte("hello"), sp.Head)
	assert.Equal(t, int64(5), sp.Size)
}

func TestAlgorithms(t *testing.T) {
	tests := []struct {
		algorithm string
		hexLen    int
	}{
		{SHA256, 64},
		{BLAKE3, 64},
		{BLAKE2B, 64},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			h, err := New(tt.algorithm, 0, t.TempDir())
			require.NoError(t, err)

			a, _, err := h.HashReader(strings.NewReader("same bytes"))
			require.NoError(t, err)
			b, _, err := h.HashReader(strings.NewReader("same bytes"))
			require.NoError(t, err)
			c, _, err := h.HashReader(strings.NewReader("other bytes"))
			require.NoError(t, err)

			assert.Len(t, a, tt.hexLen)
			assert.Equal(t, a, b)
			assert.NotEqual(t, a, c)

			sp, err := h.Spool(context.Background(), strings.NewReader("same bytes"))
			require.NoError(t, err)
			defer sp.Close()
			assert.Equal(t, a, sp.Hash)
		})
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := New("md5", 0, "")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestSpoolEmpty(t *testing.T) {
	dir := t.TempDir()
	h, err := New(SHA256, 0, dir)
	require.NoError(t, err)

	_, err = h.Spool(context.Background(), bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Empty(t, spoolFiles(t, dir))
}

type failingReader struct {
	remaining int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), r.remaining)
	r.remaining -= n
	return n, nil
}

func TestSpoolReadErrorCleansUp(t *testing.T) {
	dir := t.TempDir()
	h, err := New(SHA256, 8, dir)
	require.NoError(t, err)

	_, err = h.Spool(context.Background(), &failingReader{remaining: 100})
	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, spoolFiles(t, dir))
}

func TestSpoolCancelledCleansUp(t *testing.T) {
	dir := t.TempDir()
	h, err := New(SHA256, 8, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Spool(ctx, strings.NewReader("never read"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, spoolFiles(t, dir))
}

func TestNewCreatesSpoolDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "spool")
	_, err := New(SHA256, 0, dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
