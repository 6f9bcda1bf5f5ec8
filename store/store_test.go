package store

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s Store, key string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "snapshots/long.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Head(ctx, "snapshots/long.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	info, err := s.Put(ctx, "snapshots/long.csv", strings.NewReader("first"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "snapshots/long.csv", info.Key)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "first", readAll(t, s, "snapshots/long.csv"))

	// Put replaces
	_, err = s.Put(ctx, "snapshots/long.csv", strings.NewReader("second!"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "second!", readAll(t, s, "snapshots/long.csv"))

	head, err := s.Head(ctx, "snapshots/long.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(7), head.Size)

	ok, err := s.Delete(ctx, "snapshots/long.csv")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "snapshots/long.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	assert.Equal(t, DriverMemory, s.Driver())
	exerciseStore(t, s)
}

func TestFilesystemStore(t *testing.T) {
	s, err := NewFilesystem(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())
	exerciseStore(t, s)
}

func TestFilesystemRejectsBadKeys(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "  ", "/etc/passwd", "../escape.csv", "a/../../b"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.Put(ctx, "k", strings.NewReader("abc"), "")
	require.NoError(t, err)

	rc, err := s.Get(ctx, "k")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	b[0] = 'z'
	assert.Equal(t, "abc", readAll(t, s, "k"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err, "s3 without bucket")

	_, err = Open(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}

func TestS3ObjectKey(t *testing.T) {
	s := NewS3FromClient(nil, "bucket", "/factsync/")
	assert.Equal(t, "factsync/fundamentals_long.csv", s.objectKey("fundamentals_long.csv"))

	s = NewS3FromClient(nil, "bucket", "")
	assert.Equal(t, "fundamentals_long.csv", s.objectKey("fundamentals_long.csv"))
}
