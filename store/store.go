// Package store persists dataset snapshots as named objects on the local
// filesystem, in S3 compatible object storage or in memory.
package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a Store implementation
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default)
	DriverS3         Driver = "s3"     // AWS S3 or MinIO
	DriverMemory     Driver = "memory" // process memory (tests)
)

// ErrNotFound is returned by Get and Head when the key holds no object
var ErrNotFound = errors.New("store: object not found")

// Info describes a stored object
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store keeps whole objects under keys. Put replaces any previous object,
// so readers never observe a partially written snapshot.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}
