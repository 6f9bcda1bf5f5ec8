package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// Config selects and configures a Store
type Config struct {
	Driver Driver // fs|s3|memory, default fs
	Root   string // Directory for the fs driver
	S3     S3Config
}

// Open returns the Store selected by cfg.Driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}
