// Package blob selects the archive storage backend. It is the only package
// allowed to import the concrete drivers under internal/infra/blob.
package blob

import (
	"context"
	"fmt"

	"raffleledger/internal/blob/core"
	"raffleledger/internal/infra/blob/fs"
	"raffleledger/internal/infra/blob/memory"
	"raffleledger/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// Info describes stored blob metadata.
	Info = core.Info
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// Config selects and parameterises a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// S3Config is the subset of S3 settings exposed through configuration.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Open returns the backend named by cfg.Driver (filesystem when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
