// Package blob exposes the blob storage abstraction and backend selection
// used for archiving pick worksheets and exported transfer files.
package blob

import (
	"context"
	"fmt"
	"os"

	"storagecore/internal/blob/core"
	"storagecore/internal/infra/blob/fs"
	"storagecore/internal/infra/blob/memory"
	"storagecore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation isn't supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// ErrNotFound indicates an unknown blob key.
var ErrNotFound = core.ErrNotFound

// Open selects a blob.Store implementation using environment variables.
//
//	STORAGECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	STORAGECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./worksheets)
//	(S3 specific variables documented in internal/infra/blob/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("STORAGECORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("STORAGECORE_BLOB_FS_ROOT")
		return fs.New(root)
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed store rooted at path.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory returns an in-memory store suitable for tests.
func NewMemory() Store { return memory.New() }

// NewS3 constructs an S3-backed store from explicit configuration.
func NewS3(ctx context.Context, cfg s3.Config) (Store, error) { return s3.New(ctx, cfg) }
