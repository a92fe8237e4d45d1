package cache

import (
	"context"
	"errors"
	"io"
	"os"
)

// Store is the disk-backed cache: a map from resource path to on-disk file,
// with atomic publish via temp file + rename.
//
//	<StoragePath>/cache/<resource>    # published, immutable once written
//	<StoragePath>/temp/*              # in-progress downloads, may be partial
type Store interface {
	// Exists reports whether resource has already been materialized locally.
	Exists(resource string) bool

	// Open returns a readable handle to a cached resource plus its size. The
	// caller must Close the returned reader. Returns ErrNotFound if absent.
	Open(resource string) (io.ReadCloser, int64, error)

	// NewTemp allocates a scratch file under temp/, on the same filesystem as
	// the cache so Publish can rename into place atomically. Callers must
	// eventually call either Publish or Discard with the returned path.
	NewTemp() (*os.File, error)

	// Publish moves the completed temp file to the final cache path for
	// resource, creating parent directories as needed and replacing any
	// existing file. Ownership of tempPath transfers to Publish: on success
	// it is gone (renamed); on failure it is removed.
	Publish(ctx context.Context, tempPath string, resource string) error

	// Discard removes a temp file that will not be published, e.g. because
	// the leader's download failed partway through.
	Discard(tempPath string)
}

// ErrNotFound is returned by Open when resource has no cached file.
var ErrNotFound = errors.New("cache: resource not found")
