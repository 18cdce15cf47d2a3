// Package directory abstracts the byte storage under an index.
//
// A Directory hands out read capabilities (Blob) and write capabilities
// (WritableBlob) for named, immutable files. Implementations must be safe
// for concurrent use.
//
// Built-in implementations:
//
//   - RAMDirectory: in-memory, for tests and ephemeral indexes
//   - MmapDirectory: local filesystem, mmap reads, atomic writes
//   - Throttled: wraps another Directory with a byte-rate limit
//   - minio.Directory, s3.Directory: object storage backends
package directory

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a named file does not exist.
//
// Implementations should return an error satisfying
// `errors.Is(err, ErrNotFound)`. The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Directory is the storage abstraction for immutable index files.
type Directory interface {
	// Open opens an existing file for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a new file for streaming writes.
	// The file becomes visible to Open only after Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a file atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all files with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a file.
type Blob interface {
	io.ReaderAt
	io.Closer

	// Size returns the size of the file in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs whose bytes can be exposed
// without copying. The slice is valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// WritableBlob is a write-once handle to a new file.
// Close finalizes the file; an unfinished blob must not become visible.
type WritableBlob interface {
	io.Writer

	// Sync makes previously written bytes durable where the backend
	// supports it. Object stores treat this as a no-op.
	Sync() error

	io.Closer
}
