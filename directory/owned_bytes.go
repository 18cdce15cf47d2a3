package directory

import (
	"io"

	"github.com/Mesteery/tantivy-1/internal/refcnt"
)

// OwnedBytes is an immutable byte buffer with shared ownership.
//
// A view constructed over storage-owned bytes (an mmap) keeps the backing
// Blob open until the last holder calls Release. Heap-backed buffers have
// no release action; Release is then a no-op.
type OwnedBytes struct {
	data []byte
	rc   *refcnt.Counter
}

// NewOwnedBytes wraps a heap-allocated buffer the caller hands over.
// The buffer must not be mutated afterwards.
func NewOwnedBytes(data []byte) OwnedBytes {
	return OwnedBytes{data: data}
}

// OpenOwned reads the full content of blob as an OwnedBytes view and takes
// ownership of the handle: blob is closed when the last holder releases the
// view (immediately, for non-mappable blobs, since those are copied out).
//
// Mappable blobs are borrowed zero-copy.
func OpenOwned(blob Blob) (OwnedBytes, error) {
	if m, ok := blob.(Mappable); ok {
		data, err := m.Bytes()
		if err == nil {
			rc := refcnt.New(func() { _ = blob.Close() })
			return OwnedBytes{data: data, rc: rc}, nil
		}
		// Fall back to a copying read.
	}

	size := blob.Size()
	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(blob, 0, size), data); err != nil {
		_ = blob.Close()
		return OwnedBytes{}, err
	}
	if err := blob.Close(); err != nil {
		return OwnedBytes{}, err
	}
	return OwnedBytes{data: data}, nil
}

// Slice returns the underlying bytes. The slice is valid until the last
// holder releases the view and must not be mutated.
func (b OwnedBytes) Slice() []byte {
	return b.data
}

// Len returns the length in bytes.
func (b OwnedBytes) Len() int {
	return len(b.data)
}

// Retain registers an additional holder and returns the same view.
func (b OwnedBytes) Retain() OwnedBytes {
	if b.rc != nil {
		b.rc.IncRef()
	}
	return b
}

// Release drops this holder's reference. The backing storage is closed
// when the last reference goes away.
func (b OwnedBytes) Release() {
	if b.rc != nil {
		b.rc.DecRef()
	}
}
