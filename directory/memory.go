package directory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// RAMDirectory is an in-memory Directory for tests and ephemeral indexes.
// Thread-safe for concurrent reads and writes.
type RAMDirectory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewRAMDirectory creates an empty in-memory directory.
func NewRAMDirectory() *RAMDirectory {
	return &RAMDirectory{
		files: make(map[string][]byte),
	}
}

// Open opens a file for reading.
func (d *RAMDirectory) Open(_ context.Context, name string) (Blob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, ok := d.files[name]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so later Puts under the same name cannot alias open readers.
	copied := make([]byte, len(data))
	copy(copied, data)

	return &ramBlob{data: copied}, nil
}

// Create creates a new writable file.
func (d *RAMDirectory) Create(_ context.Context, name string) (WritableBlob, error) {
	return &ramWritableBlob{dir: d, name: name}, nil
}

// Put writes a file atomically.
func (d *RAMDirectory) Put(_ context.Context, name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	d.files[name] = copied
	return nil
}

// Delete removes a file.
func (d *RAMDirectory) Delete(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.files, name)
	return nil
}

// List returns all file names with the given prefix, sorted.
func (d *RAMDirectory) List(_ context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for name := range d.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type ramBlob struct {
	data []byte
}

func (b *ramBlob) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *ramBlob) Size() int64 {
	return int64(len(b.data))
}

// Bytes implements Mappable. The blob owns a private copy, so exposing it
// without another copy is safe.
func (b *ramBlob) Bytes() ([]byte, error) {
	return b.data, nil
}

func (b *ramBlob) Close() error {
	return nil
}

type ramWritableBlob struct {
	dir  *RAMDirectory
	name string
	buf  bytes.Buffer
}

func (w *ramWritableBlob) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *ramWritableBlob) Sync() error {
	return nil
}

func (w *ramWritableBlob) Close() error {
	w.dir.mu.Lock()
	defer w.dir.mu.Unlock()

	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.dir.files[w.name] = data
	return nil
}
