package directory

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Mesteery/tantivy-1/internal/mmap"
)

const tmpSuffix = ".tmp"

// MmapDirectory is a Directory over a local filesystem root.
//
// Reads are served from memory-mapped files, so Blobs opened here are
// Mappable and support zero-copy borrowing. Writes go to a temp file and
// are renamed into place on Close, then the directory is fsynced, so a
// file is either fully visible or absent.
type MmapDirectory struct {
	root string
}

// NewMmapDirectory creates the root directory if needed and returns a
// Directory over it.
func NewMmapDirectory(root string) (*MmapDirectory, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory root: %w", err)
	}
	return &MmapDirectory{root: root}, nil
}

// Open opens a file for reading via mmap.
func (d *MmapDirectory) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(filepath.Join(d.root, name))
	if err != nil {
		return nil, err
	}
	return &localBlob{m: m}, nil
}

// Create creates a new file. Writes land in a temp file; Close renames it
// into place.
func (d *MmapDirectory) Create(_ context.Context, name string) (WritableBlob, error) {
	final := filepath.Join(d.root, name)
	tmp := final + tmpSuffix

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // G304: path is rooted
	if err != nil {
		return nil, err
	}
	return &localWritableBlob{f: f, tmp: tmp, final: final, root: d.root}, nil
}

// Put writes a file atomically.
func (d *MmapDirectory) Put(ctx context.Context, name string, data []byte) error {
	w, err := d.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Delete removes a file. Missing files are not an error.
func (d *MmapDirectory) Delete(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(d.root, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns all file names with the given prefix, sorted.
// In-flight temp files are hidden.
func (d *MmapDirectory) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) ReadAt(p []byte, off int64) (int, error) {
	return b.m.ReadAt(p, off)
}

func (b *localBlob) Size() int64 {
	return int64(b.m.Len())
}

// Bytes implements Mappable with the raw mapped bytes.
func (b *localBlob) Bytes() ([]byte, error) {
	return b.m.Bytes(), nil
}

func (b *localBlob) Close() error {
	return b.m.Close()
}

type localWritableBlob struct {
	f     *os.File
	tmp   string
	final string
	root  string
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *localWritableBlob) Sync() error {
	return w.f.Sync()
}

func (w *localWritableBlob) Close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.tmp)
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return err
	}
	if err := os.Rename(w.tmp, w.final); err != nil {
		_ = os.Remove(w.tmp)
		return err
	}
	return syncDir(w.root)
}

// syncDir persists a rename by fsyncing the containing directory.
func syncDir(dir string) error {
	f, err := os.Open(dir) //nolint:gosec // G304: path is rooted
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}

var _ io.ReaderAt = (*localBlob)(nil)
