// Package manifest tracks the committed state of an index: the set of live
// segments, each segment's document count, and the tombstone file covering
// its deletions.
//
// Tombstone files do not record how many documents they cover, so MaxDoc
// lives here and must be passed back to readers that interpret the file.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Mesteery/tantivy-1/directory"
	"github.com/Mesteery/tantivy-1/model"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// Manifest describes the state of the index at a specific commit point.
type Manifest struct {
	Version       int             `json:"version"`
	ID            uint64          `json:"id"`
	NextSegmentID model.SegmentID `json:"next_segment_id"`
	Segments      []SegmentMeta   `json:"segments"`
	Opstamp       model.Opstamp   `json:"opstamp"`
}

// SegmentMeta describes a single segment.
type SegmentMeta struct {
	ID model.SegmentID `json:"id"`

	// MaxDoc is the number of documents in the segment. The tombstone
	// file format does not store it, so it is recorded here.
	MaxDoc uint32 `json:"max_doc"`

	// TombstonePath is the name of the segment's tombstone file within
	// the directory. Empty means the segment has no deletions.
	TombstonePath string `json:"tombstone_path,omitempty"`

	// DelOpstamp is the opstamp of the last deletion reflected in the
	// tombstone file.
	DelOpstamp model.Opstamp `json:"del_opstamp,omitempty"`
}

// Segment returns the metadata for the given segment, if present.
func (m *Manifest) Segment(id model.SegmentID) (SegmentMeta, bool) {
	for _, seg := range m.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return SegmentMeta{}, false
}

// Store manages manifest files and atomic updates within a directory.
type Store struct {
	dir directory.Directory
	mu  sync.Mutex
}

// NewStore creates a manifest store backed by dir.
func NewStore(dir directory.Directory) *Store {
	return &Store{dir: dir}
}

// Load reads the manifest named by the CURRENT pointer. A directory with
// no CURRENT file yields an empty manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readFile(ctx, CurrentFileName)
	if errors.Is(err, directory.ErrNotFound) {
		return &Manifest{Version: CurrentVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := s.readFile(ctx, string(current))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

// Save writes m as a new manifest file and flips the CURRENT pointer to
// it. The manifest ID is incremented on every save.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	filename := fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID)
	if err := s.dir.Put(ctx, filename, data); err != nil {
		return err
	}

	// The pointer flip is the commit point.
	return s.dir.Put(ctx, CurrentFileName, []byte(filename))
}

func (s *Store) readFile(ctx context.Context, name string) ([]byte, error) {
	blob, err := s.dir.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if _, err := io.ReadFull(io.NewSectionReader(blob, 0, blob.Size()), data); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}
