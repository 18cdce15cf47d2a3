package manifest

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Mesteery/tantivy-1/directory"
	"github.com/Mesteery/tantivy-1/model"
	"github.com/Mesteery/tantivy-1/tombstone"
)

// LoadTombstones opens the tombstone file of every segment in m and
// returns the resulting bitsets keyed by segment ID. Segments without a
// tombstone path are skipped. On error, any bitsets opened so far are
// released.
func LoadTombstones(ctx context.Context, dir directory.Directory, m *Manifest) (map[model.SegmentID]*tombstone.Bitset, error) {
	var mu sync.Mutex
	result := make(map[model.SegmentID]*tombstone.Bitset)

	g, ctx := errgroup.WithContext(ctx)
	for _, seg := range m.Segments {
		if seg.TombstonePath == "" {
			continue
		}
		g.Go(func() error {
			blob, err := dir.Open(ctx, seg.TombstonePath)
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.ID, err)
			}
			bs, err := tombstone.Open(blob)
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.ID, err)
			}
			mu.Lock()
			result[seg.ID] = bs
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, bs := range result {
			bs.Close()
		}
		return nil, err
	}
	return result, nil
}
