// Package tombstone implements the persisted delete bitset of a segment.
//
// Deleting a document never rewrites the segment; instead the document's
// bit is recorded in a tombstone file and index scans skip it. The file
// format is a headerless packed bit buffer of exactly ceil(maxDoc/8)
// bytes: bit i, LSB-first within byte i/8, is set iff document i is
// deleted.
//
// maxDoc itself is not stored in the file; segment metadata (see package
// manifest) is responsible for tracking it. As a consequence a buffer
// produced by Merge can be longer than either operand's original maxDoc,
// and NumDeleted counts every physically set bit, including any past a
// caller-tracked maxDoc.
package tombstone

import (
	"bytes"
	"io"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Mesteery/tantivy-1/directory"
	"github.com/Mesteery/tantivy-1/model"
)

// Write encodes the set of deleted documents to w.
//
// Exactly ceil(maxDoc/8) bytes are written, in ascending byte order. Every
// ID in deleted must be < maxDoc; that is the caller's contract, not
// checked here. Write does not flush or close w — the caller is in charge
// of finalizing the sink. The first write error aborts and is returned
// unmodified.
func Write(deleted *roaring.Bitmap, maxDoc uint32, w io.Writer) error {
	var (
		scratch [1]byte
		b       byte
		shift   uint8
	)
	for doc := uint32(0); doc < maxDoc; doc++ {
		if deleted.Contains(doc) {
			b |= 1 << shift
		}
		if shift == 7 {
			scratch[0] = b
			if _, err := w.Write(scratch[:]); err != nil {
				return err
			}
			shift = 0
			b = 0
		} else {
			shift++
		}
	}
	if maxDoc%8 > 0 {
		scratch[0] = b
		if _, err := w.Write(scratch[:]); err != nil {
			return err
		}
	}
	return nil
}

// Bitset is the set of deleted DocIDs of one segment.
//
// It is immutable after construction and may be shared freely across
// goroutines without locking. The cached deleted count is always the exact
// population count of the packed buffer.
type Bitset struct {
	data       directory.OwnedBytes
	numDeleted int
}

// FromBitmap builds a Bitset directly from a live deleted-ID set.
func FromBitmap(deleted *roaring.Bitmap, maxDoc uint32) *Bitset {
	var buf bytes.Buffer
	buf.Grow(int(maxDoc+7) / 8)
	// A bytes.Buffer write cannot fail.
	_ = Write(deleted, maxDoc, &buf)

	return &Bitset{
		data:       directory.NewOwnedBytes(buf.Bytes()),
		numDeleted: int(deleted.GetCardinality()),
	}
}

// Open reads a tombstone file from blob and takes ownership of the handle.
// Mappable blobs are borrowed zero-copy; the mapping stays open until
// Close. The deleted count is derived by popcounting every byte of the
// buffer.
func Open(blob directory.Blob) (*Bitset, error) {
	data, err := directory.OpenOwned(blob)
	if err != nil {
		return nil, err
	}

	numDeleted := 0
	for _, b := range data.Slice() {
		numDeleted += bits.OnesCount8(b)
	}

	return &Bitset{data: data, numDeleted: numDeleted}, nil
}

// Merge combines two delete bitsets into a new one covering the union of
// their deleted sets.
//
// The result buffer is max(len(left), len(right)) bytes; bytes past a
// shorter operand's length are treated as all-zero, which is exactly right
// when that operand's segment had a smaller maxDoc. Neither input is
// mutated and the result shares no storage with them.
func Merge(left, right *Bitset) *Bitset {
	leftData := left.data.Slice()
	rightData := right.data.Slice()

	merged := make([]byte, max(len(leftData), len(rightData)))
	copy(merged, leftData)
	for i, b := range rightData {
		merged[i] |= b
	}

	numDeleted := 0
	for _, b := range merged {
		numDeleted += bits.OnesCount8(b)
	}

	return &Bitset{
		data:       directory.NewOwnedBytes(merged),
		numDeleted: numDeleted,
	}
}

// IsDeleted reports whether doc has been marked as deleted.
//
// The caller must keep doc within the segment's maxDoc; querying past the
// buffer is a contract violation and panics with an index error.
func (b *Bitset) IsDeleted(doc model.DocID) bool {
	byt := b.data.Slice()[doc/8]
	return byt&(1<<(doc&7)) != 0
}

// IsAlive reports whether doc has not been deleted.
func (b *Bitset) IsAlive(doc model.DocID) bool {
	return !b.IsDeleted(doc)
}

// NumDeleted returns the number of deleted documents. O(1).
func (b *Bitset) NumDeleted() int {
	return b.numDeleted
}

// Len returns the number of deleted documents, like NumDeleted. The
// "length" of a tombstone set is its cardinality, not its byte size.
func (b *Bitset) Len() int {
	return b.numDeleted
}

// SpaceUsage returns the byte size of the packed buffer.
func (b *Bitset) SpaceUsage() model.ByteCount {
	return model.ByteCount(b.data.Len())
}

// Close releases the underlying buffer; for storage-backed bitsets this
// lets the storage layer reclaim the mapping once every holder is done.
// Close is idempotent.
func (b *Bitset) Close() error {
	b.data.Release()
	b.data = directory.OwnedBytes{}
	b.numDeleted = 0
	return nil
}
