// Package model defines the core identifier types shared across the
// index: per-segment document IDs, segment IDs, and opstamps.
package model

// DocID is a dense, zero-based identifier for a document within a single
// segment's ID space. It is strictly 32-bit and transient: compaction may
// reassign it. Used for all hot-path structures (tombstones, posting lists).
type DocID uint32

// MaxDocID is the maximum possible value for a DocID.
const MaxDocID = ^DocID(0)

// SegmentID is the unique identifier for a segment within an index.
type SegmentID uint64

// Opstamp is a monotonically increasing stamp assigned to every mutating
// operation. Tombstone files are snapshots of the delete state "as of" a
// given opstamp.
type Opstamp uint64

// ByteCount is an amount of storage space, in bytes.
type ByteCount uint64
