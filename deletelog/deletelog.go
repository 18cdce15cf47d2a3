// Package deletelog provides the append-only log of delete operations
// that accumulates between tombstone flushes.
//
// Tombstone files are write-once snapshots of a segment's delete state;
// deletions arriving after the last flush are recorded here first, each
// stamped with the operation's opstamp. On flush, Replay materializes the
// pending deletions as a bitmap up to a target opstamp, the tombstone file
// is rewritten, and Truncate drops the records the new file now covers.
//
// All operations are synchronous single calls: no background goroutines,
// no internal retries.
package deletelog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/Mesteery/tantivy-1/model"
)

// Record layout inside the (possibly compressed) stream:
// [Opstamp:8][DocID:4][CRC32:4], little-endian, CRC over the first 12 bytes.
const recordLen = 16

var (
	// ErrCorruptRecord is returned when a record fails its checksum.
	ErrCorruptRecord = errors.New("deletelog: corrupt record")

	// ErrOpstampOutOfOrder is returned when an append would go backwards
	// in opstamp order.
	ErrOpstampOutOfOrder = errors.New("deletelog: opstamp out of order")
)

// Op is a single recorded delete operation.
type Op struct {
	Opstamp model.Opstamp
	Doc     model.DocID
}

// Log is an append-only, opstamp-ordered delete log backed by one file.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	codec  Codec
	level  int
	sync   bool
	logger *slog.Logger

	// Write stack: writer -> bufw -> (zenc|lzw) -> file.
	writer io.Writer
	bufw   *bufio.Writer
	zenc   *zstd.Encoder
	lzw    *lz4.Writer

	zdec *zstd.Decoder // reused across replays

	dataOffset  int64
	lastOpstamp model.Opstamp
}

// Open opens or creates the delete log at path.
// An existing log keeps the codec from its header; Options.Codec only
// applies to newly created files.
func Open(path string, optFns ...func(o *Options)) (*Log, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: path is caller-controlled by design
	if err != nil {
		return nil, fmt.Errorf("failed to open delete log: %w", err)
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat delete log: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Log{
		file:   file,
		path:   path,
		codec:  opts.Codec,
		level:  opts.CompressionLevel,
		sync:   opts.Sync,
		logger: logger,
	}

	if st.Size() == 0 {
		n, err := writeHeader(file, headerInfo{Codec: l.codec, Level: l.level})
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		l.dataOffset = n
	} else {
		info, err := readHeader(file)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		l.codec = info.Codec
		l.level = info.Level
		l.dataOffset = headerLen
	}

	// Recover the high-water opstamp from existing records.
	records := 0
	if err := l.iterateLocked(func(op Op) error {
		l.lastOpstamp = op.Opstamp
		records++
		return nil
	}); err != nil {
		_ = file.Close()
		return nil, err
	}
	if records > 0 {
		l.logger.Debug("delete log opened",
			"path", path,
			"records", records,
			"last_opstamp", uint64(l.lastOpstamp),
		)
	}

	if err := l.initWriterLocked(l.file); err != nil {
		_ = file.Close()
		return nil, err
	}

	return l, nil
}

// initWriterLocked (re)builds the write stack on top of f.
// f's offset must already be positioned at the end of the stream.
func (l *Log) initWriterLocked(f *os.File) error {
	switch l.codec {
	case CodecZstd:
		level := zstd.EncoderLevelFromZstd(l.level)
		zenc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		l.zenc = zenc
		l.lzw = nil
		l.bufw = bufio.NewWriter(zenc)
	case CodecLZ4:
		l.lzw = lz4.NewWriter(f)
		l.zenc = nil
		l.bufw = bufio.NewWriter(l.lzw)
	default:
		l.zenc = nil
		l.lzw = nil
		l.bufw = bufio.NewWriter(f)
	}
	l.writer = l.bufw
	return nil
}

// Append records delete operations. Opstamps must be non-decreasing
// across the life of the log.
func (l *Log) Append(ops ...Op) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var rec [recordLen]byte
	for _, op := range ops {
		if op.Opstamp < l.lastOpstamp {
			return fmt.Errorf("%w: %d after %d", ErrOpstampOutOfOrder, op.Opstamp, l.lastOpstamp)
		}
		binary.LittleEndian.PutUint64(rec[0:8], uint64(op.Opstamp))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(op.Doc))
		binary.LittleEndian.PutUint32(rec[12:16], crc32.ChecksumIEEE(rec[:12]))
		if _, err := l.writer.Write(rec[:]); err != nil {
			return err
		}
		l.lastOpstamp = op.Opstamp
	}

	if l.sync {
		return l.syncLocked()
	}
	return nil
}

// Sync flushes buffered records and fsyncs the file.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

// LastOpstamp returns the opstamp of the most recent record.
func (l *Log) LastOpstamp() model.Opstamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastOpstamp
}

// Replay materializes every recorded deletion with opstamp <= upTo as a
// bitmap of DocIDs, ready to be written out as a tombstone file. It also
// returns the highest opstamp applied.
func (l *Log) Replay(upTo model.Opstamp) (*roaring.Bitmap, model.Opstamp, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return nil, 0, err
	}

	deleted := roaring.New()
	var applied model.Opstamp
	records := 0
	if err := l.iterateLocked(func(op Op) error {
		records++
		if op.Opstamp > upTo {
			return nil
		}
		deleted.Add(uint32(op.Doc))
		applied = op.Opstamp
		return nil
	}); err != nil {
		return nil, 0, err
	}

	l.logger.Debug("delete log replayed",
		"records", records,
		"deleted", deleted.GetCardinality(),
		"up_to", uint64(upTo),
	)
	return deleted, applied, nil
}

// Truncate drops every record with opstamp <= upTo. Call it after the
// tombstone snapshot covering upTo has been durably written. The log is
// atomically rewritten with the surviving records.
func (l *Log) Truncate(upTo model.Opstamp) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	var remaining []Op
	if err := l.iterateLocked(func(op Op) error {
		if op.Opstamp > upTo {
			remaining = append(remaining, op)
		}
		return nil
	}); err != nil {
		return err
	}

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304: derived from log path
	if err != nil {
		return fmt.Errorf("failed to create truncated delete log: %w", err)
	}

	if err := l.writeAllTo(tmp, remaining); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Tear down the old write stack before swapping files.
	l.closeWriterLocked()
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_RDWR, 0o600) //nolint:gosec // G304: path is caller-controlled by design
	if err != nil {
		return fmt.Errorf("failed to reopen delete log: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		_ = file.Close()
		return err
	}
	l.file = file
	if err := l.initWriterLocked(l.file); err != nil {
		_ = file.Close()
		return err
	}

	l.logger.Info("delete log truncated",
		"up_to", uint64(upTo),
		"remaining", len(remaining),
	)
	return nil
}

// Close flushes and closes the log.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.bufw.Flush()
	if l.zenc != nil {
		if cerr := l.zenc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if l.lzw != nil {
		if cerr := l.lzw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if l.zdec != nil {
		l.zdec.Close()
		l.zdec = nil
	}
	if serr := l.file.Sync(); serr != nil && err == nil {
		err = serr
	}
	if cerr := l.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// writeAllTo writes a fresh header plus the given records to f.
func (l *Log) writeAllTo(f *os.File, ops []Op) error {
	if _, err := writeHeader(f, headerInfo{Codec: l.codec, Level: l.level}); err != nil {
		return err
	}

	var w io.Writer = f
	var zenc *zstd.Encoder
	var lzw *lz4.Writer
	switch l.codec {
	case CodecZstd:
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(l.level)))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		zenc = enc
		w = enc
	case CodecLZ4:
		lzw = lz4.NewWriter(f)
		w = lzw
	}

	var rec [recordLen]byte
	for _, op := range ops {
		binary.LittleEndian.PutUint64(rec[0:8], uint64(op.Opstamp))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(op.Doc))
		binary.LittleEndian.PutUint32(rec[12:16], crc32.ChecksumIEEE(rec[:12]))
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}

	if zenc != nil {
		return zenc.Close()
	}
	if lzw != nil {
		return lzw.Close()
	}
	return nil
}

func (l *Log) flushLocked() error {
	if l.bufw == nil {
		return nil
	}
	if err := l.bufw.Flush(); err != nil {
		return fmt.Errorf("failed to flush delete log buffer: %w", err)
	}
	if l.zenc != nil {
		if err := l.zenc.Flush(); err != nil {
			return fmt.Errorf("failed to flush zstd encoder: %w", err)
		}
	}
	if l.lzw != nil {
		if err := l.lzw.Flush(); err != nil {
			return fmt.Errorf("failed to flush lz4 writer: %w", err)
		}
	}
	return nil
}

func (l *Log) syncLocked() error {
	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *Log) closeWriterLocked() {
	if l.bufw != nil {
		_ = l.bufw.Flush()
	}
	if l.zenc != nil {
		_ = l.zenc.Close()
		l.zenc = nil
	}
	if l.lzw != nil {
		_ = l.lzw.Close()
		l.lzw = nil
	}
	l.bufw = nil
	l.writer = nil
}

// iterateLocked scans every record from the start of the stream and seeks
// back to the end for appending. A torn record at the tail ends the scan;
// a checksum mismatch surfaces as ErrCorruptRecord.
func (l *Log) iterateLocked(fn func(op Op) error) error {
	if _, err := l.file.Seek(l.dataOffset, io.SeekStart); err != nil {
		return err
	}

	var reader io.Reader
	switch l.codec {
	case CodecZstd:
		if l.zdec == nil {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return fmt.Errorf("failed to create zstd decoder: %w", err)
			}
			l.zdec = dec
		}
		if err := l.zdec.Reset(l.file); err != nil {
			return fmt.Errorf("failed to reset zstd decoder: %w", err)
		}
		reader = l.zdec
	case CodecLZ4:
		// Every reopen appends a fresh lz4 frame; reads must continue
		// across frame boundaries.
		br := bufio.NewReader(l.file)
		reader = &lz4FrameChain{br: br, zr: lz4.NewReader(br)}
	default:
		reader = bufio.NewReader(l.file)
	}

	var rec [recordLen]byte
	for {
		_, err := io.ReadFull(reader, rec[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			l.logger.Warn("torn record at delete log tail, ignoring")
			break
		}
		if err != nil {
			return fmt.Errorf("deletelog: failed to read record: %w", err)
		}

		sum := crc32.ChecksumIEEE(rec[:12])
		if sum != binary.LittleEndian.Uint32(rec[12:16]) {
			return ErrCorruptRecord
		}

		op := Op{
			Opstamp: model.Opstamp(binary.LittleEndian.Uint64(rec[0:8])),
			Doc:     model.DocID(binary.LittleEndian.Uint32(rec[8:12])),
		}
		if err := fn(op); err != nil {
			return err
		}
	}

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// lz4FrameChain reads a sequence of concatenated lz4 frames as one stream.
// Records never straddle a frame boundary: each frame holds whole records
// from one writer session.
type lz4FrameChain struct {
	br *bufio.Reader
	zr *lz4.Reader
}

func (r *lz4FrameChain) Read(p []byte) (int, error) {
	for {
		n, err := r.zr.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}
		if err == nil {
			continue
		}
		// Frame exhausted; chain to the next one if bytes remain.
		if _, perr := r.br.Peek(1); perr != nil {
			return 0, io.EOF
		}
		r.zr.Reset(r.br)
	}
}
