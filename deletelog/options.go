package deletelog

import "log/slog"

// Codec selects the stream compression applied to the record stream.
type Codec uint8

const (
	// CodecNone stores records uncompressed.
	CodecNone Codec = iota
	// CodecZstd compresses the record stream with zstd.
	CodecZstd
	// CodecLZ4 compresses the record stream with lz4 frames.
	CodecLZ4
)

// Options configures a delete log.
type Options struct {
	// Codec is the stream compression for newly created logs. An
	// existing log keeps the codec recorded in its header.
	Codec Codec

	// CompressionLevel is the zstd compression level (1-22).
	// Ignored for other codecs. Default 3.
	CompressionLevel int

	// Sync forces an fsync after every Append. Off by default; callers
	// that batch deletions usually call Sync at their own commit points.
	Sync bool

	// Logger receives replay/truncation diagnostics. Nil means silent.
	Logger *slog.Logger
}

// DefaultOptions are the defaults used by Open.
var DefaultOptions = Options{
	Codec:            CodecNone,
	CompressionLevel: 3,
}
