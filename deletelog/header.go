package deletelog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

var logMagic = [4]byte{'T', 'D', 'L', '0'}

const (
	headerVersion = uint16(1)
	headerLen     = 16
)

type headerInfo struct {
	Codec Codec
	Level int
}

func writeHeader(w io.Writer, info headerInfo) (int64, error) {
	buf := make([]byte, 0, headerLen)
	buf = append(buf, logMagic[:]...)

	var fixed [12]byte
	binary.LittleEndian.PutUint16(fixed[0:2], headerVersion)
	fixed[2] = byte(info.Codec)
	fixed[3] = byte(info.Level)
	// fixed[4:12] reserved
	buf = append(buf, fixed[:]...)

	if _, err := w.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to write delete log header: %w", err)
	}
	return int64(len(buf)), nil
}

func readHeader(f *os.File) (headerInfo, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return headerInfo{}, fmt.Errorf("failed to seek delete log: %w", err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return headerInfo{}, fmt.Errorf("failed to read delete log magic: %w", err)
	}
	if magic != logMagic {
		return headerInfo{}, fmt.Errorf("unsupported delete log format: invalid magic")
	}

	fixed := make([]byte, headerLen-4)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return headerInfo{}, fmt.Errorf("failed to read delete log header: %w", err)
	}

	version := binary.LittleEndian.Uint16(fixed[0:2])
	if version != headerVersion {
		return headerInfo{}, fmt.Errorf("unsupported delete log version: %d", version)
	}

	codec := Codec(fixed[2])
	switch codec {
	case CodecNone, CodecZstd, CodecLZ4:
	default:
		return headerInfo{}, fmt.Errorf("unsupported delete log codec: %d", codec)
	}

	return headerInfo{Codec: codec, Level: int(fixed[3])}, nil
}
