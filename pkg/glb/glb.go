// Package glb reads and writes the binary glTF container framing used by GLB
// and VRM files: a 12-byte header followed by a JSON chunk and an optional
// binary chunk.
package glb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Container framing constants.
const (
	Magic   uint32 = 0x46546C67 // "glTF"
	Version uint32 = 2

	HeaderSize      = 12
	ChunkHeaderSize = 8

	ChunkJSON uint32 = 0x4E4F534A // "JSON"
	ChunkBIN  uint32 = 0x004E4942 // "BIN\0"

	// Alignment of every chunk payload.
	Alignment = 4
)

// Framing errors.
var (
	ErrInvalidMagic       = errors.New("invalid container magic: expected 'glTF'")
	ErrUnsupportedVersion = errors.New("unsupported container version")
	ErrTruncated          = errors.New("truncated container data")
	ErrMissingJSONChunk   = errors.New("container has no JSON chunk")
	ErrLengthMismatch     = errors.New("container length does not match header")
	ErrTooLarge           = errors.New("container exceeds 4 GiB")
)

// Header is the fixed container header.
type Header struct {
	Magic   uint32
	Version uint32
	Length  uint32 // Total container length in bytes, header included
}

// ChunkHeader precedes every chunk payload.
type ChunkHeader struct {
	Length uint32 // Payload length in bytes, padding included
	Type   uint32
}

// Container is a decoded container.
type Container struct {
	Header Header
	JSON   []byte // JSON chunk payload (may carry trailing space padding)
	BIN    []byte // BIN chunk payload, nil when absent
}

// IsContainer reports whether data starts with the container magic.
func IsContainer(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == Magic
}

// Parse decodes a container from a byte slice.
func Parse(data []byte) (*Container, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}

	r := bytes.NewReader(data)

	c := &Container{}
	if err := binary.Read(r, binary.LittleEndian, &c.Header); err != nil {
		return nil, ErrTruncated
	}
	if c.Header.Magic != Magic {
		return nil, ErrInvalidMagic
	}
	if c.Header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.Header.Version)
	}
	if int(c.Header.Length) > len(data) {
		return nil, fmt.Errorf("%w: header says %d bytes, have %d", ErrTruncated, c.Header.Length, len(data))
	}

	// Chunks beyond the declared length are ignored.
	r = bytes.NewReader(data[:c.Header.Length])
	r.Seek(HeaderSize, io.SeekStart)

	for r.Len() > 0 {
		var ch ChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return nil, fmt.Errorf("reading chunk header: %w", ErrTruncated)
		}
		if int(ch.Length) > r.Len() {
			return nil, fmt.Errorf("chunk 0x%08x: %w", ch.Type, ErrTruncated)
		}

		payload := make([]byte, ch.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("chunk 0x%08x: %w", ch.Type, ErrTruncated)
		}

		switch ch.Type {
		case ChunkJSON:
			if c.JSON == nil {
				c.JSON = payload
			}
		case ChunkBIN:
			if c.BIN == nil {
				c.BIN = payload
			}
		default:
			// Unknown chunks must be ignored by readers.
		}
	}

	if c.JSON == nil {
		return nil, ErrMissingJSONChunk
	}
	return c, nil
}

// Read decodes a container from r.
func Read(r io.Reader) (*Container, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading container: %w", err)
	}
	return Parse(data)
}

// Pad returns n rounded up to the chunk alignment.
func Pad(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Size returns the exact container length Write produces for the given
// unpadded payload sizes.
func Size(jsonLen, binLen int, withBIN bool) int {
	n := HeaderSize + ChunkHeaderSize + Pad(jsonLen)
	if withBIN {
		n += ChunkHeaderSize + Pad(binLen)
	}
	return n
}

// Write frames jsonData and bin into a container. JSON is padded with spaces
// and BIN with zeros; the padding is part of each chunk's declared length, so
// the header length equals header + chunk headers + chunk payloads exactly.
// A nil bin omits the BIN chunk.
func Write(w io.Writer, jsonData, bin []byte) (int, error) {
	withBIN := bin != nil
	total := Size(len(jsonData), len(bin), withBIN)
	if uint64(total) > math.MaxUint32 {
		return 0, ErrTooLarge
	}

	var buf bytes.Buffer
	buf.Grow(total)

	binary.Write(&buf, binary.LittleEndian, Header{
		Magic:   Magic,
		Version: Version,
		Length:  uint32(total),
	})

	writeChunk(&buf, ChunkJSON, jsonData, ' ')
	if withBIN {
		writeChunk(&buf, ChunkBIN, bin, 0)
	}

	if buf.Len() != total {
		return 0, fmt.Errorf("%w: wrote %d, declared %d", ErrLengthMismatch, buf.Len(), total)
	}

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return n, fmt.Errorf("writing container: %w", err)
	}
	return n, nil
}

// Encode is Write into a fresh byte slice.
func Encode(jsonData, bin []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Write(&buf, jsonData, bin); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, chunkType uint32, payload []byte, pad byte) {
	padded := Pad(len(payload))
	binary.Write(buf, binary.LittleEndian, ChunkHeader{
		Length: uint32(padded),
		Type:   chunkType,
	})
	buf.Write(payload)
	for i := len(payload); i < padded; i++ {
		buf.WriteByte(pad)
	}
}
