package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// MarshalJSON encodes the scene description in compact form. Buffers that
// were embedded as data URIs are re-embedded from their current bytes.
func (s *Scene) MarshalJSON() ([]byte, error) {
	for _, buf := range s.Doc.Buffers {
		if strings.HasPrefix(buf.URI, dataURIPrefix) {
			buf.URI = encodeDataURI(buf.Data)
		}
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.Doc); err != nil {
		return nil, fmt.Errorf("encoding scene JSON: %w", err)
	}
	// Encoder appends a newline.
	return bytes.TrimRight(out.Bytes(), "\n"), nil
}

// Serialize writes the scene description as indented JSON to path. Buffer
// bytes are not written; this is the diagnostic form of the scene.
func (s *Scene) Serialize(path string) (err error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return fmt.Errorf("indenting scene JSON: %w", err)
	}
	pretty.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	_, err = f.Write(pretty.Bytes())
	return err
}

// PrepareContainer makes the scene self-contained for binary output: the
// first buffer becomes the BIN chunk and every other buffer is embedded as
// a data URI.
func (s *Scene) PrepareContainer() {
	for i, buf := range s.Doc.Buffers {
		if i == 0 {
			buf.URI = ""
			continue
		}
		buf.URI = encodeDataURI(buf.Data)
	}
	s.container = true
}

// BinaryChunk returns the bytes that belong in the BIN chunk: the first
// buffer's data truncated to its declared length, or nil when the scene has
// no URI-less first buffer.
func (s *Scene) BinaryChunk() []byte {
	if len(s.Doc.Buffers) == 0 || s.Doc.Buffers[0].URI != "" {
		return nil
	}
	buf := s.Doc.Buffers[0]
	if buf.ByteLength > len(buf.Data) {
		return buf.Data
	}
	return buf.Data[:buf.ByteLength]
}
