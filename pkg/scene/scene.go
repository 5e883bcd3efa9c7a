// Package scene decodes and encodes glTF/VRM scene descriptions and owns the
// raw buffer bytes they reference.
//
// The scene graph is the qmuntal/gltf document: buffers, buffer views,
// accessors, meshes, nodes and skins live in ordered slices and refer to each
// other by index, so moving bytes around never changes entity identity.
// Extensions the codec does not know (VRM humanoid, blend shapes, spring
// bones, meta) are kept as raw JSON and written back untouched.
package scene

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/vrmpack/pkg/glb"
)

// Codec errors.
var (
	ErrParse      = errors.New("parse error")
	ErrBufferLoad = errors.New("buffer load error")
)

const dataURIPrefix = "data:"

// Scene is a decoded scene graph plus the state needed to load its buffers.
type Scene struct {
	Doc *gltf.Document

	// Path is the file the scene was read from, empty for in-memory scenes.
	Path string

	baseDir   string
	bin       []byte
	container bool
}

// Open parses the file at path and loads all of its buffers.
func Open(path string) (*Scene, error) {
	s, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := s.LoadBuffers(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse reads a container (GLB/VRM) or JSON glTF file into a scene graph.
// Buffers are not loaded; call LoadBuffers.
func Parse(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrParse, path, err)
	}
	s, err := ParseBytes(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// ParseBytes decodes a container or JSON glTF from memory. baseDir resolves
// relative buffer URIs.
func ParseBytes(data []byte, baseDir string) (*Scene, error) {
	s := &Scene{baseDir: baseDir}

	jsonData := data
	if glb.IsContainer(data) {
		c, err := glb.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		jsonData = c.JSON
		s.bin = c.BIN
		s.container = true
	}

	doc := new(gltf.Document)
	if err := json.Unmarshal(jsonData, doc); err != nil {
		return nil, fmt.Errorf("%w: decoding scene JSON: %v", ErrParse, err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, fmt.Errorf("%w: unsupported asset version %q", ErrParse, doc.Asset.Version)
	}
	if err := checkReferences(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	s.Doc = doc
	return s, nil
}

// FromDocument wraps an in-memory document whose buffers already carry Data.
func FromDocument(doc *gltf.Document) *Scene {
	return &Scene{Doc: doc, container: true}
}

// IsContainer reports whether the scene was decoded from a binary container.
func (s *Scene) IsContainer() bool {
	return s.container
}

// LoadBuffers binds every buffer to its bytes: the BIN chunk for an
// URI-less first buffer, a data URI payload, or an external file next to the
// scene. Each buffer ends up owning a private copy of exactly ByteLength bytes.
func (s *Scene) LoadBuffers() error {
	for i, buf := range s.Doc.Buffers {
		data, err := s.loadBuffer(i, buf)
		if err != nil {
			return fmt.Errorf("%w: buffer %d: %v", ErrBufferLoad, i, err)
		}
		if len(data) < buf.ByteLength {
			return fmt.Errorf("%w: buffer %d: have %d bytes, declared %d",
				ErrBufferLoad, i, len(data), buf.ByteLength)
		}
		buf.Data = bytes.Clone(data[:buf.ByteLength])
	}
	s.bin = nil
	return nil
}

func (s *Scene) loadBuffer(i int, buf *gltf.Buffer) ([]byte, error) {
	switch {
	case buf.URI == "":
		if i == 0 && s.bin != nil {
			return s.bin, nil
		}
		if buf.Data != nil {
			return buf.Data, nil
		}
		return nil, errors.New("no URI and no binary chunk")
	case strings.HasPrefix(buf.URI, dataURIPrefix):
		return decodeDataURI(buf.URI)
	default:
		name, err := url.PathUnescape(buf.URI)
		if err != nil {
			name = buf.URI
		}
		return os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(name)))
	}
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, errors.New("malformed data URI")
	}
	header := uri[len(dataURIPrefix):comma]
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding %q", header)
	}
	return base64.StdEncoding.DecodeString(uri[comma+1:])
}

func encodeDataURI(data []byte) string {
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data)
}

// checkReferences rejects documents whose index references, counts or
// offsets would make later stages read out of range. Everything softer is left to Validate.
func checkReferences(doc *gltf.Document) error {
	for i, bv := range doc.BufferViews {
		if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
			return fmt.Errorf("buffer view %d references missing buffer %d", i, bv.Buffer)
		}
		if bv.ByteOffset < 0 || bv.ByteLength < 0 {
			return fmt.Errorf("buffer view %d has negative range %d+%d", i, bv.ByteOffset, bv.ByteLength)
		}
	}
	for i, acc := range doc.Accessors {
		if acc.BufferView != nil && (*acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews)) {
			return fmt.Errorf("accessor %d references missing buffer view %d", i, *acc.BufferView)
		}
		if acc.Count < 1 {
			return fmt.Errorf("accessor %d has count %d", i, acc.Count)
		}
		if acc.ByteOffset < 0 {
			return fmt.Errorf("accessor %d has negative byte offset %d", i, acc.ByteOffset)
		}
	}
	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			if prim.Indices != nil && (*prim.Indices < 0 || *prim.Indices >= len(doc.Accessors)) {
				return fmt.Errorf("mesh %d primitive %d references missing accessor %d", mi, pi, *prim.Indices)
			}
			for name, idx := range prim.Attributes {
				if idx < 0 || idx >= len(doc.Accessors) {
					return fmt.Errorf("mesh %d primitive %d attribute %s references missing accessor %d", mi, pi, name, idx)
				}
			}
		}
	}
	for i, node := range doc.Nodes {
		if node.Mesh != nil && (*node.Mesh < 0 || *node.Mesh >= len(doc.Meshes)) {
			return fmt.Errorf("node %d references missing mesh %d", i, *node.Mesh)
		}
		if node.Skin != nil && (*node.Skin < 0 || *node.Skin >= len(doc.Skins)) {
			return fmt.Errorf("node %d references missing skin %d", i, *node.Skin)
		}
	}
	return nil
}
