package scene

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/vrmpack/internal/testasset"
	"github.com/Faultbox/vrmpack/pkg/glb"
)

func fixture() *gltf.Document {
	indices, positions := testasset.Grid(2, 2)
	return testasset.Build(
		testasset.Mesh{Name: "Body", Indices: indices, Positions: positions, Skinned: true},
		testasset.Mesh{Name: "Hair", Indices: indices[:12], Positions: positions, IndexWidth: 2},
	)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestOpen_Container(t *testing.T) {
	doc := fixture()
	want := append([]byte(nil), doc.Buffers[0].Data...)
	data, err := testasset.GLB(doc)
	require.NoError(t, err)

	path := writeFile(t, t.TempDir(), "avatar.vrm", data)
	s, err := Open(path)
	require.NoError(t, err)

	assert.True(t, s.IsContainer())
	assert.Equal(t, path, s.Path)
	require.Len(t, s.Doc.Buffers, 1)
	assert.Equal(t, want, s.Doc.Buffers[0].Data)
	assert.Len(t, s.Doc.Meshes, 2)
	assert.Equal(t, "Body", s.Doc.Meshes[0].Name)
	assert.Empty(t, Validate(s.Doc))
}

func TestOpen_JSONWithExternalBuffer(t *testing.T) {
	dir := t.TempDir()
	doc := fixture()
	bin := doc.Buffers[0].Data
	doc.Buffers[0].URI = "avatar%20data.bin"
	writeFile(t, dir, "avatar data.bin", bin)

	jsonData, err := json.Marshal(doc)
	require.NoError(t, err)
	path := writeFile(t, dir, "avatar.gltf", jsonData)

	s, err := Open(path)
	require.NoError(t, err)
	assert.False(t, s.IsContainer())
	assert.Equal(t, bin, s.Doc.Buffers[0].Data)
}

func TestOpen_DataURIBuffer(t *testing.T) {
	doc := fixture()
	bin := doc.Buffers[0].Data
	doc.Buffers[0].URI = encodeDataURI(bin)

	jsonData, err := json.Marshal(doc)
	require.NoError(t, err)

	s, err := ParseBytes(jsonData, "")
	require.NoError(t, err)
	require.NoError(t, s.LoadBuffers())
	assert.Equal(t, bin, s.Doc.Buffers[0].Data)
}

func TestLoadBuffers_TruncatesToDeclaredLength(t *testing.T) {
	doc := fixture()
	doc.Buffers[0].Data = append(doc.Buffers[0].Data, 0xAA, 0xBB, 0xCC)
	s := FromDocument(doc)

	require.NoError(t, s.LoadBuffers())
	assert.Len(t, s.Doc.Buffers[0].Data, s.Doc.Buffers[0].ByteLength)
}

func TestParse_Errors(t *testing.T) {
	valid, err := json.Marshal(fixture())
	require.NoError(t, err)

	badVersion := []byte(`{"asset":{"version":"1.0"}}`)
	badRef := []byte(`{"asset":{"version":"2.0"},"nodes":[{"mesh":3}]}`)
	container, err := glb.Encode(valid, nil)
	require.NoError(t, err)
	truncated := container[:20]

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("not a scene")},
		{"unsupported version", badVersion},
		{"dangling reference", badRef},
		{"truncated container", truncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes(tt.data, "")
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParse_RejectsBadRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc *gltf.Document)
	}{
		{"negative accessor count", func(doc *gltf.Document) { doc.Accessors[0].Count = -1 }},
		{"empty accessor", func(doc *gltf.Document) { doc.Accessors[0].Count = 0 }},
		{"negative accessor offset", func(doc *gltf.Document) { doc.Accessors[0].ByteOffset = -4 }},
		{"negative view offset", func(doc *gltf.Document) { doc.BufferViews[0].ByteOffset = -4 }},
		{"negative view length", func(doc *gltf.Document) { doc.BufferViews[0].ByteLength = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fixture()
			tt.mutate(doc)
			jsonData, err := json.Marshal(doc)
			require.NoError(t, err)

			_, err = ParseBytes(jsonData, t.TempDir())
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.vrm"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoadBuffers_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc *gltf.Document)
	}{
		{"missing external file", func(doc *gltf.Document) { doc.Buffers[0].URI = "gone.bin" }},
		{"short data URI", func(doc *gltf.Document) { doc.Buffers[0].URI = encodeDataURI([]byte{1, 2}) }},
		{"non-base64 data URI", func(doc *gltf.Document) { doc.Buffers[0].URI = "data:text/plain,hello" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fixture()
			tt.mutate(doc)
			jsonData, err := json.Marshal(doc)
			require.NoError(t, err)

			s, err := ParseBytes(jsonData, t.TempDir())
			require.NoError(t, err)
			assert.ErrorIs(t, s.LoadBuffers(), ErrBufferLoad)
		})
	}
}

func TestLoadBuffers_ContainerWithoutBIN(t *testing.T) {
	doc := fixture()
	doc.Buffers[0].URI = ""
	jsonData, err := json.Marshal(doc)
	require.NoError(t, err)
	data, err := glb.Encode(jsonData, nil)
	require.NoError(t, err)

	s, err := ParseBytes(data, "")
	require.NoError(t, err)
	assert.ErrorIs(t, s.LoadBuffers(), ErrBufferLoad)
}

func TestMarshalJSON_KeepsExtensions(t *testing.T) {
	data, err := testasset.GLB(fixture())
	require.NoError(t, err)
	s, err := ParseBytes(data, "")
	require.NoError(t, err)
	require.NoError(t, s.LoadBuffers())

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"exporterVersion":"testasset-1.0"`)
	assert.NotContains(t, string(out), "\n")
}

func TestSerialize(t *testing.T) {
	s := FromDocument(fixture())
	path := filepath.Join(t.TempDir(), "dump", "pre.json")

	require.NoError(t, s.Serialize(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var back gltf.Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Len(t, back.Meshes, 2)
	assert.Contains(t, string(data), "\n  \"")
}

func TestPrepareContainer(t *testing.T) {
	doc := fixture()
	extra := []byte{9, 8, 7, 6}
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{URI: "extra.bin", ByteLength: 4, Data: extra})
	s := FromDocument(doc)

	s.PrepareContainer()
	assert.Empty(t, doc.Buffers[0].URI)
	assert.Equal(t, encodeDataURI(extra), doc.Buffers[1].URI)
	assert.Equal(t, doc.Buffers[0].Data, s.BinaryChunk())

	decoded, err := decodeDataURI(doc.Buffers[1].URI)
	require.NoError(t, err)
	assert.Equal(t, extra, decoded)
}

func TestBinaryChunk_NoBuffers(t *testing.T) {
	s := FromDocument(&gltf.Document{Asset: gltf.Asset{Version: "2.0"}})
	assert.Nil(t, s.BinaryChunk())
}

func TestAccessorBytes(t *testing.T) {
	doc := fixture()

	data, stride, err := AccessorBytes(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, stride)
	assert.Len(t, data, 24*4)

	data, stride, err = AccessorBytes(doc, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stride)
	assert.Len(t, data, 12*2)

	_, _, err = AccessorBytes(doc, 99)
	assert.Error(t, err)

	doc.Accessors[0].Count = 1000
	_, _, err = AccessorBytes(doc, 0)
	assert.Error(t, err)
}

func TestElementSize(t *testing.T) {
	tests := []struct {
		ct   gltf.ComponentType
		at   gltf.AccessorType
		want int
	}{
		{gltf.ComponentUbyte, gltf.AccessorScalar, 1},
		{gltf.ComponentUshort, gltf.AccessorScalar, 2},
		{gltf.ComponentUint, gltf.AccessorScalar, 4},
		{gltf.ComponentFloat, gltf.AccessorVec3, 12},
		{gltf.ComponentUshort, gltf.AccessorVec4, 8},
		{gltf.ComponentFloat, gltf.AccessorMat4, 64},
		{gltf.ComponentUbyte, gltf.AccessorMat3, 12},
		{gltf.ComponentShort, gltf.AccessorMat3, 24},
	}
	for _, tt := range tests {
		got := ElementSize(&gltf.Accessor{ComponentType: tt.ct, Type: tt.at})
		assert.Equal(t, tt.want, got, "%v %v", tt.ct, tt.at)
	}
}

func TestViewRefCounts(t *testing.T) {
	doc := fixture()
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(0),
		ComponentType: gltf.ComponentUint,
		Count:         3,
		Type:          gltf.AccessorScalar,
	})
	doc.Images = append(doc.Images, &gltf.Image{BufferView: gltf.Index(1), MimeType: "image/png"})

	refs := ViewRefCounts(doc)
	require.Len(t, refs, len(doc.BufferViews))
	assert.Equal(t, 2, refs[0])
	assert.Equal(t, 2, refs[1])
	assert.Equal(t, 1, refs[2])
}

func TestValidate_Warnings(t *testing.T) {
	doc := fixture()
	doc.ExtensionsRequired = []string{"KHR_draco_mesh_compression"}
	doc.Accessors[0].Count = 23
	doc.Skins[0].Joints = append(doc.Skins[0].Joints, 42)

	warnings := Validate(doc)
	assert.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "KHR_draco_mesh_compression")
}
