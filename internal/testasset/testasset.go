// Package testasset builds small synthetic avatar documents for tests.
//
// Every mesh gets its own index, position and (optional) normal buffer view,
// laid out back to back in buffer 0 with 4-byte alignment, so tests can
// predict exactly where each region lives before and after repacking.
package testasset

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/vrmpack/pkg/glb"
)

// VRMExtension is a minimal avatar extension payload that must survive a
// round trip untouched.
const VRMExtension = `{"exporterVersion":"testasset-1.0","meta":{"title":"fixture"},"humanoid":{"humanBones":[]}}`

// Mesh describes one single-primitive mesh of a fixture document.
type Mesh struct {
	Name       string
	Indices    []uint32
	Positions  []float32
	Normals    []float32
	IndexWidth int // 1, 2 or 4 bytes; 0 means 4
	Skinned    bool
	MinMax     bool // emit min/max on the index accessor
}

// Build lays out meshes into a single-buffer document.
func Build(meshes ...Mesh) *gltf.Document {
	doc := &gltf.Document{
		Asset:          gltf.Asset{Version: "2.0", Generator: "testasset"},
		ExtensionsUsed: []string{"VRM"},
		Extensions:     gltf.Extensions{"VRM": json.RawMessage(VRMExtension)},
	}

	var bin []byte
	view := func(data []byte) int {
		doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
			Buffer:     0,
			ByteOffset: len(bin),
			ByteLength: len(data),
		})
		bin = append(bin, data...)
		bin = append(bin, make([]byte, glb.Pad(len(bin))-len(bin))...)
		return len(doc.BufferViews) - 1
	}

	var roots []int
	for i, m := range meshes {
		width := m.IndexWidth
		if width == 0 {
			width = 4
		}
		iv := view(EncodeIndices(m.Indices, width))
		indexAcc := &gltf.Accessor{
			BufferView:    gltf.Index(iv),
			ComponentType: componentType(width),
			Count:         len(m.Indices),
			Type:          gltf.AccessorScalar,
		}
		if m.MinMax && len(m.Indices) > 0 {
			lo, hi := indexRange(m.Indices)
			indexAcc.Min = []float64{float64(lo)}
			indexAcc.Max = []float64{float64(hi)}
		}
		doc.Accessors = append(doc.Accessors, indexAcc)
		indices := len(doc.Accessors) - 1

		pv := view(EncodeFloats(m.Positions))
		doc.Accessors = append(doc.Accessors, &gltf.Accessor{
			BufferView:    gltf.Index(pv),
			ComponentType: gltf.ComponentFloat,
			Count:         len(m.Positions) / 3,
			Type:          gltf.AccessorVec3,
		})
		attrs := map[string]int{"POSITION": len(doc.Accessors) - 1}

		if len(m.Normals) > 0 {
			nv := view(EncodeFloats(m.Normals))
			doc.Accessors = append(doc.Accessors, &gltf.Accessor{
				BufferView:    gltf.Index(nv),
				ComponentType: gltf.ComponentFloat,
				Count:         len(m.Normals) / 3,
				Type:          gltf.AccessorVec3,
			})
			attrs["NORMAL"] = len(doc.Accessors) - 1
		}

		doc.Meshes = append(doc.Meshes, &gltf.Mesh{
			Name: m.Name,
			Primitives: []*gltf.Primitive{{
				Attributes: attrs,
				Indices:    gltf.Index(indices),
				Mode:       gltf.PrimitiveTriangles,
			}},
		})
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: m.Name, Mesh: gltf.Index(i)})
		roots = append(roots, len(doc.Nodes)-1)
	}

	for i, m := range meshes {
		if !m.Skinned {
			continue
		}
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: m.Name + "_root"})
		doc.Skins = append(doc.Skins, &gltf.Skin{Name: m.Name, Joints: []int{len(doc.Nodes) - 1}})
		doc.Nodes[i].Skin = gltf.Index(len(doc.Skins) - 1)
		roots = append(roots, len(doc.Nodes)-1)
	}

	doc.Buffers = []*gltf.Buffer{{ByteLength: len(bin), Data: bin}}
	doc.Scenes = []*gltf.Scene{{Name: "Scene", Nodes: roots}}
	doc.Scene = gltf.Index(0)
	return doc
}

// GLB encodes doc as a binary container with buffer 0 as the BIN chunk.
func GLB(doc *gltf.Document) ([]byte, error) {
	var bin []byte
	if len(doc.Buffers) > 0 {
		doc.Buffers[0].URI = ""
		bin = doc.Buffers[0].Data[:doc.Buffers[0].ByteLength]
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return glb.Encode(jsonData, bin)
}

// Grid returns a w×h quad grid in the XY plane, two triangles per quad.
func Grid(w, h int) ([]uint32, []float32) {
	var positions []float32
	for y := 0; y <= h; y++ {
		for x := 0; x <= w; x++ {
			positions = append(positions, float32(x), float32(y), 0)
		}
	}
	var indices []uint32
	row := uint32(w + 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint32(y)*row + uint32(x)
			indices = append(indices, v, v+1, v+row+1, v, v+row+1, v+row)
		}
	}
	return indices, positions
}

// Strip returns a 1×(n/2) grid holding n triangles (n rounded down to even).
// Every vertex is on the border, so quality reduction cannot collapse
// anything.
func Strip(n int) ([]uint32, []float32) {
	return Grid(n/2, 1)
}

// EncodeIndices packs indices little-endian at the given byte width.
func EncodeIndices(indices []uint32, width int) []byte {
	out := make([]byte, len(indices)*width)
	for i, v := range indices {
		switch width {
		case 1:
			out[i] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		default:
			binary.LittleEndian.PutUint32(out[i*4:], v)
		}
	}
	return out
}

// EncodeFloats packs floats little-endian.
func EncodeFloats(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func componentType(width int) gltf.ComponentType {
	switch width {
	case 1:
		return gltf.ComponentUbyte
	case 2:
		return gltf.ComponentUshort
	default:
		return gltf.ComponentUint
	}
}

func indexRange(indices []uint32) (uint32, uint32) {
	lo, hi := indices[0], indices[0]
	for _, v := range indices[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
