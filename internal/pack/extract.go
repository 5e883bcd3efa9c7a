package pack

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/vrmpack/pkg/scene"
)

// MeshRecord is a detached working copy of one primitive's geometry plus the
// accessors its reduced indices are written back into.
type MeshRecord struct {
	Mesh      int
	Primitive int
	Name      string
	Material  *int
	Skin      *int

	IndexAccessor    int
	PositionAccessor int

	Indices   []uint32
	Positions []float32 // 3 per vertex, tightly packed
	Normals   []float32 // 3 per vertex
	TexCoords []float32 // 2 per vertex
	Joints    []uint32  // 4 per vertex
	Weights   []float32 // 4 per vertex

	VertexCount int
	// PositionStride is the byte distance between vertices in Positions.
	PositionStride int
	// SourceStride is the byte stride of the position accessor in the buffer.
	SourceStride int

	// Reducible is false when the index accessor cannot be rewritten in
	// place; Reason says why.
	Reducible bool
	Reason    string
	// Owner is the record that owns a shared index accessor, or -1.
	Owner int

	OriginalIndexCount int
	Pass               Pass
}

// Changed reports whether a reduction pass produced new indices.
func (r *MeshRecord) Changed() bool {
	return r.Pass != PassNone
}

func (r *MeshRecord) String() string {
	return fmt.Sprintf("mesh %d %q primitive %d", r.Mesh, r.Name, r.Primitive)
}

// Extract builds one MeshRecord per primitive of every mesh, in document
// order. The scene is not modified. A primitive without indices or without
// a POSITION attribute fails with ErrMalformedAsset.
func Extract(doc *gltf.Document) ([]*MeshRecord, error) {
	var records []*MeshRecord
	for mi, mesh := range doc.Meshes {
		skin := resolveSkin(doc, mi)
		for pi, prim := range mesh.Primitives {
			rec, err := extractPrimitive(doc, mi, pi, prim)
			if err != nil {
				return nil, err
			}
			rec.Skin = skin
			records = append(records, rec)
		}
	}
	markShared(records)
	return records, nil
}

func extractPrimitive(doc *gltf.Document, mi, pi int, prim *gltf.Primitive) (*MeshRecord, error) {
	rec := &MeshRecord{
		Mesh:      mi,
		Primitive: pi,
		Name:      doc.Meshes[mi].Name,
		Material:  prim.Material,
		Owner:     -1,
		Reducible: true,
	}

	if prim.Indices == nil {
		return nil, fmt.Errorf("%w: %s has no index accessor", ErrMalformedAsset, rec)
	}
	pos, ok := prim.Attributes[scene.AttrPosition]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no POSITION attribute", ErrMalformedAsset, rec)
	}
	rec.IndexAccessor = *prim.Indices
	rec.PositionAccessor = pos

	var err error
	if rec.Indices, err = readUints(doc, rec.IndexAccessor, 1); err != nil {
		return nil, fmt.Errorf("%w: %s indices: %v", ErrMalformedAsset, rec, err)
	}
	rec.OriginalIndexCount = len(rec.Indices)

	if rec.Positions, err = readFloats(doc, pos, 3); err != nil {
		return nil, fmt.Errorf("%w: %s positions: %v", ErrMalformedAsset, rec, err)
	}
	rec.VertexCount = doc.Accessors[pos].Count
	rec.PositionStride = 3 * 4
	rec.SourceStride = scene.AccessorStride(doc, doc.Accessors[pos])

	optional := []struct {
		name  string
		comps int
		out   *[]float32
	}{
		{scene.AttrNormal, 3, &rec.Normals},
		{scene.AttrTexCoord0, 2, &rec.TexCoords},
		{scene.AttrWeights0, 4, &rec.Weights},
	}
	for _, o := range optional {
		idx, ok := prim.Attributes[o.name]
		if !ok {
			continue
		}
		if *o.out, err = readFloats(doc, idx, o.comps); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedAsset, rec, o.name, err)
		}
	}
	if idx, ok := prim.Attributes[scene.AttrJoints0]; ok {
		if rec.Joints, err = readUints(doc, idx, 4); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedAsset, rec, scene.AttrJoints0, err)
		}
	}

	idx := doc.Accessors[rec.IndexAccessor]
	switch {
	case prim.Mode != gltf.PrimitiveTriangles:
		rec.Reducible, rec.Reason = false, "not a triangle list"
	case idx.BufferView == nil:
		rec.Reducible, rec.Reason = false, "index accessor has no buffer view"
	case idx.Sparse != nil:
		rec.Reducible, rec.Reason = false, "sparse index accessor"
	case len(rec.Indices) < 3:
		rec.Reducible, rec.Reason = false, "no whole triangle"
	}
	return rec, nil
}

// resolveSkin returns the skin of the first node that carries a skin and
// references a mesh with the same name. Unnamed meshes match by index.
func resolveSkin(doc *gltf.Document, mi int) *int {
	name := doc.Meshes[mi].Name
	for _, node := range doc.Nodes {
		if node.Skin == nil || node.Mesh == nil {
			continue
		}
		if name == "" {
			if *node.Mesh == mi {
				return node.Skin
			}
			continue
		}
		if doc.Meshes[*node.Mesh].Name == name {
			return node.Skin
		}
	}
	return nil
}

// markShared links records that read the same index accessor to the first
// of them. The owner stays reducible only when every sharer reads the same
// positions, so one reduction is valid for all of them.
func markShared(records []*MeshRecord) {
	owners := make(map[int]int)
	for i, rec := range records {
		owner, ok := owners[rec.IndexAccessor]
		if !ok {
			owners[rec.IndexAccessor] = i
			continue
		}
		rec.Owner = owner
		rec.Reducible, rec.Reason = false, fmt.Sprintf("index accessor shared with record %d", owner)
		if o := records[owner]; o.PositionAccessor != rec.PositionAccessor && o.Reducible {
			o.Reducible, o.Reason = false, "index accessor shared across different positions"
		}
	}
}

// visit calls fn with the raw value of every component of an accessor,
// dense data first and sparse substitutions after.
func visit(doc *gltf.Document, index, comps int, fn func(elem, comp int, raw float64)) error {
	acc := doc.Accessors[index]
	if n := scene.ComponentCount(acc.Type); n != comps {
		return fmt.Errorf("accessor %d has %d components, want %d", index, n, comps)
	}
	cs := scene.ComponentSize(acc.ComponentType)
	if cs == 0 {
		return fmt.Errorf("accessor %d has invalid component type", index)
	}

	data, stride, err := scene.AccessorBytes(doc, index)
	if err != nil {
		return err
	}
	if data != nil {
		for e := 0; e < acc.Count; e++ {
			for c := 0; c < comps; c++ {
				fn(e, c, component(data[e*stride+c*cs:], acc.ComponentType))
			}
		}
	}

	sp := acc.Sparse
	if sp == nil {
		return nil
	}
	ics := scene.ComponentSize(sp.Indices.ComponentType)
	ivals, err := scene.ViewBytes(doc, sp.Indices.BufferView)
	if err != nil {
		return fmt.Errorf("sparse indices: %w", err)
	}
	vals, err := scene.ViewBytes(doc, sp.Values.BufferView)
	if err != nil {
		return fmt.Errorf("sparse values: %w", err)
	}
	esize := scene.ElementSize(acc)
	if ics == 0 ||
		sp.Indices.ByteOffset+sp.Count*ics > len(ivals) ||
		sp.Values.ByteOffset+sp.Count*esize > len(vals) {
		return fmt.Errorf("accessor %d: sparse block out of range", index)
	}
	for k := 0; k < sp.Count; k++ {
		e := int(component(ivals[sp.Indices.ByteOffset+k*ics:], sp.Indices.ComponentType))
		if e < 0 || e >= acc.Count {
			return fmt.Errorf("accessor %d: sparse index %d out of range", index, e)
		}
		base := sp.Values.ByteOffset + k*esize
		for c := 0; c < comps; c++ {
			fn(e, c, component(vals[base+c*cs:], acc.ComponentType))
		}
	}
	return nil
}

// readFloats decodes an accessor into floats, applying normalization.
func readFloats(doc *gltf.Document, index, comps int) ([]float32, error) {
	acc := doc.Accessors[index]
	out := make([]float32, acc.Count*comps)
	err := visit(doc, index, comps, func(e, c int, raw float64) {
		if acc.Normalized {
			raw = normalize(raw, acc.ComponentType)
		}
		out[e*comps+c] = float32(raw)
	})
	return out, err
}

// readUints decodes an unsigned integer accessor.
func readUints(doc *gltf.Document, index, comps int) ([]uint32, error) {
	acc := doc.Accessors[index]
	switch acc.ComponentType {
	case gltf.ComponentUbyte, gltf.ComponentUshort, gltf.ComponentUint:
	default:
		return nil, fmt.Errorf("accessor %d is not an unsigned integer accessor", index)
	}
	out := make([]uint32, acc.Count*comps)
	err := visit(doc, index, comps, func(e, c int, raw float64) {
		out[e*comps+c] = uint32(raw)
	})
	return out, err
}

func component(b []byte, ct gltf.ComponentType) float64 {
	switch ct {
	case gltf.ComponentByte:
		return float64(int8(b[0]))
	case gltf.ComponentUbyte:
		return float64(b[0])
	case gltf.ComponentShort:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case gltf.ComponentUshort:
		return float64(binary.LittleEndian.Uint16(b))
	case gltf.ComponentUint:
		return float64(binary.LittleEndian.Uint32(b))
	default:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
}

func normalize(v float64, ct gltf.ComponentType) float64 {
	switch ct {
	case gltf.ComponentByte:
		return max(v/127, -1)
	case gltf.ComponentUbyte:
		return v / 255
	case gltf.ComponentShort:
		return max(v/32767, -1)
	case gltf.ComponentUshort:
		return v / 65535
	default:
		return v
	}
}
