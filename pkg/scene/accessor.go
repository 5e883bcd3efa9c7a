package scene

import (
	"fmt"

	"github.com/qmuntal/gltf"
)

// Vertex attribute semantics read by the mesh pipeline.
const (
	AttrPosition  = "POSITION"
	AttrNormal    = "NORMAL"
	AttrTexCoord0 = "TEXCOORD_0"
	AttrJoints0   = "JOINTS_0"
	AttrWeights0  = "WEIGHTS_0"
)

// ComponentSize returns the byte size of one component.
func ComponentSize(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	default:
		return 0
	}
}

// ComponentCount returns the number of components of an accessor type.
func ComponentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	default:
		return 0
	}
}

// ElementSize returns the byte size of one accessor element, including the
// column padding glTF requires for small-component matrices.
func ElementSize(acc *gltf.Accessor) int {
	cs := ComponentSize(acc.ComponentType)
	switch {
	case acc.Type == gltf.AccessorMat2 && cs == 1:
		return 8
	case acc.Type == gltf.AccessorMat3 && cs == 1:
		return 12
	case acc.Type == gltf.AccessorMat3 && cs == 2:
		return 24
	}
	return cs * ComponentCount(acc.Type)
}

// AccessorStride returns the distance in bytes between consecutive elements.
func AccessorStride(doc *gltf.Document, acc *gltf.Accessor) int {
	if acc.BufferView != nil {
		if s := doc.BufferViews[*acc.BufferView].ByteStride; s != 0 {
			return s
		}
	}
	return ElementSize(acc)
}

// AccessorExtent returns the number of bytes the accessor covers inside its
// buffer view, starting at its byte offset.
func AccessorExtent(doc *gltf.Document, acc *gltf.Accessor) int {
	if acc.Count == 0 {
		return 0
	}
	return AccessorStride(doc, acc)*(acc.Count-1) + ElementSize(acc)
}

// AccessorBytes returns the raw bytes an accessor reads, aliasing the owning
// buffer, together with the element stride. Accessors without a buffer view
// return nil bytes.
func AccessorBytes(doc *gltf.Document, index int) ([]byte, int, error) {
	if index < 0 || index >= len(doc.Accessors) {
		return nil, 0, fmt.Errorf("accessor %d out of range", index)
	}
	acc := doc.Accessors[index]
	stride := AccessorStride(doc, acc)
	if acc.BufferView == nil {
		return nil, stride, nil
	}
	if ElementSize(acc) == 0 {
		return nil, 0, fmt.Errorf("accessor %d has invalid component type or shape", index)
	}

	bv := doc.BufferViews[*acc.BufferView]
	data, err := ViewBytes(doc, *acc.BufferView)
	if err != nil {
		return nil, 0, err
	}

	extent := AccessorExtent(doc, acc)
	if acc.ByteOffset < 0 || acc.ByteOffset+extent > bv.ByteLength {
		return nil, 0, fmt.Errorf("accessor %d: %d bytes at offset %d exceed buffer view %d length %d",
			index, extent, acc.ByteOffset, *acc.BufferView, bv.ByteLength)
	}
	return data[acc.ByteOffset : acc.ByteOffset+extent], stride, nil
}

// ViewBytes returns the bytes of a buffer view, aliasing the owning buffer.
func ViewBytes(doc *gltf.Document, index int) ([]byte, error) {
	if index < 0 || index >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d out of range", index)
	}
	bv := doc.BufferViews[index]
	buf := doc.Buffers[bv.Buffer]
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(buf.Data) {
		return nil, fmt.Errorf("buffer view %d: %d bytes at offset %d exceed buffer %d length %d",
			index, bv.ByteLength, bv.ByteOffset, bv.Buffer, len(buf.Data))
	}
	return buf.Data[bv.ByteOffset : bv.ByteOffset+bv.ByteLength], nil
}

// ViewRefCounts returns, for every buffer view, how many accessors, sparse
// blocks and images read it.
func ViewRefCounts(doc *gltf.Document) []int {
	refs := make([]int, len(doc.BufferViews))
	ref := func(v int) {
		if v >= 0 && v < len(refs) {
			refs[v]++
		}
	}
	for _, acc := range doc.Accessors {
		if acc.BufferView != nil {
			ref(*acc.BufferView)
		}
		if acc.Sparse != nil {
			ref(acc.Sparse.Indices.BufferView)
			ref(acc.Sparse.Values.BufferView)
		}
	}
	for _, img := range doc.Images {
		if img.BufferView != nil {
			ref(*img.BufferView)
		}
	}
	return refs
}
