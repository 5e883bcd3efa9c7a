package scene

import (
	"fmt"
	"slices"
	"strings"

	"github.com/qmuntal/gltf"
)

// Validate checks the scene for structural problems that do not prevent
// processing. It returns advisory warnings; an empty result means the scene
// looks consistent. Buffers must be loaded.
func Validate(doc *gltf.Document) []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		warn("asset version %q is not 2.x", doc.Asset.Version)
	}

	for _, ext := range doc.ExtensionsRequired {
		if !slices.Contains(doc.ExtensionsUsed, ext) {
			warn("required extension %s missing from extensionsUsed", ext)
		}
	}

	for i, buf := range doc.Buffers {
		if len(buf.Data) < buf.ByteLength {
			warn("buffer %d: %d bytes loaded, %d declared", i, len(buf.Data), buf.ByteLength)
		}
	}

	for i, bv := range doc.BufferViews {
		if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
			warn("buffer view %d: buffer %d out of range", i, bv.Buffer)
			continue
		}
		if bv.ByteOffset+bv.ByteLength > doc.Buffers[bv.Buffer].ByteLength {
			warn("buffer view %d: range [%d,%d) exceeds buffer %d length %d",
				i, bv.ByteOffset, bv.ByteOffset+bv.ByteLength, bv.Buffer, doc.Buffers[bv.Buffer].ByteLength)
		}
		if bv.ByteStride != 0 && (bv.ByteStride < 4 || bv.ByteStride > 252 || bv.ByteStride%4 != 0) {
			warn("buffer view %d: byte stride %d outside [4,252] or unaligned", i, bv.ByteStride)
		}
	}

	for i, acc := range doc.Accessors {
		if acc.Count <= 0 {
			warn("accessor %d: count %d", i, acc.Count)
		}
		if ElementSize(acc) == 0 {
			warn("accessor %d: invalid component type or shape", i)
			continue
		}
		if acc.BufferView == nil {
			continue
		}
		bv := doc.BufferViews[*acc.BufferView]
		if end := acc.ByteOffset + AccessorExtent(doc, acc); end > bv.ByteLength {
			warn("accessor %d: reads %d bytes of buffer view %d, which holds %d", i, end, *acc.BufferView, bv.ByteLength)
		}
		if acc.ByteOffset%ComponentSize(acc.ComponentType) != 0 {
			warn("accessor %d: byte offset %d not aligned to component size", i, acc.ByteOffset)
		}
	}

	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			validatePrimitive(doc, mi, pi, prim, warn)
		}
	}

	for i, skin := range doc.Skins {
		for _, j := range skin.Joints {
			if j < 0 || j >= len(doc.Nodes) {
				warn("skin %d: joint node %d out of range", i, j)
			}
		}
	}

	return warnings
}

func validatePrimitive(doc *gltf.Document, mi, pi int, prim *gltf.Primitive, warn func(string, ...any)) {
	pos, ok := prim.Attributes[AttrPosition]
	if !ok {
		warn("mesh %d primitive %d: no POSITION attribute", mi, pi)
	}

	if prim.Indices == nil {
		warn("mesh %d primitive %d: not indexed", mi, pi)
		return
	}

	idx := doc.Accessors[*prim.Indices]
	if idx.Type != gltf.AccessorScalar {
		warn("mesh %d primitive %d: index accessor %d is not SCALAR", mi, pi, *prim.Indices)
	}
	switch idx.ComponentType {
	case gltf.ComponentUbyte, gltf.ComponentUshort, gltf.ComponentUint:
	default:
		warn("mesh %d primitive %d: index accessor %d has non-unsigned component type", mi, pi, *prim.Indices)
	}
	if prim.Mode == gltf.PrimitiveTriangles && idx.Count%3 != 0 {
		warn("mesh %d primitive %d: %d indices is not a whole number of triangles", mi, pi, idx.Count)
	}

	if ok {
		vc := doc.Accessors[pos].Count
		for name, a := range prim.Attributes {
			if doc.Accessors[a].Count != vc {
				warn("mesh %d primitive %d: attribute %s has %d elements, POSITION has %d",
					mi, pi, name, doc.Accessors[a].Count, vc)
			}
		}
	}
}
