package pack

import (
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/vrmpack/pkg/scene"
)

// Stats counts the entities and geometry of a scene.
type Stats struct {
	Meshes      int
	Primitives  int
	Triangles   int
	Vertices    int
	Nodes       int
	Skins       int
	Materials   int
	Images      int
	Buffers     int
	BufferViews int
	Accessors   int
	BufferBytes int
}

// Collect gathers statistics for doc.
func Collect(doc *gltf.Document) Stats {
	st := Stats{
		Meshes:      len(doc.Meshes),
		Nodes:       len(doc.Nodes),
		Skins:       len(doc.Skins),
		Materials:   len(doc.Materials),
		Images:      len(doc.Images),
		Buffers:     len(doc.Buffers),
		BufferViews: len(doc.BufferViews),
		Accessors:   len(doc.Accessors),
	}
	for _, buf := range doc.Buffers {
		st.BufferBytes += buf.ByteLength
	}
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			st.Primitives++
			pos, ok := prim.Attributes[scene.AttrPosition]
			if ok {
				st.Vertices += doc.Accessors[pos].Count
			}
			if prim.Mode != gltf.PrimitiveTriangles {
				continue
			}
			switch {
			case prim.Indices != nil:
				st.Triangles += doc.Accessors[*prim.Indices].Count / 3
			case ok:
				st.Triangles += doc.Accessors[pos].Count / 3
			}
		}
	}
	return st
}

// Fields returns the statistics as structured log fields.
func (s Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("meshes", s.Meshes),
		zap.Int("primitives", s.Primitives),
		zap.Int("triangles", s.Triangles),
		zap.Int("vertices", s.Vertices),
		zap.Int("nodes", s.Nodes),
		zap.Int("skins", s.Skins),
		zap.Int("materials", s.Materials),
		zap.Int("images", s.Images),
		zap.Int("buffers", s.Buffers),
		zap.Int("bufferViews", s.BufferViews),
		zap.Int("accessors", s.Accessors),
		zap.Int("bufferBytes", s.BufferBytes),
	}
}
