// Package meshopt reduces the triangle count of indexed meshes.
//
// Both entry points take an index list and a strided float position stream
// and return a new index list that references the original vertices only;
// vertex data is never rewritten, so every other attribute stream of the
// mesh stays valid.
package meshopt

import (
	m "github.com/Faultbox/vrmpack/pkg/math"
)

// loadPositions unpacks vertexCount positions from a float stream whose
// consecutive vertices are stride bytes apart.
func loadPositions(positions []float32, vertexCount, stride int) []m.Vec3 {
	step := stride / 4
	if step < 3 {
		step = 3
	}
	if n := len(positions); vertexCount > 0 && n < step*(vertexCount-1)+3 {
		vertexCount = 0
		if n >= 3 {
			vertexCount = (n-3)/step + 1
		}
	}

	verts := make([]m.Vec3, vertexCount)
	for i := range verts {
		verts[i] = m.V3(positions, i*step)
	}
	return verts
}

// triangles returns a private copy of indices trimmed to whole triangles.
func triangles(indices []uint32) []uint32 {
	n := len(indices) / 3 * 3
	out := make([]uint32, n)
	copy(out, indices[:n])
	return out
}

// validIndices reports whether every index addresses a loaded vertex.
func validIndices(indices []uint32, vertexCount int) bool {
	for _, i := range indices {
		if int(i) >= vertexCount {
			return false
		}
	}
	return true
}

// extent returns the largest bounding-box dimension of the referenced vertices.
func extent(verts []m.Vec3, indices []uint32) float32 {
	if len(indices) == 0 {
		return 0
	}
	lo := verts[indices[0]]
	hi := lo
	for _, i := range indices[1:] {
		lo = lo.Min(verts[i])
		hi = hi.Max(verts[i])
	}
	return hi.Sub(lo).MaxComponent()
}
