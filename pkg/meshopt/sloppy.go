package meshopt

import (
	"container/heap"
	"math"

	"github.com/chewxy/math32"
	"github.com/fogleman/simplify"

	m "github.com/Faultbox/vrmpack/pkg/math"
)

// sloppyAttempts bounds how often the collapse target is adjusted when
// snapping leaves the result above target or empty.
const sloppyAttempts = 4

// SimplifySloppy reduces indices to at most targetIndexCount, disregarding
// borders, attribute seams and topology.
//
// The mesh is welded by position and reduced with quadric edge collapse,
// which places merged vertices at new optimal positions; every output corner
// is then snapped back to the nearest original vertex so the result indexes
// the existing vertex streams. targetError sizes the snapping grid relative
// to the mesh extent. The result is a multiple of 3, never longer than
// min(len(indices), targetIndexCount), and non-empty whenever the input is
// non-empty and the target holds at least one triangle. Equal input always
// gives equal output.
func SimplifySloppy(indices []uint32, positions []float32, vertexCount, stride, targetIndexCount int, targetError float32) []uint32 {
	out := triangles(indices)
	verts := loadPositions(positions, vertexCount, stride)
	if len(out) <= targetIndexCount || !validIndices(out, len(verts)) {
		return out
	}
	targetIndexCount = targetIndexCount / 3 * 3
	if targetIndexCount <= 0 {
		return out[:0]
	}

	soup := make([]*simplify.Triangle, 0, len(out)/3)
	for t := 0; t < len(out); t += 3 {
		soup = append(soup, simplify.NewTriangle(vec(verts[out[t]]), vec(verts[out[t+1]]), vec(verts[out[t+2]])))
	}

	grid := newSnapGrid(verts, out, targetError)

	faces := targetIndexCount / 3
	var best []uint32
	for attempt := 0; attempt < sloppyAttempts; attempt++ {
		snapped := snapTriangles(collapseSoup(soup, faces), grid)
		if better(snapped, best, targetIndexCount) {
			best = snapped
		}
		if len(best) > 0 && len(best) <= targetIndexCount {
			break
		}

		next := faces
		if len(snapped) == 0 {
			// Snapping merged every corner; collapse less.
			next = min(len(soup), faces*2)
		} else {
			next = max(1, faces*targetIndexCount/len(snapped))
		}
		if next == faces {
			break
		}
		faces = next
	}

	if best == nil {
		best = out
	}
	if len(best) > targetIndexCount {
		best = best[:targetIndexCount]
	}
	return best
}

// better reports whether cand should replace best: a non-empty result
// within target beats one above it, the longest result within target wins,
// and above target the shortest wins.
func better(cand, best []uint32, target int) bool {
	switch {
	case len(cand) == 0:
		return false
	case best == nil:
		return true
	}
	candIn, bestIn := len(cand) <= target, len(best) <= target
	if candIn != bestIn {
		return candIn
	}
	if candIn {
		return len(cand) > len(best)
	}
	return len(cand) < len(best)
}

// collapseSoup reduces the soup to at most targetFaces faces with quadric edge
// collapse. It drives the simplify package's vertex, face and pair types
// in insertion order and breaks queue ties by position, so the result does
// not depend on map iteration order. It stops early when no collapsible
// pair is left.
func collapseSoup(tris []*simplify.Triangle, targetFaces int) []*simplify.Triangle {
	byPos := make(map[simplify.Vector]*simplify.Vertex)
	vertex := func(v simplify.Vector) *simplify.Vertex {
		if x, ok := byPos[v]; ok {
			return x
		}
		x := simplify.NewVertex(v)
		byPos[v] = x
		return x
	}

	var faces []*simplify.Face
	vertexFaces := make(map[*simplify.Vertex][]*simplify.Face)
	for _, t := range tris {
		f := simplify.NewFace(vertex(t.V1), vertex(t.V2), vertex(t.V3))
		if f.Degenerate() {
			continue
		}
		q := t.Quadric()
		for _, v := range []*simplify.Vertex{f.V1, f.V2, f.V3} {
			v.Quadric = v.Quadric.Add(q)
			vertexFaces[v] = append(vertexFaces[v], f)
		}
		faces = append(faces, f)
	}

	var queue pairQueue
	vertexPairs := make(map[*simplify.Vertex][]*simplify.Pair)
	known := make(map[simplify.PairKey]bool)
	for _, f := range faces {
		for _, e := range [][2]*simplify.Vertex{{f.V1, f.V2}, {f.V2, f.V3}, {f.V3, f.V1}} {
			key := simplify.MakePairKey(e[0], e[1])
			if known[key] {
				continue
			}
			known[key] = true
			p := simplify.NewPair(e[0], e[1])
			heap.Push(&queue, p)
			vertexPairs[p.A] = append(vertexPairs[p.A], p)
			vertexPairs[p.B] = append(vertexPairs[p.B], p)
		}
	}

	numFaces := len(faces)
	for numFaces > targetFaces && queue.Len() > 0 {
		p := heap.Pop(&queue).(*simplify.Pair)
		if p.Removed {
			continue
		}
		p.Removed = true

		related := live(func(f *simplify.Face) bool { return f.Removed }, vertexFaces[p.A], vertexFaces[p.B])
		pairs := live(func(q *simplify.Pair) bool { return q.Removed }, vertexPairs[p.A], vertexPairs[p.B])

		v := &simplify.Vertex{Vector: p.Vector(), Quadric: p.Quadric()}
		rename := func(x *simplify.Vertex) *simplify.Vertex {
			if x == p.A || x == p.B {
				return v
			}
			return x
		}

		newFaces := make([]*simplify.Face, 0, len(related))
		valid := true
		for _, f := range related {
			face := simplify.NewFace(rename(f.V1), rename(f.V2), rename(f.V3))
			if face.Degenerate() {
				continue
			}
			if face.Normal().Dot(f.Normal()) < 1e-3 {
				valid = false
				break
			}
			newFaces = append(newFaces, face)
		}
		if !valid {
			continue
		}

		delete(vertexFaces, p.A)
		delete(vertexFaces, p.B)
		for _, f := range related {
			f.Removed = true
			numFaces--
		}
		for _, f := range newFaces {
			numFaces++
			faces = append(faces, f)
			vertexFaces[f.V1] = append(vertexFaces[f.V1], f)
			vertexFaces[f.V2] = append(vertexFaces[f.V2], f)
			vertexFaces[f.V3] = append(vertexFaces[f.V3], f)
		}

		delete(vertexPairs, p.A)
		delete(vertexPairs, p.B)
		neighbours := make(map[simplify.Vector]bool)
		for _, q := range pairs {
			q.Removed = true
			heap.Remove(&queue, q.Index)
			a, b := rename(q.A), rename(q.B)
			if b == v {
				a, b = b, a
			}
			if neighbours[b.Vector] {
				continue
			}
			neighbours[b.Vector] = true
			q = simplify.NewPair(a, b)
			heap.Push(&queue, q)
			vertexPairs[a] = append(vertexPairs[a], q)
			vertexPairs[b] = append(vertexPairs[b], q)
		}
	}

	out := make([]*simplify.Triangle, 0, numFaces)
	for _, f := range faces {
		if !f.Removed {
			out = append(out, simplify.NewTriangle(f.V1.Vector, f.V2.Vector, f.V3.Vector))
		}
	}
	return out
}

// live merges lists in order, dropping removed and repeated entries.
func live[T comparable](removed func(T) bool, lists ...[]T) []T {
	seen := make(map[T]bool)
	var out []T
	for _, list := range lists {
		for _, x := range list {
			if !removed(x) && !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
	}
	return out
}

// pairQueue orders collapse candidates by error, then by endpoint position.
type pairQueue []*simplify.Pair

func (q pairQueue) Len() int { return len(q) }

func (q pairQueue) Less(i, j int) bool {
	ei, ej := q[i].Error(), q[j].Error()
	if ei != ej {
		return ei < ej
	}
	if q[i].A.Vector != q[j].A.Vector {
		return q[i].A.Less(q[j].A.Vector)
	}
	return q[i].B.Less(q[j].B.Vector)
}

func (q pairQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].Index = i
	q[j].Index = j
}

func (q *pairQueue) Push(x any) {
	p := x.(*simplify.Pair)
	p.Index = len(*q)
	*q = append(*q, p)
}

func (q *pairQueue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	p.Index = -1
	*q = old[:n-1]
	return p
}

func vec(v m.Vec3) simplify.Vector {
	return simplify.Vector{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// snapTriangles maps reduced triangles back onto original vertices, dropping
// triangles that collapse or repeat.
func snapTriangles(tris []*simplify.Triangle, grid *snapGrid) []uint32 {
	seen := make(map[[3]uint32]bool, len(tris))
	out := make([]uint32, 0, len(tris)*3)

	for _, t := range tris {
		a := grid.nearest(t.V1)
		b := grid.nearest(t.V2)
		c := grid.nearest(t.V3)
		if a == b || b == c || a == c {
			continue
		}

		// Rotate so the smallest index leads; keeps winding, makes repeats comparable.
		key := [3]uint32{a, b, c}
		for key[0] > key[1] || key[0] > key[2] {
			key = [3]uint32{key[1], key[2], key[0]}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a, b, c)
	}
	return out
}

// snapGrid is a uniform grid over the referenced vertices for nearest-vertex
// queries.
type snapGrid struct {
	verts  []m.Vec3
	origin m.Vec3
	cell   float32
	dims   [3]int
	cells  map[[3]int][]uint32
}

func newSnapGrid(verts []m.Vec3, indices []uint32, targetError float32) *snapGrid {
	ext := extent(verts, indices)
	cell := targetError * ext
	// Keep the grid between 8 and 1024 cells per axis.
	cell = math32.Max(cell, ext/1024)
	cell = math32.Min(cell, ext/8)
	if cell <= 0 {
		cell = 1
	}

	g := &snapGrid{
		verts: verts,
		cell:  cell,
		cells: make(map[[3]int][]uint32),
	}

	used := make([]bool, len(verts))
	g.origin = verts[indices[0]]
	hi := g.origin
	for _, i := range indices {
		used[i] = true
		g.origin = g.origin.Min(verts[i])
		hi = hi.Max(verts[i])
	}
	span := hi.Sub(g.origin)
	g.dims = [3]int{
		int(span.X/cell) + 1,
		int(span.Y/cell) + 1,
		int(span.Z/cell) + 1,
	}

	for i, ok := range used {
		if ok {
			k := g.key(verts[i])
			g.cells[k] = append(g.cells[k], uint32(i))
		}
	}
	return g
}

func (g *snapGrid) key(p m.Vec3) [3]int {
	d := p.Sub(g.origin)
	return [3]int{
		clampInt(int(math32.Floor(d.X/g.cell)), 0, g.dims[0]-1),
		clampInt(int(math32.Floor(d.Y/g.cell)), 0, g.dims[1]-1),
		clampInt(int(math32.Floor(d.Z/g.cell)), 0, g.dims[2]-1),
	}
}

// nearest returns the closest indexed vertex to v, searching rings of cells
// outward until no closer vertex can exist.
func (g *snapGrid) nearest(v simplify.Vector) uint32 {
	p := m.Vec3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
	center := g.key(p)

	best := uint32(0)
	bestDist := float32(math.MaxFloat32)
	found := false

	maxRing := max(g.dims[0], g.dims[1], g.dims[2])
	for r := 0; r <= maxRing; r++ {
		for x := center[0] - r; x <= center[0]+r; x++ {
			for y := center[1] - r; y <= center[1]+r; y++ {
				for z := center[2] - r; z <= center[2]+r; z++ {
					if absInt(x-center[0]) != r && absInt(y-center[1]) != r && absInt(z-center[2]) != r {
						continue
					}
					for _, i := range g.cells[[3]int{x, y, z}] {
						if d := g.verts[i].Distance(p); d < bestDist || (d == bestDist && i < best) {
							best, bestDist, found = i, d, true
						}
					}
				}
			}
		}
		// Anything in ring r+1 is at least r*cell away.
		if found && bestDist <= float32(r)*g.cell {
			break
		}
	}
	return best
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
