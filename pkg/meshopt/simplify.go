package meshopt

import (
	"sort"

	m "github.com/Faultbox/vrmpack/pkg/math"
)

// maxPasses bounds the number of collapse rounds.
const maxPasses = 64

// collapse moves vertex From onto vertex To.
type collapse struct {
	From, To uint32
	Cost     float64
}

// Simplify reduces indices toward targetIndexCount with quadric-error edge
// collapses, never moving a vertex farther than targetError (relative to
// the mesh extent) from the surface it approximated.
//
// Vertices on open borders and on attribute seams (several vertices sharing
// one position) are locked, so the result preserves mesh boundaries and UV
// islands; such locks may keep the result above the target, in which case
// the best reachable index list is returned. The result is a multiple of 3,
// never longer than the input, and references original vertices only.
func Simplify(indices []uint32, positions []float32, vertexCount, stride, targetIndexCount int, targetError float32) []uint32 {
	out := triangles(indices)
	verts := loadPositions(positions, vertexCount, stride)
	if len(out) <= targetIndexCount || !validIndices(out, len(verts)) {
		return out
	}

	locked := lockedVertices(out, verts)
	limit := float64(targetError * extent(verts, out))
	limit *= limit

	quadrics := make([]m.Quadric, len(verts))
	for t := 0; t < len(out); t += 3 {
		a, b, c := out[t], out[t+1], out[t+2]
		q := m.PlaneQuadric(verts[a], verts[b], verts[c])
		quadrics[a] = quadrics[a].Add(q)
		quadrics[b] = quadrics[b].Add(q)
		quadrics[c] = quadrics[c].Add(q)
	}

	remap := make([]uint32, len(verts))
	for i := range remap {
		remap[i] = uint32(i)
	}

	targetTris := targetIndexCount / 3
	for pass := 0; pass < maxPasses && len(out)/3 > targetTris; pass++ {
		adj := buildAdjacency(out, len(verts))
		cands := gatherCollapses(out, verts, quadrics, locked, limit)
		if len(cands) == 0 {
			break
		}

		touched := make([]bool, len(verts))
		tris := len(out) / 3
		applied := 0
		for _, c := range cands {
			if tris <= targetTris {
				break
			}
			if touched[c.From] || touched[c.To] {
				continue
			}
			if flips(out, adj[c.From], verts, c.From, c.To) {
				continue
			}

			remap[c.From] = c.To
			quadrics[c.To] = quadrics[c.To].Add(quadrics[c.From])
			for _, t := range adj[c.From] {
				tri := out[t*3 : t*3+3]
				touched[tri[0]], touched[tri[1]], touched[tri[2]] = true, true, true
				if tri[0] == c.To || tri[1] == c.To || tri[2] == c.To {
					tris--
				}
			}
			applied++
		}
		if applied == 0 {
			break
		}
		out = applyRemap(out, remap)
	}

	return out
}

// lockedVertices marks vertices that must not move: vertices on an open
// border of the position-welded mesh and vertices that share their position
// with another vertex.
func lockedVertices(indices []uint32, verts []m.Vec3) []bool {
	weld := make([]uint32, len(verts))
	first := make(map[m.Vec3]uint32, len(verts))
	seam := make([]bool, len(verts))
	for i, p := range verts {
		if f, ok := first[p]; ok {
			weld[i] = f
			seam[i] = true
			seam[f] = true
			continue
		}
		first[p] = uint32(i)
		weld[i] = uint32(i)
	}

	type edge struct{ a, b uint32 }
	half := make(map[edge]int, len(indices))
	for t := 0; t < len(indices); t += 3 {
		for k := 0; k < 3; k++ {
			a, b := weld[indices[t+k]], weld[indices[t+(k+1)%3]]
			half[edge{a, b}]++
		}
	}

	border := make([]bool, len(verts))
	for e := range half {
		if half[edge{e.b, e.a}] == 0 {
			border[e.a] = true
			border[e.b] = true
		}
	}

	locked := make([]bool, len(verts))
	for i := range verts {
		locked[i] = seam[i] || border[weld[i]]
	}
	return locked
}

// buildAdjacency lists, per vertex, the triangles that use it.
func buildAdjacency(indices []uint32, vertexCount int) [][]int {
	adj := make([][]int, vertexCount)
	for t := 0; t < len(indices)/3; t++ {
		for k := 0; k < 3; k++ {
			v := indices[t*3+k]
			adj[v] = append(adj[v], t)
		}
	}
	return adj
}

// gatherCollapses returns every admissible directed edge collapse within the
// error limit, cheapest first.
func gatherCollapses(indices []uint32, verts []m.Vec3, quadrics []m.Quadric, locked []bool, limit float64) []collapse {
	seen := make(map[[2]uint32]bool, len(indices))
	var cands []collapse

	consider := func(from, to uint32) {
		if locked[from] || from == to {
			return
		}
		key := [2]uint32{from, to}
		if seen[key] {
			return
		}
		seen[key] = true

		cost := quadrics[from].Add(quadrics[to]).MeanError(verts[to])
		if cost <= limit {
			cands = append(cands, collapse{From: from, To: to, Cost: cost})
		}
	}

	for t := 0; t < len(indices); t += 3 {
		for k := 0; k < 3; k++ {
			a, b := indices[t+k], indices[t+(k+1)%3]
			consider(a, b)
			consider(b, a)
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Cost < cands[j].Cost
	})
	return cands
}

// minNormalDot is the smallest cosine allowed between a triangle's normal
// before and after a collapse.
const minNormalDot = 1e-3

// flips reports whether moving from onto to would turn any surviving
// triangle around from upside down or flatten it.
func flips(indices []uint32, around []int, verts []m.Vec3, from, to uint32) bool {
	target := verts[to]
	for _, t := range around {
		tri := indices[t*3 : t*3+3]
		if tri[0] == to || tri[1] == to || tri[2] == to {
			continue
		}

		var p, q [3]m.Vec3
		for k, v := range tri {
			p[k] = verts[v]
			q[k] = verts[v]
			if v == from {
				q[k] = target
			}
		}

		before := p[1].Sub(p[0]).Cross(p[2].Sub(p[0]))
		if before == (m.Vec3{}) {
			continue
		}
		after := q[1].Sub(q[0]).Cross(q[2].Sub(q[0]))
		if before.Normalize().Dot(after.Normalize()) < minNormalDot {
			return true
		}
	}
	return false
}

// applyRemap rewrites indices through remap and drops triangles that
// became degenerate.
func applyRemap(indices []uint32, remap []uint32) []uint32 {
	out := indices[:0]
	for t := 0; t < len(indices); t += 3 {
		a, b, c := remap[indices[t]], remap[indices[t+1]], remap[indices[t+2]]
		if a == b || b == c || a == c {
			continue
		}
		out = append(out, a, b, c)
	}
	return out
}
