package math

// Quadric is a symmetric 4x4 error quadric (Garland-Heckbert) stored as its
// ten unique coefficients, plus the accumulated area weight.
//
//	| A  B  C  D |
//	| B  E  F  G |
//	| C  F  H  I |
//	| D  G  I  J |
type Quadric struct {
	A, B, C, D float64
	E, F, G    float64
	H, I       float64
	J          float64
	W          float64
}

// PlaneQuadric builds the quadric of the plane through p0, p1, p2, weighted by
// the triangle area. Degenerate triangles yield the zero quadric.
func PlaneQuadric(p0, p1, p2 Vec3) Quadric {
	n := p1.Sub(p0).Cross(p2.Sub(p0))
	area := n.Length()
	if area == 0 {
		return Quadric{}
	}
	n = n.Scale(1 / area)

	a, b, c := float64(n.X), float64(n.Y), float64(n.Z)
	d := -float64(n.Dot(p0))
	w := float64(area) * 0.5

	return Quadric{
		A: a * a * w, B: a * b * w, C: a * c * w, D: a * d * w,
		E: b * b * w, F: b * c * w, G: b * d * w,
		H: c * c * w, I: c * d * w,
		J: d * d * w,
		W: w,
	}
}

// Add returns q + other.
func (q Quadric) Add(other Quadric) Quadric {
	return Quadric{
		A: q.A + other.A, B: q.B + other.B, C: q.C + other.C, D: q.D + other.D,
		E: q.E + other.E, F: q.F + other.F, G: q.G + other.G,
		H: q.H + other.H, I: q.I + other.I,
		J: q.J + other.J,
		W: q.W + other.W,
	}
}

// Error evaluates vᵀQv, the weighted sum of squared distances from v to the
// accumulated planes.
func (q Quadric) Error(v Vec3) float64 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)

	r := q.A*x*x + 2*q.B*x*y + 2*q.C*x*z + 2*q.D*x +
		q.E*y*y + 2*q.F*y*z + 2*q.G*y +
		q.H*z*z + 2*q.I*z +
		q.J
	if r < 0 {
		return 0
	}
	return r
}

// MeanError returns Error(v) normalised by the accumulated weight, i.e. the
// mean squared plane distance.
func (q Quadric) MeanError(v Vec3) float64 {
	if q.W == 0 {
		return 0
	}
	return q.Error(v) / q.W
}
