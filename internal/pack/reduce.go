package pack

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/vrmpack/internal/config"
	"github.com/Faultbox/vrmpack/internal/logger"
	"github.com/Faultbox/vrmpack/pkg/meshopt"
)

// Pass identifies the reduction pass that produced a record's indices.
type Pass int

const (
	PassNone Pass = iota
	PassQuality
	PassSloppy
)

func (p Pass) String() string {
	switch p {
	case PassQuality:
		return "quality"
	case PassSloppy:
		return "sloppy"
	default:
		return "none"
	}
}

// Simplifier reduces an index list over a strided float position stream.
// Results must only reference existing vertices and never be longer than
// the input.
type Simplifier interface {
	Simplify(indices []uint32, positions []float32, vertexCount, stride, targetCount int, targetError float32) []uint32
	SimplifySloppy(indices []uint32, positions []float32, vertexCount, stride, targetCount int, targetError float32) []uint32
}

// Meshopt is the Simplifier backed by pkg/meshopt.
type Meshopt struct{}

func (Meshopt) Simplify(indices []uint32, positions []float32, vertexCount, stride, targetCount int, targetError float32) []uint32 {
	return meshopt.Simplify(indices, positions, vertexCount, stride, targetCount, targetError)
}

func (Meshopt) SimplifySloppy(indices []uint32, positions []float32, vertexCount, stride, targetCount int, targetError float32) []uint32 {
	return meshopt.SimplifySloppy(indices, positions, vertexCount, stride, targetCount, targetError)
}

// TargetIndexCount returns the index count that keeps threshold of the
// whole triangles in indexCount.
func TargetIndexCount(indexCount int, threshold float64) int {
	return int(float64(indexCount/3)*threshold) * 3
}

// Reduce replaces rec.Indices with a reduced list. The quality pass always
// runs first; with aggressive set, a result still above the target is
// replaced by the sloppy pass over the original indices unless that pass
// comes back empty. An empty quality result with no usable fallback leaves
// the record untouched. Records that are not reducible, or whose target is
// not below their index count, are left alone.
func Reduce(rec *MeshRecord, st config.Settings, simp Simplifier) error {
	if !rec.Reducible {
		return nil
	}
	n := len(rec.Indices)
	target := TargetIndexCount(n, st.SimplifyThreshold)
	// An accessor must keep at least one element.
	target = max(target, 3)
	if target >= n {
		return nil
	}

	out := simp.Simplify(rec.Indices, rec.Positions, rec.VertexCount, rec.PositionStride, target, st.TargetError)
	pass := PassQuality
	if err := checkReduced(rec, out); err != nil {
		return err
	}

	if st.SimplifyAggressive && len(out) > target {
		sloppy := simp.SimplifySloppy(rec.Indices, rec.Positions, rec.VertexCount, rec.PositionStride, target, st.TargetErrorAggressive)
		if err := checkReduced(rec, sloppy); err != nil {
			return err
		}
		if len(sloppy) > 0 {
			out, pass = sloppy, PassSloppy
		}
	}

	// An accessor cannot be emptied; keep the source geometry instead.
	if len(out) == 0 {
		return nil
	}

	rec.Indices = out
	rec.Pass = pass
	return nil
}

// checkReduced asserts the simplifier contract before a result can reach
// the repacker.
func checkReduced(rec *MeshRecord, out []uint32) error {
	if len(out)%3 != 0 {
		return fmt.Errorf("%w: %s: reduced index count %d is not whole triangles", ErrLayoutInvariant, rec, len(out))
	}
	if len(out) > len(rec.Indices) {
		return fmt.Errorf("%w: %s: reduction grew indices from %d to %d", ErrLayoutInvariant, rec, len(rec.Indices), len(out))
	}
	for _, v := range out {
		if int(v) >= rec.VertexCount {
			return fmt.Errorf("%w: %s: reduced index %d out of %d vertices", ErrLayoutInvariant, rec, v, rec.VertexCount)
		}
	}
	return nil
}

// ReduceAll reduces records concurrently, at most st.Workers at a time
// (one per CPU when zero). Each record is read and written by exactly one
// goroutine. Records sharing an index accessor adopt their owner's result.
func ReduceAll(ctx context.Context, records []*MeshRecord, st config.Settings, simp Simplifier) error {
	log := logger.Named("reduce")

	workers := st.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := Reduce(rec, st, simp); err != nil {
				return err
			}
			if !rec.Reducible {
				log.Debug("skipped", zap.Stringer("record", rec), zap.String("reason", rec.Reason))
				return nil
			}
			log.Debug("reduced",
				zap.Stringer("record", rec),
				zap.Int("before", rec.OriginalIndexCount),
				zap.Int("after", len(rec.Indices)),
				zap.Stringer("pass", rec.Pass))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Owner < 0 {
			continue
		}
		if owner := records[rec.Owner]; owner.Changed() {
			rec.Indices = slices.Clone(owner.Indices)
			rec.Pass = owner.Pass
		}
	}
	return nil
}
