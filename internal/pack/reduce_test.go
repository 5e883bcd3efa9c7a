package pack

import (
	"context"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/vrmpack/internal/testasset"
)

func stripRecord(t *testing.T, triangles int) *MeshRecord {
	t.Helper()
	indices, positions := testasset.Strip(triangles)
	records, err := Extract(testasset.Build(testasset.Mesh{Name: "Strip", Indices: indices, Positions: positions}))
	require.NoError(t, err)
	return records[0]
}

func TestTargetIndexCount(t *testing.T) {
	tests := []struct {
		indices   int
		threshold float64
		want      int
	}{
		{300, 0.5, 150},
		{300, 1, 300},
		{301, 1, 300},
		{9, 0.5, 3},
		{3, 0.1, 0},
		{100, 0.33, 30},
		{0, 0.5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TargetIndexCount(tt.indices, tt.threshold), "%d @ %g", tt.indices, tt.threshold)
	}
}

func TestReduce_ThresholdOneIsNoop(t *testing.T) {
	rec := stripRecord(t, 100)
	simp := &stubSimplifier{}

	require.NoError(t, Reduce(rec, settings(1, true), simp))
	assert.Len(t, rec.Indices, 300)
	assert.Equal(t, PassNone, rec.Pass)
	assert.False(t, rec.Changed())
	assert.Zero(t, simp.qualityCalls.Load())
	assert.Zero(t, simp.sloppyCalls.Load())
}

func TestReduce_QualityReachesTarget(t *testing.T) {
	rec := stripRecord(t, 100)
	simp := &stubSimplifier{}

	require.NoError(t, Reduce(rec, settings(0.5, false), simp))
	assert.Len(t, rec.Indices, 150)
	assert.Equal(t, PassQuality, rec.Pass)
	assert.EqualValues(t, 1, simp.qualityCalls.Load())
	assert.Zero(t, simp.sloppyCalls.Load())
}

func TestReduce_BestEffortWithoutAggressive(t *testing.T) {
	rec := stripRecord(t, 100)
	simp := &stubSimplifier{quality: func(indices []uint32, target int) []uint32 {
		return truncate(indices, 240)
	}}

	require.NoError(t, Reduce(rec, settings(0.5, false), simp))
	assert.Len(t, rec.Indices, 240, "a missed target is accepted as is")
	assert.Equal(t, PassQuality, rec.Pass)
	assert.Zero(t, simp.sloppyCalls.Load())
}

func TestReduce_AggressiveFallback(t *testing.T) {
	rec := stripRecord(t, 100)
	orig := rec.Indices
	var sloppyInput []uint32
	simp := &stubSimplifier{
		quality: unchanged,
		sloppy: func(indices []uint32, target int) []uint32 {
			sloppyInput = indices
			return truncate(indices, target-3)
		},
	}

	require.NoError(t, Reduce(rec, settings(0.5, true), simp))
	assert.Len(t, rec.Indices, 147)
	assert.Equal(t, PassSloppy, rec.Pass)
	assert.Equal(t, orig, sloppyInput, "the sloppy pass starts from the original indices")
}

func TestReduce_AggressiveSkippedAtTarget(t *testing.T) {
	rec := stripRecord(t, 100)
	simp := &stubSimplifier{}

	require.NoError(t, Reduce(rec, settings(0.5, true), simp))
	assert.Len(t, rec.Indices, 150)
	assert.Equal(t, PassQuality, rec.Pass)
	assert.Zero(t, simp.sloppyCalls.Load(), "a result exactly at target does not trigger the fallback")
}

func TestReduce_EmptySloppyResultKeepsQuality(t *testing.T) {
	rec := stripRecord(t, 100)
	simp := &stubSimplifier{
		quality: func(indices []uint32, _ int) []uint32 { return truncate(indices, 270) },
		sloppy:  func([]uint32, int) []uint32 { return nil },
	}

	require.NoError(t, Reduce(rec, settings(0.5, true), simp))
	assert.EqualValues(t, 1, simp.sloppyCalls.Load())
	assert.Len(t, rec.Indices, 270)
	assert.Equal(t, PassQuality, rec.Pass)
	assert.True(t, rec.Changed())
}

func TestReduce_EmptyQualityResultKeepsRecord(t *testing.T) {
	rec := stripRecord(t, 100)
	simp := &stubSimplifier{quality: func([]uint32, int) []uint32 { return nil }}

	require.NoError(t, Reduce(rec, settings(0.5, false), simp))
	assert.Len(t, rec.Indices, 300)
	assert.Equal(t, PassNone, rec.Pass)
	assert.False(t, rec.Changed())
}

func TestReduce_AggressiveNeverWorseThanQuality(t *testing.T) {
	indices, positions := testasset.Grid(4, 4)
	build := func() *MeshRecord {
		records, err := Extract(testasset.Build(testasset.Mesh{Name: "Plane", Indices: indices, Positions: positions}))
		require.NoError(t, err)
		return records[0]
	}

	quality := build()
	require.NoError(t, Reduce(quality, settings(0.02, false), Meshopt{}))

	aggressive := build()
	require.NoError(t, Reduce(aggressive, settings(0.02, true), Meshopt{}))
	assert.NotEmpty(t, aggressive.Indices)
	assert.LessOrEqual(t, len(aggressive.Indices), len(quality.Indices))
}

func TestReduce_KeepsOneTriangle(t *testing.T) {
	rec := stripRecord(t, 4)
	var gotTarget int
	simp := &stubSimplifier{quality: func(indices []uint32, target int) []uint32 {
		gotTarget = target
		return truncate(indices, target)
	}}

	require.NoError(t, Reduce(rec, settings(0.01, false), simp))
	assert.Equal(t, 3, gotTarget)
	assert.Len(t, rec.Indices, 3)
}

func TestReduce_NonReducibleIsSkipped(t *testing.T) {
	rec := stripRecord(t, 10)
	rec.Reducible = false
	simp := &stubSimplifier{}

	require.NoError(t, Reduce(rec, settings(0.5, true), simp))
	assert.Len(t, rec.Indices, 30)
	assert.Zero(t, simp.qualityCalls.Load())
}

func TestReduce_ContractViolations(t *testing.T) {
	tests := []struct {
		name    string
		quality func([]uint32, int) []uint32
	}{
		{"grows", func(indices []uint32, _ int) []uint32 { return append(indices, 0, 1, 2) }},
		{"partial triangle", func(indices []uint32, _ int) []uint32 { return indices[:4] }},
		{"unknown vertex", func([]uint32, int) []uint32 { return []uint32{0, 1, 10000} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := stripRecord(t, 10)
			err := Reduce(rec, settings(0.5, false), &stubSimplifier{quality: tt.quality})
			assert.ErrorIs(t, err, ErrLayoutInvariant)
		})
	}
}

func TestReduce_WithMeshopt(t *testing.T) {
	// Every strip vertex is on the border, so the quality pass is stuck.
	rec := stripRecord(t, 100)
	require.NoError(t, Reduce(rec, settings(0.5, false), Meshopt{}))
	assert.Len(t, rec.Indices, 300)

	rec = stripRecord(t, 100)
	require.NoError(t, Reduce(rec, settings(0.5, true), Meshopt{}))
	assert.Zero(t, len(rec.Indices)%3)
	assert.LessOrEqual(t, len(rec.Indices), 300)
	if rec.Pass == PassSloppy {
		assert.LessOrEqual(t, len(rec.Indices), 150)
	}

	indices, positions := testasset.Grid(10, 10)
	records, err := Extract(testasset.Build(testasset.Mesh{Name: "Plane", Indices: indices, Positions: positions}))
	require.NoError(t, err)
	require.NoError(t, Reduce(records[0], settings(0.5, false), Meshopt{}))
	assert.Less(t, len(records[0].Indices), len(indices), "a flat grid reduces without the fallback")
}

func TestReduceAll(t *testing.T) {
	indices, positions := testasset.Grid(4, 4)
	doc := testasset.Build(
		testasset.Mesh{Name: "A", Indices: indices, Positions: positions},
		testasset.Mesh{Name: "B", Indices: indices, Positions: positions},
		testasset.Mesh{Name: "C", Indices: indices, Positions: positions},
	)
	// C reads A's index accessor and positions.
	doc.Meshes[2].Primitives[0].Indices = gltf.Index(0)
	doc.Meshes[2].Primitives[0].Attributes["POSITION"] = 1

	records, err := Extract(doc)
	require.NoError(t, err)

	st := settings(0.5, false)
	st.Workers = 2
	simp := &stubSimplifier{}
	require.NoError(t, ReduceAll(context.Background(), records, st, simp))

	assert.EqualValues(t, 2, simp.qualityCalls.Load(), "the sharer is not reduced on its own")
	assert.Len(t, records[0].Indices, 48)
	assert.Len(t, records[1].Indices, 48)
	assert.Equal(t, records[0].Indices, records[2].Indices)
	assert.Equal(t, PassQuality, records[2].Pass)
}

func TestReduceAll_StopsOnError(t *testing.T) {
	rec := stripRecord(t, 10)
	simp := &stubSimplifier{quality: func(indices []uint32, _ int) []uint32 { return append(indices, 0, 1, 2) }}

	err := ReduceAll(context.Background(), []*MeshRecord{rec}, settings(0.5, false), simp)
	assert.ErrorIs(t, err, ErrLayoutInvariant)
}

func TestReduceAll_Cancelled(t *testing.T) {
	rec := stripRecord(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ReduceAll(ctx, []*MeshRecord{rec}, settings(0.5, false), &stubSimplifier{})
	assert.ErrorIs(t, err, context.Canceled)
}
