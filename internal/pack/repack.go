package pack

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/vrmpack/internal/logger"
	"github.com/Faultbox/vrmpack/pkg/glb"
	"github.com/Faultbox/vrmpack/pkg/scene"
)

// ViewMove records where compaction placed one buffer view.
type ViewMove struct {
	Buffer    int
	View      int
	OldOffset int
	NewOffset int
	Length    int
}

// RepackStats summarises a Repack call.
type RepackStats struct {
	RecordsWritten int
	IndicesBefore  int
	IndicesAfter   int
	Buffers        []int // compacted buffers, ascending
	BytesBefore    int   // declared size of the compacted buffers before
	BytesAfter     int
	Moves          []ViewMove
	// Unshrunk lists index views whose declared length was left as is
	// because they are shared, strided or read at an offset. Bytes past
	// the new count stay in place.
	Unshrunk []int
}

// Repack writes every changed record's indices back into the scene and
// compacts each buffer that holds a rewritten region.
//
// Phase 1 writes the new indices over the old ones at the current offset,
// at the accessor's original component width, and shrinks the buffer view
// when the accessor owns it outright. Indices only shrink, so the write
// stays inside the old region. Phase 2 then re-lays each touched buffer:
// its views are copied, in ascending original offset, to a fresh byte slice
// at 4-byte aligned offsets, and the buffer's size becomes the final cursor.
// Views of untouched buffers are never visited.
func Repack(doc *gltf.Document, records []*MeshRecord) (*RepackStats, error) {
	stats := &RepackStats{}
	refs := scene.ViewRefCounts(doc)
	touched := make(map[int]bool)

	for _, rec := range records {
		if !rec.Changed() || rec.Owner >= 0 {
			continue
		}
		buffer, shrunk, err := writeIndices(doc, rec, refs)
		if err != nil {
			return nil, err
		}
		if !shrunk {
			stats.Unshrunk = append(stats.Unshrunk, *doc.Accessors[rec.IndexAccessor].BufferView)
		}
		touched[buffer] = true
		stats.RecordsWritten++
		stats.IndicesBefore += rec.OriginalIndexCount
		stats.IndicesAfter += len(rec.Indices)
	}

	for b := range touched {
		stats.Buffers = append(stats.Buffers, b)
	}
	slices.Sort(stats.Buffers)

	for _, b := range stats.Buffers {
		stats.BytesBefore += doc.Buffers[b].ByteLength
		moves, err := compact(doc, b)
		if err != nil {
			return nil, err
		}
		if err := CheckLayout(doc, b); err != nil {
			return nil, err
		}
		stats.BytesAfter += doc.Buffers[b].ByteLength
		stats.Moves = append(stats.Moves, moves...)
	}

	return stats, nil
}

// writeIndices is phase 1 for one record. It returns the buffer it wrote to
// and whether the buffer view was shrunk to the new index count.
func writeIndices(doc *gltf.Document, rec *MeshRecord, refs []int) (int, bool, error) {
	acc := doc.Accessors[rec.IndexAccessor]
	if acc.BufferView == nil || acc.Sparse != nil {
		return 0, false, fmt.Errorf("%w: %s: index accessor %d cannot be rewritten in place",
			ErrLayoutInvariant, rec, rec.IndexAccessor)
	}
	if len(rec.Indices) > acc.Count {
		return 0, false, fmt.Errorf("%w: %s: index region would grow from %d to %d",
			ErrLayoutInvariant, rec, acc.Count, len(rec.Indices))
	}

	region, stride, err := scene.AccessorBytes(doc, rec.IndexAccessor)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", ErrLayoutInvariant, rec, err)
	}

	width := scene.ComponentSize(acc.ComponentType)
	var limit uint32
	switch width {
	case 1:
		limit = 0xFF
	case 2:
		limit = 0xFFFF
	case 4:
		limit = 0xFFFFFFFF
	default:
		return 0, false, fmt.Errorf("%w: %s: index width %d", ErrLayoutInvariant, rec, width)
	}
	for i, v := range rec.Indices {
		if v > limit {
			return 0, false, fmt.Errorf("%w: %s: index %d does not fit %d bytes", ErrLayoutInvariant, rec, v, width)
		}
		dst := region[i*stride:]
		switch width {
		case 1:
			dst[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(dst, uint16(v))
		default:
			binary.LittleEndian.PutUint32(dst, v)
		}
	}

	acc.Count = len(rec.Indices)
	if acc.Min != nil || acc.Max != nil {
		lo, hi := indexBounds(rec.Indices)
		acc.Min, acc.Max = []float64{float64(lo)}, []float64{float64(hi)}
	}

	view := *acc.BufferView
	bv := doc.BufferViews[view]
	if refs[view] != 1 || acc.ByteOffset != 0 || bv.ByteStride != 0 {
		logger.Named("repack").Debug("index view kept at full length",
			zap.Stringer("record", rec),
			zap.Int("view", view),
			zap.Int("refs", refs[view]),
			zap.Int("accessorOffset", acc.ByteOffset),
			zap.Int("stride", bv.ByteStride))
		return bv.Buffer, false, nil
	}
	bv.ByteLength = acc.Count * width
	return bv.Buffer, true, nil
}

func indexBounds(indices []uint32) (uint32, uint32) {
	if len(indices) == 0 {
		return 0, 0
	}
	lo, hi := indices[0], indices[0]
	for _, v := range indices[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// BufferViews returns the views of buffer b ordered by offset, then index.
func BufferViews(doc *gltf.Document, b int) []int {
	var views []int
	for i, bv := range doc.BufferViews {
		if bv.Buffer == b {
			views = append(views, i)
		}
	}
	slices.SortStableFunc(views, func(x, y int) int {
		return cmp.Compare(doc.BufferViews[x].ByteOffset, doc.BufferViews[y].ByteOffset)
	})
	return views
}

// compact is phase 2 for one buffer.
func compact(doc *gltf.Document, b int) ([]ViewMove, error) {
	log := logger.Named("repack")
	buf := doc.Buffers[b]

	out := make([]byte, 0, len(buf.Data))
	var moves []ViewMove
	for _, v := range BufferViews(doc, b) {
		bv := doc.BufferViews[v]
		end := bv.ByteOffset + bv.ByteLength
		if bv.ByteOffset < 0 || bv.ByteLength < 0 || end > len(buf.Data) {
			return nil, fmt.Errorf("%w: buffer view %d range [%d,%d) outside buffer %d (%d bytes)",
				ErrLayoutInvariant, v, bv.ByteOffset, end, b, len(buf.Data))
		}

		cursor := len(out)
		out = append(out, buf.Data[bv.ByteOffset:end]...)
		out = append(out, make([]byte, glb.Pad(len(out))-len(out))...)

		moves = append(moves, ViewMove{
			Buffer:    b,
			View:      v,
			OldOffset: bv.ByteOffset,
			NewOffset: cursor,
			Length:    bv.ByteLength,
		})
		if bv.ByteOffset != cursor {
			log.Debug("view moved",
				zap.Int("buffer", b),
				zap.Int("view", v),
				zap.Int("from", bv.ByteOffset),
				zap.Int("to", cursor),
				zap.Int("length", bv.ByteLength))
		}
		bv.ByteOffset = cursor
	}

	buf.Data = out
	buf.ByteLength = len(out)
	return moves, nil
}

// CheckLayout verifies that buffer b is tightly packed: views are 4-byte
// aligned, do not overlap, lie inside the buffer, and the buffer's size is
// the sum of their aligned sizes.
func CheckLayout(doc *gltf.Document, b int) error {
	buf := doc.Buffers[b]
	if len(buf.Data) != buf.ByteLength {
		return fmt.Errorf("%w: buffer %d holds %d bytes, declares %d",
			ErrLayoutInvariant, b, len(buf.Data), buf.ByteLength)
	}

	sum, prevEnd := 0, 0
	for _, v := range BufferViews(doc, b) {
		bv := doc.BufferViews[v]
		switch {
		case bv.ByteOffset%glb.Alignment != 0:
			return fmt.Errorf("%w: buffer view %d offset %d is not %d-byte aligned",
				ErrLayoutInvariant, v, bv.ByteOffset, glb.Alignment)
		case bv.ByteOffset < prevEnd:
			return fmt.Errorf("%w: buffer view %d overlaps its predecessor in buffer %d", ErrLayoutInvariant, v, b)
		case bv.ByteOffset+bv.ByteLength > buf.ByteLength:
			return fmt.Errorf("%w: buffer view %d ends past buffer %d", ErrLayoutInvariant, v, b)
		}
		prevEnd = bv.ByteOffset + bv.ByteLength
		sum += glb.Pad(bv.ByteLength)
	}
	if sum != buf.ByteLength {
		return fmt.Errorf("%w: buffer %d size %d, views need %d", ErrLayoutInvariant, b, buf.ByteLength, sum)
	}
	return nil
}
