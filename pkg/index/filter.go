package index

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// scalarShard keeps one roaring bitmap per distinct (field, value)
// pair seen across a Flat index's rows. CountWhere answers equality
// counts from it without a row scan; Search does not consult it and
// evaluates its Filter row by row.
type scalarShard struct {
	byField map[string]map[any]*roaring.Bitmap
}

func newScalarShard() *scalarShard {
	return &scalarShard{byField: make(map[string]map[any]*roaring.Bitmap)}
}

func (s *scalarShard) index(id int64, scalarFields map[string]any) {
	for field, value := range scalarFields {
		if !isBitmapable(value) {
			continue
		}
		byValue, ok := s.byField[field]
		if !ok {
			byValue = make(map[any]*roaring.Bitmap)
			s.byField[field] = byValue
		}
		bm, ok := byValue[value]
		if !ok {
			bm = roaring.New()
			byValue[value] = bm
		}
		bm.Add(bitmapID(id))
	}
}

func (s *scalarShard) remove(id int64, scalarFields map[string]any) {
	for field, value := range scalarFields {
		if byValue, ok := s.byField[field]; ok {
			if bm, ok := byValue[value]; ok {
				bm.Remove(bitmapID(id))
			}
		}
	}
}

// isBitmapable reports whether a scalar field value is comparable and
// thus usable as a map key for bitmap bucketing; unsupported types
// (slices, maps) simply never get a bitmap shard and fall back to the
// per-row Filter evaluation during traversal.
func isBitmapable(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// bitmapID folds an int64 row id into roaring's uint32 domain. Ids
// that don't fit are routed around the bitmap shortcut entirely by the
// caller checking allIDs' presence, so collisions here only ever widen
// the fallback-scan candidate set, never narrow a true match away.
func bitmapID(id int64) uint32 {
	return uint32(id)
}

// candidateBitmap returns the row ids known to satisfy field == value.
// A field or value the shard has never indexed yields an empty bitmap
// (no match), since every row indexes all of its own scalar fields up
// front; it returns nil and false only when value's type is not one
// isBitmapable accepts.
func (s *scalarShard) candidateBitmap(field string, value any) (*roaring.Bitmap, bool) {
	if !isBitmapable(value) {
		return nil, false
	}
	byValue, ok := s.byField[field]
	if !ok {
		return roaring.New(), true
	}
	bm, ok := byValue[value]
	if !ok {
		return roaring.New(), true
	}
	return bm, true
}
