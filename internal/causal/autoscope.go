package causal

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/token"
)

// defaultAutoScopeMinRows is the stock row-count floor applied alongside
// the stock 70% 2-star-plus share threshold. Both are heuristic constants,
// not derived from first principles; Config can override them.
const (
	defaultAutoScopeShare   = 0.7
	defaultAutoScopeMinRows = 2000
)

// AutoScope restricts the base to a unit's 2-star-plus subset when that is
// where the unit actually lives.
//
// If the caller has not already added a star filter (U:unit:k for some k)
// to include, and the 2-star-plus subset of base makes up at least share of
// base and at least minRows rows, base is narrowed to that subset and
// scopeMinStar is 2. Otherwise base is returned unchanged and scopeMinStar
// is 0 ("unset"). AutoScope does not check that unit itself is in include
// or that base is limited to unit's boards.
func AutoScope(eng *engine.Engine, base *roaring.Bitmap, unit string, include []string, share float64, minRows int) (scoped *roaring.Bitmap, scopeMinStar uint8) {
	if hasStarFilter(include, unit) {
		return base, 0
	}
	nBase := base.GetCardinality()
	if nBase == 0 {
		return base, 0
	}
	twoPlus := twoStarPlusBitmap(eng, unit, base)
	n2 := twoPlus.GetCardinality()
	if float64(n2)/float64(nBase) >= share && n2 >= uint64(minRows) {
		return twoPlus, 2
	}
	return base, 0
}

func hasStarFilter(include []string, unit string) bool {
	for _, raw := range include {
		parsed, ok := token.Parse(raw)
		if ok && parsed.Kind == token.UnitStar && parsed.Unit == unit {
			return true
		}
	}
	return false
}

// twoStarPlusBitmap unions every U:unit:k token for k >= 2 and intersects
// with base.
func twoStarPlusBitmap(eng *engine.Engine, unit string, base *roaring.Bitmap) *roaring.Bitmap {
	union := roaring.New()
	for k := 2; k <= 6; k++ {
		if bm := eng.Index.BitmapFor(token.UnitStarTok(unit, k).String()); bm != nil {
			union.Or(bm)
		}
	}
	union.And(base)
	return union
}
