package causal

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/taxonomy"
	"github.com/pable/smeecher/internal/token"
)

// Design is the dense design matrix X: sparse 0/1 token
// features horizontally concatenated with 7 rest-of-board numeric proxies.
// Rows are dense here (not sparse.CSR, unlike the clusterer) because AIPW's
// per-fold scale-then-regress learners need dense column access and the
// token vocabulary is pre-filtered down to a few hundred columns at most.
type Design struct {
	X        *mat.Dense
	Features []string // token columns only, in column order
}

// selectTokenFeatures picks Unit(base) and Trait(base+tiered) tokens that
// meet minTokenFreq (by global token count, mirroring cluster.SelectFeatures)
// and excludes the target unit, its base equipped token, and the target item
// itself, so X cannot mechanically encode the treatment.
func selectTokenFeatures(ix *bitmapidx.Index, unit, item string, minTokenFreq int) []string {
	excludeUnit := token.UnitTok(unit).String()
	excludeEquipped := token.EquippedTok(unit, item).String()
	excludeItem := token.ItemTok(item).String()

	var out []string
	for id, tok := range ix.IDToToken {
		if tok == excludeUnit || tok == excludeEquipped || tok == excludeItem {
			continue
		}
		parsed, ok := token.Parse(tok)
		if !ok {
			continue
		}
		switch parsed.Kind {
		case token.Unit, token.Trait, token.TraitTier:
			if int(ix.Stats[id].Count) >= minTokenFreq {
				out = append(out, tok)
			}
		}
	}
	sort.Strings(out)
	return out
}

// BuildDesign constructs X for rows identified by ids (row order preserved):
// 0/1 token presence columns followed by the 7 rest-of-board numeric
// proxies. The three item-count proxies subtract the copies of item equipped
// on unit within that row, so X cannot mechanically encode T.
func BuildDesign(eng *engine.Engine, unit, item string, ids []uint32, minTokenFreq int) Design {
	features := selectTokenFeatures(eng.Index, unit, item, minTokenFreq)
	n := len(ids)
	p := len(features) + 7
	X := mat.NewDense(n, p, nil)

	for col, tok := range features {
		bm := eng.Index.BitmapFor(tok)
		if bm == nil {
			continue
		}
		for row, id := range ids {
			if bm.Contains(id) {
				X.Set(row, col, 1)
			}
		}
	}

	base := len(features)
	itemKind := taxonomy.ItemKind(item)
	for row, id := range ids {
		copies := equippedCopies(eng, unit, item, id)
		itemCount := float64(eng.Arrays.ItemCount[id]) - float64(copies)
		componentCount := float64(eng.Arrays.ComponentCount[id])
		completedCount := float64(eng.Arrays.CompletedItemCount[id])
		if itemKind == taxonomy.Component {
			componentCount -= float64(copies)
		} else {
			completedCount -= float64(copies)
		}
		X.Set(row, base+0, itemCount)
		X.Set(row, base+1, componentCount)
		X.Set(row, base+2, completedCount)
		X.Set(row, base+3, float64(eng.Arrays.UnitCount[id]))
		X.Set(row, base+4, float64(eng.Arrays.TwoStarCount[id]))
		X.Set(row, base+5, float64(eng.Arrays.ThreeStarCount[id]))
		X.Set(row, base+6, float64(eng.Arrays.UnitGoldValue[id]))
	}

	return Design{X: X, Features: features}
}

// equippedCopies returns how many copies of item are equipped on unit for
// pm-id id, using the EquippedCount tokens (0, 1, 2, or 3).
func equippedCopies(eng *engine.Engine, unit, item string, id uint32) int {
	base := eng.Index.BitmapFor(token.EquippedTok(unit, item).String())
	if base == nil || !base.Contains(id) {
		return 0
	}
	if bm := eng.Index.BitmapFor(token.EquippedCountTok(unit, item, 3).String()); bm != nil && bm.Contains(id) {
		return 3
	}
	if bm := eng.Index.BitmapFor(token.EquippedCountTok(unit, item, 2).String()); bm != nil && bm.Contains(id) {
		return 2
	}
	return 1
}
