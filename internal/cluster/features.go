package cluster

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/james-bowman/sparse"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/token"
)

// SelectFeatures returns the tokens from the enabled namespaces whose
// global count meets MinTokenFreq. By default
// star-unit and tier-trait variants are excluded to keep signatures stable.
func SelectFeatures(ix *bitmapidx.Index, p Params) []string {
	var out []string
	for id, tok := range ix.IDToToken {
		parsed, ok := token.Parse(tok)
		if !ok {
			continue
		}
		var wanted bool
		switch parsed.Kind {
		case token.Unit:
			wanted = p.UseUnits
		case token.UnitStar:
			wanted = p.UseUnits && p.IncludeStarUnits
		case token.Trait:
			wanted = p.UseTraits
		case token.TraitTier:
			wanted = p.UseTraits && p.IncludeTierTraits
		case token.Item:
			wanted = p.UseItems
		case token.Equipped, token.EquippedCount:
			wanted = p.UseEquipped
		}
		if !wanted {
			continue
		}
		if int(ix.Stats[id].Count) < p.MinTokenFreq {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Matrix is the sparse 0/1 feature matrix plus the bookkeeping the
// per-cluster summary needs.
type Matrix struct {
	X            *sparse.CSR
	KeptFeatures []string
	BaseCounts   []int32 // per kept feature, count within base
	FeatureRows  [][]int32
	BaseIDs      []uint32 // row -> pm-id, ascending
	RowNNZ       []int32
}

// BuildMatrix builds the 0/1 membership matrix: row = position of the
// pm-id in base (sorted ascending); for each feature, intersect base with the token's
// bitmap and map to row indices by binary search; drop features with zero
// presence.
func BuildMatrix(ix *bitmapidx.Index, base *roaring.Bitmap, features []string) *Matrix {
	baseIDs := base.ToArray()
	n := len(baseIDs)
	if n == 0 || len(features) == 0 {
		return &Matrix{X: sparse.NewDOK(n, 0).ToCSR(), BaseIDs: baseIDs}
	}

	var keptFeatures []string
	var featureRows [][]int32
	for _, tok := range features {
		bm := ix.BitmapFor(tok)
		if bm == nil {
			continue
		}
		inter := bm.Clone()
		inter.And(base)
		if inter.IsEmpty() {
			continue
		}
		ids := inter.ToArray()
		rows := make([]int32, len(ids))
		for i, id := range ids {
			rows[i] = int32(sort.Search(n, func(j int) bool { return baseIDs[j] >= id }))
		}
		keptFeatures = append(keptFeatures, tok)
		featureRows = append(featureRows, rows)
	}

	nCols := len(keptFeatures)
	dok := sparse.NewDOK(n, nCols)
	baseCounts := make([]int32, nCols)
	rowNNZ := make([]int32, n)
	for col, rows := range featureRows {
		baseCounts[col] = int32(len(rows))
		for _, r := range rows {
			dok.Set(int(r), col, 1)
			rowNNZ[r]++
		}
	}

	return &Matrix{
		X:            dok.ToCSR(),
		KeptFeatures: keptFeatures,
		BaseCounts:   baseCounts,
		FeatureRows:  featureRows,
		BaseIDs:      baseIDs,
		RowNNZ:       rowNNZ,
	}
}

// namespaceIndices returns the indices into kept for tokens whose canonical
// form starts with prefix (e.g. "U:").
func namespaceIndices(kept []string, prefix string) []int {
	var idx []int
	for i, t := range kept {
		if strings.HasPrefix(t, prefix) {
			idx = append(idx, i)
		}
	}
	return idx
}
