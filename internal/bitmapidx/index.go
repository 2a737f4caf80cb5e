// Package bitmapidx implements the token bitmap index: for each token
// id, a compressed sorted set of player-match ids plus precomputed placement
// aggregates, with set-algebra operations (intersect/union/difference) and
// descriptive-stat helpers built on top.
//
// The compressed set representation is github.com/RoaringBitmap/roaring/v2;
// the snapshot codec in internal/snapshot persists the same library's
// native serialization.
package bitmapidx

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// TokenStats holds the per-token-id aggregates: the bitmap of pm-ids
// carrying the token, the sum of placements over that bitmap, and its
// cardinality.
type TokenStats struct {
	Bitmap       *roaring.Bitmap
	PlacementSum int64
	Count        int32
}

// AvgPlacement returns sum/count, or the uniform-prior default 4.5 when the
// token has never been observed.
func (s TokenStats) AvgPlacement() float64 {
	if s.Count == 0 {
		return 4.5
	}
	return float64(s.PlacementSum) / float64(s.Count)
}

// Index is the bitmap index over a fixed token vocabulary: TokenToID/IDToToken
// assign stable integer ids to canonical token strings in build order, and
// Stats holds one TokenStats per id.
type Index struct {
	TokenToID  map[string]int32
	IDToToken  []string
	Stats      []TokenStats
	AllPlayers *roaring.Bitmap
}

// New returns an empty index.
func New() *Index {
	return &Index{
		TokenToID:  make(map[string]int32),
		AllPlayers: roaring.New(),
	}
}

// EnsureID returns the id for token, assigning the next sequential id (and
// appending an empty TokenStats slot) the first time it is seen.
func (ix *Index) EnsureID(tok string) int32 {
	if id, ok := ix.TokenToID[tok]; ok {
		return id
	}
	id := int32(len(ix.IDToToken))
	ix.TokenToID[tok] = id
	ix.IDToToken = append(ix.IDToToken, tok)
	ix.Stats = append(ix.Stats, TokenStats{Bitmap: roaring.New()})
	return id
}

// Lookup returns the id for an already-known token.
func (ix *Index) Lookup(tok string) (int32, bool) {
	id, ok := ix.TokenToID[tok]
	return id, ok
}

// BitmapFor returns the bitmap for a token, or nil if the token is unknown.
func (ix *Index) BitmapFor(tok string) *roaring.Bitmap {
	id, ok := ix.TokenToID[tok]
	if !ok {
		return nil
	}
	return ix.Stats[id].Bitmap
}

// Intersect returns the bitmap of pm-ids present in every listed token.
// An empty token list returns a clone of AllPlayers. An unknown token makes
// the whole intersection empty.
func (ix *Index) Intersect(tokens []string) *roaring.Bitmap {
	if len(tokens) == 0 {
		return ix.AllPlayers.Clone()
	}
	var result *roaring.Bitmap
	for _, tok := range tokens {
		bm := ix.BitmapFor(tok)
		if bm == nil {
			return roaring.New()
		}
		if result == nil {
			result = bm.Clone()
			continue
		}
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// Filter returns intersect(include) minus the union of exclude. Unknown
// exclude tokens are ignored (they contribute nothing to the union).
func (ix *Index) Filter(include, exclude []string) *roaring.Bitmap {
	base := ix.Intersect(include)
	for _, tok := range exclude {
		bm := ix.BitmapFor(tok)
		if bm == nil {
			continue
		}
		base.AndNot(bm)
	}
	return base
}

// AvgPlacement returns the mean of placements[id] for id in bm, using the
// dense placement array. Returns 4.5 for an empty bitmap.
func AvgPlacement(bm *roaring.Bitmap, placements []int8) float64 {
	if bm.IsEmpty() {
		return 4.5
	}
	var sum int64
	var n int64
	it := bm.Iterator()
	for it.HasNext() {
		id := it.Next()
		sum += int64(placements[id])
		n++
	}
	if n == 0 {
		return 4.5
	}
	return float64(sum) / float64(n)
}

// ScoreResult is one row of score_candidates: the effect of
// adding tok to an already-filtered base set.
type ScoreResult struct {
	Token   string
	Delta   float64
	AvgWith float64
	AvgBase float64
	NWith   int
	NBase   int
}

// ScoreCandidates scores each candidate token against a fixed base bitmap,
// skipping any whose with-group falls below minSample. Unknown candidate
// tokens are skipped (they carry no bitmap to intersect).
func (ix *Index) ScoreCandidates(base *roaring.Bitmap, cands []string, minSample int, placements []int8) []ScoreResult {
	avgBase := AvgPlacement(base, placements)
	nBase := int(base.GetCardinality())
	out := make([]ScoreResult, 0, len(cands))
	for _, c := range cands {
		bm := ix.BitmapFor(c)
		if bm == nil {
			continue
		}
		with := bm.Clone()
		with.And(base)
		nWith := int(with.GetCardinality())
		if nWith < minSample {
			continue
		}
		avgWith := AvgPlacement(with, placements)
		out = append(out, ScoreResult{
			Token: c, Delta: avgWith - avgBase, AvgWith: avgWith, AvgBase: avgBase,
			NWith: nWith, NBase: nBase,
		})
	}
	return out
}

// Stat is the cheap metadata summary returned by Stats().
type Stat struct {
	TotalMatches int
	TotalTokens  int
	UnitTokens   int
	ItemTokens   int
	EquippedTokens int
	TraitTokens  int
}

// Summary computes the cheap per-namespace token counts for the stats
// query.
func (ix *Index) Summary() Stat {
	s := Stat{
		TotalMatches: int(ix.AllPlayers.GetCardinality()),
		TotalTokens:  len(ix.IDToToken),
	}
	for _, t := range ix.IDToToken {
		if len(t) < 2 {
			continue
		}
		switch t[0] {
		case 'U':
			s.UnitTokens++
		case 'I':
			s.ItemTokens++
		case 'E':
			s.EquippedTokens++
		case 'T':
			s.TraitTokens++
		}
	}
	return s
}
