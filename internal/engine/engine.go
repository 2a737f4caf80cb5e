package engine

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pable/smeecher/internal/bitmapidx"
)

// Engine is the complete in-memory snapshot state: the token/bitmap index
// and bitmap index, the dense proxy arrays, display labels, and the
// precomputed necessity cache. It is built once and read-only for the
// remainder of its lifetime.
type Engine struct {
	Index      *bitmapidx.Index
	Arrays     *Arrays
	Labels     []string
	Necessity  *NecessityCache
	TotalMatch int64
}

// New returns an empty engine ready for Build.
func New() *Engine {
	return &Engine{
		Index:  bitmapidx.New(),
		Arrays: &Arrays{},
	}
}

// Label returns the display string for a token id, falling back to the
// canonical token string if no label was assigned.
func (e *Engine) Label(id int32) string {
	if int(id) < len(e.Labels) && e.Labels[id] != "" {
		return e.Labels[id]
	}
	if int(id) < len(e.Index.IDToToken) {
		return e.Index.IDToToken[id]
	}
	return ""
}

// Search returns up to 20 tokens whose label or canonical form contains the
// query substring (case-insensitive), ranked by descending bitmap
// cardinality.
func (e *Engine) Search(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	type hit struct {
		tok   string
		count int32
	}
	var hits []hit
	for id, tok := range e.Index.IDToToken {
		label := e.Label(int32(id))
		if strings.Contains(strings.ToLower(tok), q) || strings.Contains(strings.ToLower(label), q) {
			hits = append(hits, hit{tok: tok, count: e.Index.Stats[id].Count})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].tok < hits[j].tok
	})
	if len(hits) > 20 {
		hits = hits[:20]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.tok
	}
	return out
}

// AllPlayers returns the identity bitmap for empty filters.
func (e *Engine) AllPlayers() *roaring.Bitmap { return e.Index.AllPlayers }

// Stats is the cheap metadata summary returned by the stats query.
type Stats struct {
	TotalMatches   int
	TotalTokens    int
	UnitTokens     int
	ItemTokens     int
	EquippedTokens int
	TraitTokens    int
}

// StatsSummary returns the engine's cheap metadata summary.
func (e *Engine) StatsSummary() Stats {
	s := e.Index.Summary()
	return Stats{
		TotalMatches:   s.TotalMatches,
		TotalTokens:    s.TotalTokens,
		UnitTokens:     s.UnitTokens,
		ItemTokens:     s.ItemTokens,
		EquippedTokens: s.EquippedTokens,
		TraitTokens:    s.TraitTokens,
	}
}
