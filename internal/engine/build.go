package engine

import (
	"fmt"

	"github.com/pable/smeecher/internal/taxonomy"
	"github.com/pable/smeecher/internal/token"
)

// Build runs the tokenizer over a finished in-memory row set and
// returns a fully populated, still-mutable Engine. Callers that want a
// read-only snapshot should round-trip it through internal/snapshot
// afterwards.
//
// Pm-ids are assigned densely in row order starting at 1; slot 0 is never a
// real player-match.
func Build(rows []MatchRow) *Engine {
	e := New()
	e.Arrays.grow(1) // reserve slot 0

	// Minimum observed unit count per tiered-trait token, used to show the
	// in-game breakpoint number in that token's label.
	breakpoints := make(map[string]int)

	for _, row := range rows {
		pmID := uint32(e.Arrays.Len())
		e.Arrays.grow(int(pmID) + 1)
		e.Arrays.Placement[pmID] = int8(row.Placement)
		e.Index.AllPlayers.Add(pmID)
		e.TotalMatch++

		tokenizeRow(e, pmID, row, breakpoints)
	}

	e.Labels = make([]string, len(e.Index.IDToToken))
	for id, tok := range e.Index.IDToToken {
		if n, ok := breakpoints[tok]; ok {
			if parsed, good := token.Parse(tok); good {
				e.Labels[id] = fmt.Sprintf("%s (%d)", parsed.Trait, n)
				continue
			}
		}
		e.Labels[id] = defaultLabel(tok)
	}
	recomputePlacementSums(e)
	return e
}

// tokenizeRow emits every token implied by one player's board: units and
// star variants, items, equipped pairs with copy counts, and inclusive
// trait tiers.
func tokenizeRow(e *Engine, pmID uint32, row MatchRow, breakpoints map[string]int) {
	var unitCount, twoStar, threeStar int16
	var goldValue int32
	var itemCount, componentCount, completedCount int16

	for _, u := range row.Units {
		name := token.NormalizeName(u.Name)
		emit(e, pmID, token.UnitTok(name))
		if u.Star >= 1 {
			emit(e, pmID, token.UnitStarTok(name, u.Star))
		}
		unitCount++
		if u.Star >= 2 {
			twoStar++
		}
		if u.Star >= 3 {
			threeStar++
		}
		goldValue += int32(u.Cost) * pow3(u.Star-1)

		copies := make(map[string]int)
		for _, rawItem := range u.Items {
			item := token.NormalizeName(rawItem)
			if item == token.EmptyBagPlaceholder {
				continue
			}
			copies[item]++
			itemCount++
			if taxonomy.ItemKind(item) == taxonomy.Component {
				componentCount++
			} else {
				completedCount++
			}
		}
		for item, c := range copies {
			emit(e, pmID, token.EquippedTok(name, item))
			if c >= 2 {
				emit(e, pmID, token.EquippedCountTok(name, item, 2))
			}
			if c >= 3 {
				emit(e, pmID, token.EquippedCountTok(name, item, 3))
			}
		}
	}

	boardItems := make(map[string]bool)
	for _, u := range row.Units {
		for _, rawItem := range u.Items {
			item := token.NormalizeName(rawItem)
			if item == token.EmptyBagPlaceholder {
				continue
			}
			boardItems[item] = true
		}
	}
	for item := range boardItems {
		emit(e, pmID, token.ItemTok(item))
	}

	for _, tr := range row.Traits {
		name := token.NormalizeName(tr.Name)
		emit(e, pmID, token.TraitTok(name))
		for k := 2; k <= tr.Tier; k++ {
			tok := token.TraitTierTok(name, k)
			emit(e, pmID, tok)
			if k == tr.Tier && tr.NumUnits > 0 {
				s := tok.String()
				if cur, ok := breakpoints[s]; !ok || tr.NumUnits < cur {
					breakpoints[s] = tr.NumUnits
				}
			}
		}
	}

	e.Arrays.UnitCount[pmID] = unitCount
	e.Arrays.TwoStarCount[pmID] = twoStar
	e.Arrays.ThreeStarCount[pmID] = threeStar
	e.Arrays.UnitGoldValue[pmID] = goldValue
	e.Arrays.ItemCount[pmID] = itemCount
	e.Arrays.ComponentCount[pmID] = componentCount
	e.Arrays.CompletedItemCount[pmID] = completedCount
}

// emit records that pm-id carries tok, assigning it a fresh token id on
// first sight. Re-adding an id already present in the bitmap is a no-op,
// which is what gives the accumulator its per-board dedup for free (a unit
// carrying 3 copies of an item still only adds pmID once to E:U|I).
func emit(e *Engine, pmID uint32, tok token.Token) {
	s := tok.String()
	id := e.Index.EnsureID(s)
	e.Index.Stats[id].Bitmap.Add(pmID)
}

// recomputePlacementSums recomputes each token's placement sum and count
// from its finished (deduplicated-by-construction) bitmap, avoiding any
// double counting from repeated emissions within a board.
func recomputePlacementSums(e *Engine) {
	for id := range e.Index.Stats {
		bm := e.Index.Stats[id].Bitmap
		var sum int64
		it := bm.Iterator()
		for it.HasNext() {
			pmID := it.Next()
			sum += int64(e.Arrays.Placement[pmID])
		}
		e.Index.Stats[id].PlacementSum = sum
		e.Index.Stats[id].Count = int32(bm.GetCardinality())
	}
}

func pow3(exp int) int32 {
	if exp <= 0 {
		return 1
	}
	v := int32(1)
	for i := 0; i < exp; i++ {
		v *= 3
	}
	return v
}

// defaultLabel derives a human display string directly from a token's
// canonical form; build-time catalog enrichment (pretty names, trait
// breakpoints) can overwrite these afterwards without changing semantics.
func defaultLabel(tok string) string {
	parsed, ok := token.Parse(tok)
	if !ok {
		return tok
	}
	switch parsed.Kind {
	case token.Unit:
		return parsed.Unit
	case token.UnitStar:
		return parsed.Unit
	case token.Item:
		return parsed.Item
	case token.Equipped, token.EquippedCount:
		return parsed.Unit + " + " + parsed.Item
	case token.Trait, token.TraitTier:
		return parsed.Trait
	default:
		return tok
	}
}
