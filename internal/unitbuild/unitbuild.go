// Package unitbuild implements the unit_build() beam search:
// given a unit and an optional filter, recommend the strongest 1-3 item
// builds by searching item combinations rather than picking items one at a
// time, so item interactions (e.g. two items whose combination over- or
// under-performs the sum of their individual deltas) show up in the ranking.
//
// Within each search depth, beam states are ranked with empirical-Bayes
// shrinkage toward the base average so a thinly sampled line does not push a
// well-sampled one of the same length out of the beam on noise alone. The
// final list puts builds with more items first and, within an item count,
// orders them by raw final average. Items already present in the caller's
// filter are treated as locked-in starting slots.
package unitbuild

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
	"github.com/pable/smeecher/internal/taxonomy"
	"github.com/pable/smeecher/internal/token"
)

const (
	beamWidth = 40
	maxBuilds = 25
)

// ItemSlot is one item recommendation within a Build.
type ItemSlot struct {
	Slot         int
	Item         string
	Token        string
	Delta        float64
	AvgPlacement float64
	N            int
	ItemType     taxonomy.ItemType
	ItemPrefix   string
}

// Build is one candidate full-board loadout for the unit.
type Build struct {
	Items      []ItemSlot
	FinalAvg   float64
	FinalN     int
	TotalDelta float64
	score      float64 // shrunk avg; last tie-break (lower first) after item count, final avg and sample size
}

// Result is the unit_build() response.
type Result struct {
	Unit    string
	BaseN   int
	BaseAvg float64
	Builds  []Build
}

type beamState struct {
	items []ItemSlot
	bm    *roaring.Bitmap
	n     int
	avg   float64
	score float64
	used  map[string]bool
}

type candidate struct {
	item, tok  string
	bm         *roaring.Bitmap
	itemType   taxonomy.ItemType
	itemPrefix string
}

func shrinkAvg(avg float64, n int, priorMean, priorWeight float64) float64 {
	if n <= 0 {
		return priorMean
	}
	return (avg*float64(n) + priorMean*priorWeight) / (float64(n) + priorWeight)
}

// Compute runs the beam search for unit within rawFilter's base, filling up
// to slots item slots (clamped to [1,3]). Items already present in the
// caller's include filter as E:<unit>|<item> are locked in before the first
// slots are spent on them.
func Compute(eng *engine.Engine, unit, rawFilter string, minSample, slots int, mask filter.Mask) Result {
	if slots < 1 {
		slots = 1
	}
	if slots > 3 {
		slots = 3
	}

	include, exclude := filter.ParseTokens(rawFilter)
	baseTokens := append([]string{token.UnitTok(unit).String()}, include...)
	base := eng.Index.Filter(baseTokens, exclude)
	nBase := int(base.GetCardinality())
	avgBase := bitmapidx.AvgPlacement(base, eng.Arrays.Placement)

	res := Result{Unit: unit, BaseN: nBase, BaseAvg: avgBase}
	if nBase < minSample {
		return res
	}

	var locked []string
	lockedSet := map[string]bool{}
	for _, t := range include {
		parsed, ok := token.Parse(t)
		if !ok || parsed.Kind != token.Equipped || parsed.Unit != unit {
			continue
		}
		if lockedSet[parsed.Item] {
			continue
		}
		lockedSet[parsed.Item] = true
		locked = append(locked, parsed.Item)
	}
	if len(locked) > slots {
		locked = locked[:slots]
	}
	lockedSet = map[string]bool{}
	for _, it := range locked {
		lockedSet[it] = true
	}
	remainingSlots := slots - len(locked)

	priorWeight := float64(nBase) * 0.05
	if priorWeight < 25 {
		priorWeight = 25
	}
	if priorWeight > 200 {
		priorWeight = 200
	}

	lockedItemsOut := make([]ItemSlot, len(locked))
	for i, item := range locked {
		lockedItemsOut[i] = ItemSlot{
			Item: item, Token: token.EquippedTok(unit, item).String(),
			Delta: 0, AvgPlacement: avgBase, N: nBase,
			ItemType: taxonomy.ItemKind(item), ItemPrefix: taxonomy.ItemPrefix(item),
		}
	}

	if remainingSlots == 0 {
		if len(lockedItemsOut) > 0 {
			res.Builds = []Build{finalizeBuild(lockedItemsOut, avgBase, nBase, avgBase)}
		}
		return res
	}

	candidates := collectCandidates(eng, unit, base, lockedSet, minSample, mask)
	if len(candidates) == 0 {
		if len(lockedItemsOut) > 0 {
			res.Builds = []Build{finalizeBuild(lockedItemsOut, avgBase, nBase, avgBase)}
		}
		return res
	}

	beam := []beamState{{
		items: append([]ItemSlot(nil), lockedItemsOut...),
		bm:    base, n: nBase, avg: avgBase,
		score: shrinkAvg(avgBase, nBase, avgBase, priorWeight),
		used:  cloneSet(lockedSet),
	}}

	// Every depth's surviving states are candidate builds, so a strong
	// 1-item line is still reported when no 2-item extension has sample.
	var states []beamState
	for i := 0; i < remainingSlots; i++ {
		beam = expandBeam(beam, candidates, eng.Arrays.Placement, avgBase, priorWeight, minSample)
		if len(beam) == 0 {
			break
		}
		states = append(states, beam...)
	}

	builds := make([]Build, 0, len(states))
	for _, st := range states {
		items := st.items
		if len(items) > slots {
			items = items[:slots]
		}
		if len(items) == 0 {
			continue
		}
		b := finalizeBuild(items, st.avg, st.n, avgBase)
		b.score = st.score
		builds = append(builds, b)
	}

	sort.SliceStable(builds, func(i, j int) bool {
		if len(builds[i].Items) != len(builds[j].Items) {
			return len(builds[i].Items) > len(builds[j].Items)
		}
		if builds[i].FinalAvg != builds[j].FinalAvg {
			return builds[i].FinalAvg < builds[j].FinalAvg
		}
		if builds[i].FinalN != builds[j].FinalN {
			return builds[i].FinalN > builds[j].FinalN
		}
		return builds[i].score < builds[j].score
	})
	if len(builds) > maxBuilds {
		builds = builds[:maxBuilds]
	}
	res.Builds = builds
	return res
}

func finalizeBuild(items []ItemSlot, finalAvg float64, finalN int, baseAvg float64) Build {
	out := make([]ItemSlot, len(items))
	for i, it := range items {
		it.Slot = i + 1
		out[i] = it
	}
	return Build{
		Items: out, FinalAvg: finalAvg, FinalN: finalN,
		TotalDelta: finalAvg - baseAvg,
	}
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// collectCandidates gathers every equipped item for unit with enough
// with-group sample size under base, masked by item type/prefix.
func collectCandidates(eng *engine.Engine, unit string, base *roaring.Bitmap, lockedSet map[string]bool, minSample int, mask filter.Mask) []candidate {
	var out []candidate
	for _, tok := range eng.Index.IDToToken {
		parsed, ok := token.Parse(tok)
		if !ok || parsed.Kind != token.Equipped || parsed.Unit != unit {
			continue
		}
		if lockedSet[parsed.Item] {
			continue
		}
		itemType := taxonomy.ItemKind(parsed.Item)
		if len(mask.ItemTypes) > 0 && !itemTypeAllowed(mask.ItemTypes, itemType) {
			continue
		}
		itemPrefix := taxonomy.ItemPrefix(parsed.Item)
		if len(mask.ItemPrefixes) > 0 && (itemPrefix == "" || !prefixAllowed(mask.ItemPrefixes, itemPrefix)) {
			continue
		}
		bm := eng.Index.BitmapFor(tok)
		if bm == nil {
			continue
		}
		with := bm.Clone()
		with.And(base)
		if int(with.GetCardinality()) < minSample {
			continue
		}
		out = append(out, candidate{item: parsed.Item, tok: tok, bm: bm, itemType: itemType, itemPrefix: itemPrefix})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].item < out[j].item })
	return out
}

func itemTypeAllowed(allowed []taxonomy.ItemType, t taxonomy.ItemType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func prefixAllowed(allowed []string, p string) bool {
	for _, a := range allowed {
		if a == p {
			return true
		}
	}
	return false
}

// expandBeam grows every beam state by one more item slot, scores the
// resulting states by shrunk average placement, de-dupes by item set, and
// keeps the best beamWidth.
func expandBeam(beam []beamState, candidates []candidate, placements []int8, avgBase, priorWeight float64, minSample int) []beamState {
	var next []beamState
	for _, st := range beam {
		for _, cand := range candidates {
			if st.used[cand.item] {
				continue
			}
			with := st.bm.Clone()
			with.And(cand.bm)
			n := int(with.GetCardinality())
			if n < minSample {
				continue
			}
			avgWith := bitmapidx.AvgPlacement(with, placements)
			scoreWith := shrinkAvg(avgWith, n, avgBase, priorWeight)

			slot := ItemSlot{
				Item: cand.item, Token: cand.tok,
				Delta: avgWith - st.avg, AvgPlacement: avgWith, N: n,
				ItemType: cand.itemType, ItemPrefix: cand.itemPrefix,
			}
			used := cloneSet(st.used)
			used[cand.item] = true
			next = append(next, beamState{
				items: append(append([]ItemSlot(nil), st.items...), slot),
				bm:    with, n: n, avg: avgWith, score: scoreWith, used: used,
			})
		}
	}
	if len(next) == 0 {
		return nil
	}

	sort.SliceStable(next, func(i, j int) bool {
		if next[i].score != next[j].score {
			return next[i].score < next[j].score
		}
		if next[i].avg != next[j].avg {
			return next[i].avg < next[j].avg
		}
		return next[i].n > next[j].n
	})

	out := make([]beamState, 0, beamWidth)
	seen := map[string]bool{}
	for _, s := range next {
		key := itemSetKey(s.items)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) >= beamWidth {
			break
		}
	}
	return out
}

func itemSetKey(items []ItemSlot) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Item
	}
	sort.Strings(names)
	key := ""
	for _, n := range names {
		key += n + "|"
	}
	return key
}
