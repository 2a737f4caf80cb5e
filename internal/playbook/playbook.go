// Package playbook implements the token-report / "playbook" component:
// given a cluster's member pm-ids (or an arbitrary filter treated as a
// single cluster), rank candidate attributes by their within-cluster
// effect on win/top4/avg, with empirical-Bayes shrinkage toward the
// cluster's own baseline rate, plus a "comp view" summarizing trait tier
// distributions and item holder units.
//
// Candidate tokens are drawn from the cluster's signature/top tokens,
// widened with tiered-trait and starred-unit variants and a handful of
// equipped tokens for the cluster's headline units.
package playbook

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/token"
)

// Row is one candidate token's within-cluster report.
type Row struct {
	Token          string
	Label          string
	NWith          int
	NWithout       int
	PctInCluster   float64
	RawWinWith     float64
	RawWinWithout  float64
	RawTop4With    float64
	RawTop4Without float64
	DeltaWin       float64
	DeltaTop4      float64
	DeltaEighth    float64
	DeltaAvg       float64
}

// TraitTierDist is the inferred active-tier distribution for one trait
// within the cluster.
type TraitTierDist struct {
	Trait    string
	TierProb map[int]float64
}

// UnitPct names a unit and its E:U|I presence rate within the cluster.
type UnitPct struct {
	Unit string
	Pct  float64
}

// ItemHolders is the best holder unit(s) for one top item.
type ItemHolders struct {
	Item  string
	Units []UnitPct
}

// Result is the full cluster_playbook()/token_playbook() response.
type Result struct {
	Drivers []Row
	Killers []Row
	Traits  []TraitTierDist
	Items   []ItemHolders
}

// priorWeight is clamp(n/16, 25, 200): the weight scales with the group's
// own size, so very large with/without groups lean on their raw rate while
// small ones pull harder toward the cluster base.
func priorWeight(n int) float64 {
	w := float64(n) / 16
	if w < 25 {
		return 25
	}
	if w > 200 {
		return 200
	}
	return w
}

func shrink(raw float64, n int, prior float64) float64 {
	w := priorWeight(n)
	return (raw*float64(n) + prior*w) / (float64(n) + w)
}

func rateIndicator(placements []int8, ids []uint32, hit func(p int8) bool) float64 {
	if len(ids) == 0 {
		return 0
	}
	var c int
	for _, id := range ids {
		if hit(placements[id]) {
			c++
		}
	}
	return float64(c) / float64(len(ids))
}

func avgOf(placements []int8, ids []uint32) float64 {
	if len(ids) == 0 {
		return 0
	}
	var sum int64
	for _, id := range ids {
		sum += int64(placements[id])
	}
	return float64(sum) / float64(len(ids))
}

// Compute scores every candidate token's within-cluster effect. members is
// the cluster's (or filter's) pm-id set; candidates is the widened token
// pool built by CandidateTokens.
func Compute(eng *engine.Engine, members []uint32, candidates []string) Result {
	placements := eng.Arrays.Placement
	baseWin := rateIndicator(placements, members, func(p int8) bool { return p == 1 })
	baseTop4 := rateIndicator(placements, members, func(p int8) bool { return p <= 4 })
	baseEighth := rateIndicator(placements, members, func(p int8) bool { return p == 8 })
	baseAvg := avgOf(placements, members)
	n := len(members)

	memberSet := roaring.New()
	memberSet.AddMany(members)

	var rows []Row
	for _, tok := range candidates {
		bm := eng.Index.BitmapFor(tok)
		if bm == nil {
			continue
		}
		with := bm.Clone()
		with.And(memberSet)
		withIDs := with.ToArray()
		if len(withIDs) == 0 || len(withIDs) == n {
			continue // no contrast to report
		}
		without := memberSet.Clone()
		without.AndNot(with)
		withoutIDs := without.ToArray()

		rawWinWith := rateIndicator(placements, withIDs, func(p int8) bool { return p == 1 })
		rawWinWithout := rateIndicator(placements, withoutIDs, func(p int8) bool { return p == 1 })
		rawTop4With := rateIndicator(placements, withIDs, func(p int8) bool { return p <= 4 })
		rawTop4Without := rateIndicator(placements, withoutIDs, func(p int8) bool { return p <= 4 })
		rawEighthWith := rateIndicator(placements, withIDs, func(p int8) bool { return p == 8 })
		rawEighthWithout := rateIndicator(placements, withoutIDs, func(p int8) bool { return p == 8 })
		rawAvgWith := avgOf(placements, withIDs)
		rawAvgWithout := avgOf(placements, withoutIDs)

		winWith := shrink(rawWinWith, len(withIDs), baseWin)
		winWithout := shrink(rawWinWithout, len(withoutIDs), baseWin)
		top4With := shrink(rawTop4With, len(withIDs), baseTop4)
		top4Without := shrink(rawTop4Without, len(withoutIDs), baseTop4)
		eighthWith := shrink(rawEighthWith, len(withIDs), baseEighth)
		eighthWithout := shrink(rawEighthWithout, len(withoutIDs), baseEighth)
		avgWith := shrink(rawAvgWith, len(withIDs), baseAvg)
		avgWithout := shrink(rawAvgWithout, len(withoutIDs), baseAvg)

		rows = append(rows, Row{
			Token: tok, Label: eng.Label(mustLookup(eng, tok)),
			NWith: len(withIDs), NWithout: len(withoutIDs),
			PctInCluster:   float64(len(withIDs)) / float64(n),
			RawWinWith:     rawWinWith, RawWinWithout: rawWinWithout,
			RawTop4With: rawTop4With, RawTop4Without: rawTop4Without,
			DeltaWin:    winWith - winWithout,
			DeltaTop4:   top4With - top4Without,
			DeltaEighth: eighthWith - eighthWithout,
			DeltaAvg:    avgWith - avgWithout,
		})
	}

	drivers := append([]Row(nil), rows...)
	sort.SliceStable(drivers, func(i, j int) bool {
		if drivers[i].DeltaWin != drivers[j].DeltaWin {
			return drivers[i].DeltaWin > drivers[j].DeltaWin
		}
		if drivers[i].DeltaTop4 != drivers[j].DeltaTop4 {
			return drivers[i].DeltaTop4 > drivers[j].DeltaTop4
		}
		return drivers[i].DeltaAvg < drivers[j].DeltaAvg
	})
	killers := append([]Row(nil), rows...)
	sort.SliceStable(killers, func(i, j int) bool {
		if killers[i].DeltaWin != killers[j].DeltaWin {
			return killers[i].DeltaWin < killers[j].DeltaWin
		}
		if killers[i].DeltaTop4 != killers[j].DeltaTop4 {
			return killers[i].DeltaTop4 < killers[j].DeltaTop4
		}
		return killers[i].DeltaAvg > killers[j].DeltaAvg
	})

	return Result{
		Drivers: drivers,
		Killers: killers,
		Traits:  compTraits(eng, members, candidates),
		Items:   compItemHolders(eng, members, candidates),
	}
}

func mustLookup(eng *engine.Engine, tok string) int32 {
	id, _ := eng.Index.Lookup(tok)
	return id
}

// compTraits derives P(tier=k) = P(tier>=k) - P(tier>=k+1) for every trait
// named among candidates, using inclusive-tier tokens, and divides by
// P(tier>=1) so each distribution is conditional on the trait being active
// and sums to 1.
func compTraits(eng *engine.Engine, members []uint32, candidates []string) []TraitTierDist {
	memberSet := roaring.New()
	memberSet.AddMany(members)
	n := len(members)
	if n == 0 {
		return nil
	}

	traits := map[string]bool{}
	for _, c := range candidates {
		parsed, ok := token.Parse(c)
		if !ok {
			continue
		}
		if parsed.Kind == token.Trait || parsed.Kind == token.TraitTier {
			traits[parsed.Trait] = true
		}
	}

	pctGE := func(tok string) (float64, bool) {
		bm := eng.Index.BitmapFor(tok)
		if bm == nil {
			return 0, false
		}
		with := bm.Clone()
		with.And(memberSet)
		return float64(with.GetCardinality()) / float64(n), true
	}

	var out []TraitTierDist
	for trait := range traits {
		pGE := map[int]float64{1: 0}
		if p, ok := pctGE(token.TraitTok(trait).String()); ok {
			pGE[1] = p
		} else {
			continue
		}
		maxTier := 1
		for k := 2; k <= 10; k++ {
			p, ok := pctGE(token.TraitTierTok(trait, k).String())
			if !ok || p == 0 {
				break
			}
			pGE[k] = p
			maxTier = k
		}
		dist := map[int]float64{}
		for k := 1; k <= maxTier; k++ {
			next := pGE[k+1]
			dist[k] = math.Max(pGE[k]-next, 0)
		}
		if pGE[1] > 0 {
			for k := range dist {
				dist[k] /= pGE[1]
			}
		}
		out = append(out, TraitTierDist{Trait: trait, TierProb: dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trait < out[j].Trait })
	return out
}

// compItemHolders finds, for every item named among candidates, the units
// most commonly holding it within the cluster (highest pct_in_cluster of
// E:U|I among units known to equip it anywhere in the vocabulary).
func compItemHolders(eng *engine.Engine, members []uint32, candidates []string) []ItemHolders {
	memberSet := roaring.New()
	memberSet.AddMany(members)
	n := len(members)
	if n == 0 {
		return nil
	}

	items := map[string]bool{}
	for _, c := range candidates {
		parsed, ok := token.Parse(c)
		if ok && parsed.Kind == token.Item {
			items[parsed.Item] = true
		}
	}

	itemUnits := map[string][]string{}
	for _, tok := range eng.Index.IDToToken {
		parsed, ok := token.Parse(tok)
		if ok && parsed.Kind == token.Equipped && items[parsed.Item] {
			itemUnits[parsed.Item] = append(itemUnits[parsed.Item], parsed.Unit)
		}
	}

	var out []ItemHolders
	for item := range items {
		var pcts []UnitPct
		for _, unit := range itemUnits[item] {
			bm := eng.Index.BitmapFor(token.EquippedTok(unit, item).String())
			if bm == nil {
				continue
			}
			with := bm.Clone()
			with.And(memberSet)
			pcts = append(pcts, UnitPct{Unit: unit, Pct: float64(with.GetCardinality()) / float64(n)})
		}
		sort.Slice(pcts, func(i, j int) bool { return pcts[i].Pct > pcts[j].Pct })
		if len(pcts) > 3 {
			pcts = pcts[:3]
		}
		if len(pcts) == 0 {
			continue
		}
		out = append(out, ItemHolders{Item: item, Units: pcts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// CandidateTokens widens a cluster's signature/top tokens with every
// tiered-trait and starred-unit variant present in the vocabulary, plus
// equipped tokens for the top few units.
func CandidateTokens(eng *engine.Engine, seed []string, topUnits []string, maxUnits, maxItemsPerUnit int) []string {
	seen := map[string]bool{}
	var out []string
	add := func(tok string) {
		if seen[tok] {
			return
		}
		if _, ok := eng.Index.Lookup(tok); !ok {
			return
		}
		seen[tok] = true
		out = append(out, tok)
	}

	for _, tok := range seed {
		add(tok)
		parsed, ok := token.Parse(tok)
		if !ok {
			continue
		}
		switch parsed.Kind {
		case token.Trait, token.TraitTier:
			name := parsed.Trait
			add(token.TraitTok(name).String())
			for k := 2; k <= 6; k++ {
				add(token.TraitTierTok(name, k).String())
			}
		case token.Unit, token.UnitStar:
			name := parsed.Unit
			add(token.UnitTok(name).String())
			for k := 1; k <= 6; k++ {
				add(token.UnitStarTok(name, k).String())
			}
		}
	}

	unitItems := map[string][]string{}
	for _, tok := range eng.Index.IDToToken {
		parsed, ok := token.Parse(tok)
		if ok && parsed.Kind == token.Equipped {
			unitItems[parsed.Unit] = append(unitItems[parsed.Unit], parsed.Item)
		}
	}
	if len(topUnits) > maxUnits {
		topUnits = topUnits[:maxUnits]
	}
	for _, unit := range topUnits {
		items := unitItems[unit]
		if len(items) > maxItemsPerUnit {
			items = items[:maxItemsPerUnit]
		}
		for _, item := range items {
			add(token.EquippedTok(unit, item).String())
		}
	}
	return out
}
