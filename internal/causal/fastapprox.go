package causal

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pable/smeecher/internal/cluster"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/xrand"
)

// minClusterGroup is the per-cluster treated/control floor; 30 is
// conservative in the same spirit as the precompute job's 100-row group
// floor, scaled down because each stratum is a fraction of a much smaller
// candidate set.
const minClusterGroup = 30

const maxFastApproxRows = 80000

// FastApproxResult is one candidate item's cluster-adjusted estimate,
// carrying the same identifiability-gate/warning shape
// as the full AIPW Estimate so callers can treat both uniformly.
type FastApproxResult struct {
	Unit, Item string
	Ok         bool
	Tau, SE, CILow, CIHigh float64
	FracTrimmed            float64
	Warnings               []string
}

// strataContext is the shared clustering the candidate loop reuses across
// many items (the stratification runs once per request, not once per
// candidate).
type strataContext struct {
	eng    *engine.Engine
	ids    []uint32
	labels []int
	k      int
}

// BuildStrata samples up to 80k rows of base, builds a tokens-only design
// matrix, and clusters it into min(8, n/500) strata.
func BuildStrata(eng *engine.Engine, base *roaring.Bitmap, unit string, minTokenFreq int, seed int64) strataContext {
	ids := base.ToArray()
	if len(ids) > maxFastApproxRows {
		rng := xrand.New(seed)
		perm := rng.Shuffle(len(ids))[:maxFastApproxRows]
		sampled := make([]uint32, len(perm))
		for i, idx := range perm {
			sampled[i] = ids[idx]
		}
		sort.Slice(sampled, func(i, j int) bool { return sampled[i] < sampled[j] })
		ids = sampled
	}

	k := len(ids) / 500
	if k > 8 {
		k = 8
	}
	if k < 1 {
		k = 1
	}

	features := selectTokenFeatures(eng.Index, unit, "", minTokenFreq)
	sampledBase := roaring.New()
	sampledBase.AddMany(ids)
	mx := cluster.BuildMatrix(eng.Index, sampledBase, features)

	params := cluster.DefaultParams()
	params.NClusters = k
	params.RandomState = seed
	km := cluster.MiniBatchKMeans(mx.X, params)

	return strataContext{eng: eng, ids: ids, labels: km.Labels, k: k}
}

// Candidate computes the cluster-adjusted fast approximation for one
// candidate item token within the shared strata context.
func (sc strataContext) Candidate(unit, item string, outcome Outcome) FastApproxResult {
	T := Treatment(sc.eng, unit, item, sc.ids)
	y := Transform(sc.eng.Arrays.Placement, sc.ids, outcome)

	byCluster := make(map[int][]int, sc.k)
	for row, c := range sc.labels {
		byCluster[c] = append(byCluster[c], row)
	}

	n := len(sc.ids)
	var totalUsed, totalTreatedUsed, totalControlUsed int
	var weightedTau, weightedVar float64
	var eValues, eWeights []float64

	for _, rows := range byCluster {
		var treatedRows, controlRows []int
		for _, r := range rows {
			if T[r] == 1 {
				treatedRows = append(treatedRows, r)
			} else {
				controlRows = append(controlRows, r)
			}
		}
		nT, nC := len(treatedRows), len(controlRows)
		e := float64(nT) / float64(len(rows))
		eValues = append(eValues, e)
		eWeights = append(eWeights, float64(len(rows)))
		if nT < minClusterGroup || nC < minClusterGroup || e < 0.05 || e > 0.95 {
			continue
		}
		meanT, varT := meanVar(y, treatedRows)
		meanC, varC := meanVar(y, controlRows)
		w := float64(len(rows)) / float64(n)
		weightedTau += w * (meanT - meanC)
		weightedVar += w * w * (varT/float64(nT) + varC/float64(nC))
		totalUsed += len(rows)
		totalTreatedUsed += nT
		totalControlUsed += nC
	}

	fracTrimmed := 1 - float64(totalUsed)/float64(n)
	ep := weightedPercentiles(eValues, eWeights)
	gate := float64(totalUsed) < math.Max(200, 0.05*float64(n)) || totalTreatedUsed < 50 || totalControlUsed < 50
	if gate {
		return FastApproxResult{Unit: unit, Item: item, Ok: false, FracTrimmed: fracTrimmed, Warnings: diagnosticWarnings(fracTrimmed, ep)}
	}

	se := math.Sqrt(weightedVar)
	return FastApproxResult{
		Unit: unit, Item: item, Ok: true,
		Tau: weightedTau, SE: se, CILow: weightedTau - 1.96*se, CIHigh: weightedTau + 1.96*se,
		FracTrimmed: fracTrimmed, Warnings: diagnosticWarnings(fracTrimmed, ep),
	}
}

// weightedPercentiles computes quantiles of values where each value counts
// with its weight — here per-stratum propensities weighted by stratum size,
// so a tiny stratum's extreme e cannot dominate the overlap diagnostics.
func weightedPercentiles(values, weights []float64) pctiles {
	if len(values) == 0 {
		return pctiles{}
	}
	type wv struct{ v, w float64 }
	pairs := make([]wv, len(values))
	var total float64
	for i := range values {
		pairs[i] = wv{values[i], weights[i]}
		total += weights[i]
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })
	at := func(q float64) float64 {
		target := q * total
		var cum float64
		for _, p := range pairs {
			cum += p.w
			if cum >= target {
				return p.v
			}
		}
		return pairs[len(pairs)-1].v
	}
	return pctiles{min: pairs[0].v, p01: at(0.01), p50: at(0.50), p99: at(0.99), max: pairs[len(pairs)-1].v}
}

func meanVar(y []float64, rows []int) (m, v float64) {
	m = meanOf(y, rows)
	if len(rows) < 2 {
		return m, 0
	}
	var ss float64
	for _, r := range rows {
		d := y[r] - m
		ss += d * d
	}
	return m, ss / float64(len(rows)-1)
}
