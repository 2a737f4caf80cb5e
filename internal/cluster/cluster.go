package cluster

import (
	"math"
	"sort"
	"strings"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
)

// Rates holds the four placement-derived rates shared by base stats and
// per-cluster summaries.
type Rates struct {
	WinRate    float64
	Top4Rate   float64
	Bot4Rate   float64
	EighthRate float64
}

func ratesFromHist(hist [8]int) Rates {
	n := 0
	for _, c := range hist {
		n += c
	}
	if n == 0 {
		return Rates{}
	}
	var top4, bot4 int
	for i := 0; i < 4; i++ {
		top4 += hist[i]
	}
	for i := 4; i < 8; i++ {
		bot4 += hist[i]
	}
	return Rates{
		WinRate:    float64(hist[0]) / float64(n),
		Top4Rate:   float64(top4) / float64(n),
		Bot4Rate:   float64(bot4) / float64(n),
		EighthRate: float64(hist[7]) / float64(n),
	}
}

func placementHist(placements []int8, ids []uint32) [8]int {
	var hist [8]int
	for _, id := range ids {
		p := int(placements[id])
		if p < 1 {
			p = 1
		}
		if p > 8 {
			p = 8
		}
		hist[p-1]++
	}
	return hist
}

// FeatureSummary is one feature's presentation within a cluster or base.
type FeatureSummary struct {
	Token      string
	Pct        float64
	BasePct    float64
	Lift       float64
	HasLift    bool
}

// Cluster is the per-cluster descriptive summary.
type Cluster struct {
	ID              int
	Size            int
	Share           float64
	AvgPlacement    float64
	DeltaVsBase     float64
	PlacementHist   [8]int
	Rates           Rates
	DefiningUnits   []FeatureSummary
	TopUnits        []FeatureSummary
	TopTraits       []FeatureSummary
	TopItems        []FeatureSummary
	SignatureTokens []string
	memberRows      []int32 // row indices into Matrix.BaseIDs, not exported
}

// MemberPMIDs returns the pm-ids belonging to the cluster, needed by the
// playbook to build its own filtered bitmaps.
func (c Cluster) MemberPMIDs(baseIDs []uint32) []uint32 {
	out := make([]uint32, len(c.memberRows))
	for i, r := range c.memberRows {
		out[i] = baseIDs[r]
	}
	return out
}

// Result is the full clusters() response. RunID is set only when the
// result went through a Cache, so clients can correlate a later playbook
// request to the run that produced a cluster id.
type Result struct {
	RunID        string
	Tokens       []string
	BaseN        int
	BaseAvg      float64
	BaseHist     [8]int
	BaseRates    Rates
	Params       Params
	Clusters     []Cluster
	Warning      string
	FeaturesUsed int
	Inertia      float64
}

// ComputeClusters runs the full pipeline: guardrails, feature selection,
// sparse matrix construction, MiniBatch k-means, and per-cluster summaries.
func ComputeClusters(eng *engine.Engine, rawFilter string, p Params) Result {
	include, exclude := filter.ParseTokens(rawFilter)
	canonical := append(append([]string{}, include...), excludeMarkers(exclude)...)
	sort.Strings(canonical)

	base := eng.Index.Filter(include, exclude)
	nBase := int(base.GetCardinality())
	baseIDs := base.ToArray()
	baseAvg := bitmapidx.AvgPlacement(base, eng.Arrays.Placement)
	baseHist := placementHist(eng.Arrays.Placement, baseIDs)
	baseRates := ratesFromHist(baseHist)

	result := Result{
		Tokens: canonical, BaseN: nBase, BaseAvg: baseAvg,
		BaseHist: baseHist, BaseRates: baseRates, Params: p,
	}

	if nBase == 0 {
		result.Warning = "No matches for the current filters."
		return result
	}
	if nBase < maxInt(p.MinClusterSize*2, p.NClusters*3) {
		result.Warning = "Sample too small to cluster reliably."
		return result
	}

	features := SelectFeatures(eng.Index, p)
	mx := BuildMatrix(eng.Index, base, features)
	if _, cols := mx.X.Dims(); cols < 2 {
		result.Warning = "Not enough features in this sample."
		return result
	}

	km := MiniBatchKMeans(mx.X, p)
	result.Inertia = km.Inertia
	result.FeaturesUsed = len(mx.KeptFeatures)

	rowsByCluster := make(map[int][]int32)
	for row, c := range km.Labels {
		rowsByCluster[c] = append(rowsByCluster[c], int32(row))
	}

	baseFreq := make([]float64, len(mx.KeptFeatures))
	for i, cnt := range mx.BaseCounts {
		baseFreq[i] = float64(cnt) / float64(nBase)
	}

	var clusters []Cluster
	for c := 0; c < p.NClusters; c++ {
		rows := rowsByCluster[c]
		size := len(rows)
		if size < p.MinClusterSize {
			continue
		}
		clusters = append(clusters, summarizeCluster(c, rows, mx, baseIDs, baseFreq, baseAvg, nBase, eng.Arrays.Placement, p))
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].AvgPlacement != clusters[j].AvgPlacement {
			return clusters[i].AvgPlacement < clusters[j].AvgPlacement
		}
		return clusters[i].Size > clusters[j].Size
	})
	result.Clusters = clusters
	return result
}

func excludeMarkers(exclude []string) []string {
	out := make([]string, len(exclude))
	for i, e := range exclude {
		out[i] = "-" + e
	}
	return out
}

func summarizeCluster(id int, rows []int32, mx *Matrix, baseIDs []uint32, baseFreq []float64, baseAvg float64, nBase int, placements []int8, p Params) Cluster {
	size := len(rows)
	ids := make([]uint32, size)
	for i, r := range rows {
		ids[i] = baseIDs[r]
	}
	hist := placementHist(placements, ids)
	var sum int64
	for _, id := range ids {
		sum += int64(placements[id])
	}
	avg := float64(sum) / float64(size)

	inCluster := make(map[int32]bool, size)
	for _, r := range rows {
		inCluster[r] = true
	}
	clusterFreq := make([]float64, len(mx.KeptFeatures))
	for col, featureRows := range mx.FeatureRows {
		var count int
		for _, r := range featureRows {
			if inCluster[r] {
				count++
			}
		}
		clusterFreq[col] = float64(count) / float64(size)
	}

	lift := make([]float64, len(mx.KeptFeatures))
	hasLift := make([]bool, len(mx.KeptFeatures))
	for i := range lift {
		if baseFreq[i] > 0 {
			lift[i] = clusterFreq[i] / baseFreq[i]
			hasLift[i] = true
		}
	}

	topTokens := func(prefix string, k int) []FeatureSummary {
		idx := namespaceIndices(mx.KeptFeatures, prefix)
		sort.SliceStable(idx, func(a, b int) bool { return clusterFreq[idx[a]] > clusterFreq[idx[b]] })
		if len(idx) > k {
			idx = idx[:k]
		}
		out := make([]FeatureSummary, len(idx))
		for i, fi := range idx {
			out[i] = FeatureSummary{Token: mx.KeptFeatures[fi], Pct: clusterFreq[fi], BasePct: baseFreq[fi], Lift: lift[fi], HasLift: hasLift[fi]}
		}
		return out
	}

	var definingUnits []FeatureSummary
	for i, tok := range mx.KeptFeatures {
		if !strings.HasPrefix(tok, "U:") {
			continue
		}
		if baseFreq[i] <= 0.01 || clusterFreq[i] <= 0.3 || lift[i] <= 2.0 {
			continue
		}
		definingUnits = append(definingUnits, FeatureSummary{Token: tok, Pct: clusterFreq[i], BasePct: baseFreq[i], Lift: lift[i], HasLift: true})
	}
	sort.SliceStable(definingUnits, func(i, j int) bool { return definingUnits[i].Lift > definingUnits[j].Lift })
	if len(definingUnits) > 5 {
		definingUnits = definingUnits[:5]
	}

	return Cluster{
		ID: id, Size: size, Share: float64(size) / float64(nBase),
		AvgPlacement: avg, DeltaVsBase: avg - baseAvg,
		PlacementHist: hist, Rates: ratesFromHist(hist),
		DefiningUnits: definingUnits,
		TopUnits:      topTokens("U:", p.TopKTokens),
		TopTraits:     topTokens("T:", p.TopKTokens),
		TopItems:      topTokens("I:", p.TopKTokens),
		SignatureTokens: signatureTokens(mx.KeptFeatures, clusterFreq, baseFreq),
		memberRows:    rows,
	}
}

// signatureTokens picks the per-namespace top-k by
// cluster_freq * log2(max(lift, 1)), requiring cluster_freq >= 0.2, limited
// to 4 units / 3 traits / 3 items.
func signatureTokens(kept []string, clusterFreq, baseFreq []float64) []string {
	const eps = 1e-9
	score := make([]float64, len(kept))
	for i := range kept {
		lift := clusterFreq[i] / math.Max(baseFreq[i], eps)
		score[i] = clusterFreq[i] * math.Log2(math.Max(lift, 1.0))
	}
	pick := func(prefix string, k int) []string {
		idx := namespaceIndices(kept, prefix)
		sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] > score[idx[b]] })
		var picked []string
		for _, i := range idx {
			if clusterFreq[i] < 0.2 {
				continue
			}
			picked = append(picked, kept[i])
			if len(picked) >= k {
				break
			}
		}
		return picked
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range append(append(pick("U:", 4), pick("T:", 3)...), pick("I:", 3)...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
