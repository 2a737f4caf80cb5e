package causal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pable/smeecher/internal/xrand"
)

// Config holds the cross-fitting, clipping, and trimming knobs for Run,
// plus the auto-scope and precompute thresholds the surrounding jobs read.
type Config struct {
	NSplits      int
	RandomState  int64
	ClipEps      float64
	TrimLow      float64
	TrimHigh     float64
	MinGroupSize int // fallback-to-mean threshold within a cross-fit fold

	AutoScopeShare     float64 // 2-star-plus share needed to auto-scope
	AutoScopeMinRows   int     // row floor for auto-scoping
	MinPrecomputeGroup int     // treated/control floor for the build-time job
}

// precomputeClipEps is the widened clip the build-time necessity job uses.
const precomputeClipEps = 1e-2

// DefaultConfig is the on-demand, single-estimate configuration.
func DefaultConfig() Config {
	return Config{
		NSplits: 2, RandomState: 42, ClipEps: 1e-3, TrimLow: 0.05, TrimHigh: 0.95, MinGroupSize: 25,
		AutoScopeShare:     defaultAutoScopeShare,
		AutoScopeMinRows:   defaultAutoScopeMinRows,
		MinPrecomputeGroup: defaultMinPrecomputeGroup,
	}
}

// PrecomputeConfig widens clip_eps for the build-time necessity-cache job.
func PrecomputeConfig() Config {
	cfg := DefaultConfig()
	cfg.ClipEps = precomputeClipEps
	return cfg
}

// Estimate is the point estimate plus diagnostics returned on success.
type Estimate struct {
	Tau, SE, CILow, CIHigh, PValue float64
	RawTau                        float64
	N, NTreated, NControl, NUsed   int
	NTreatedUsed, NControlUsed     int
	EMin, EP01, EP50, EP99, EMax   float64
	FracTrimmed                    float64
	HasRiskRatio                   bool
	RiskRatio, EValue              float64
	Warnings                       []string
}

// Diagnostics is returned instead of an Estimate when the identifiability
// gate fails.
type Diagnostics struct {
	N, NUsed, NTreatedUsed, NControlUsed int
	TrimLow, TrimHigh                    float64
	EMin, EP01, EP50, EP99, EMax         float64
	FracTrimmed                          float64
	Warnings                             []string
}

// Result is the two-variant outcome of Estimate: either Ok carries a point
// estimate, or Failure carries overlap diagnostics.
type Result struct {
	Ok      bool
	Value   Estimate
	Failure Diagnostics
}

// Run performs AIPW with K-fold cross-fitting. X is
// the full design matrix (rows align with T and y); binary selects logistic
// vs linear outcome learners (the propensity model is always logistic),
// clips μ to [0, 1], and gates risk-ratio/E-value reporting.
func Run(X *mat.Dense, T, y []float64, binary bool, cfg Config) Result {
	n := len(T)
	if n == 0 || !bothGroupsPresent(T) {
		return Result{Ok: false, Failure: Diagnostics{N: n, TrimLow: cfg.TrimLow, TrimHigh: cfg.TrimHigh}}
	}

	k := cfg.NSplits
	if k < 2 {
		k = 2
	}
	if maxN := n; k > maxN {
		k = maxN
	}
	if k > 5 {
		k = 5
	}

	folds := kfoldAssignments(n, k, cfg.RandomState)
	eHat := make([]float64, n)
	mu1 := make([]float64, n)
	mu0 := make([]float64, n)

	for fold := 0; fold < k; fold++ {
		var trainRows, testRows []int
		for i, f := range folds {
			if f == fold {
				testRows = append(testRows, i)
			} else {
				trainRows = append(trainRows, i)
			}
		}
		sc := fitScaler(X, trainRows)
		Xscaled := make([][]float64, n)
		for i := 0; i < n; i++ {
			Xscaled[i] = sc.row(X, i)
		}

		prop := fitPropensity(Xscaled, trainRows, T, cfg.MinGroupSize)
		var treatedTrain, controlTrain []int
		for _, r := range trainRows {
			if T[r] == 1 {
				treatedTrain = append(treatedTrain, r)
			} else {
				controlTrain = append(controlTrain, r)
			}
		}
		mu1Model := fitOutcome(Xscaled, treatedTrain, y, binary, cfg.MinGroupSize, meanOf(y, trainRows))
		mu0Model := fitOutcome(Xscaled, controlTrain, y, binary, cfg.MinGroupSize, meanOf(y, trainRows))

		for _, r := range testRows {
			eHat[r] = prop.predictProba(Xscaled[r])
			if binary {
				mu1[r] = clip(mu1Model.predictProba(Xscaled[r]), 0, 1)
				mu0[r] = clip(mu0Model.predictProba(Xscaled[r]), 0, 1)
			} else {
				mu1[r] = mu1Model.predict(Xscaled[r])
				mu0[r] = mu0Model.predict(Xscaled[r])
			}
		}
	}

	for i := range eHat {
		eHat[i] = clip(eHat[i], cfg.ClipEps, 1-cfg.ClipEps)
	}

	nTreated, nControl := countGroups(T)
	ep := percentiles(eHat)
	used := make([]bool, n)
	var nUsed, nTreatedUsed, nControlUsed int
	for i, e := range eHat {
		if e >= cfg.TrimLow && e <= cfg.TrimHigh {
			used[i] = true
			nUsed++
			if T[i] == 1 {
				nTreatedUsed++
			} else {
				nControlUsed++
			}
		}
	}
	fracTrimmed := 1 - float64(nUsed)/float64(n)

	diag := Diagnostics{
		N: n, NUsed: nUsed, NTreatedUsed: nTreatedUsed, NControlUsed: nControlUsed,
		TrimLow: cfg.TrimLow, TrimHigh: cfg.TrimHigh,
		EMin: ep.min, EP01: ep.p01, EP50: ep.p50, EP99: ep.p99, EMax: ep.max,
		FracTrimmed: fracTrimmed,
	}

	gate := float64(nUsed) < math.Max(200, 0.05*float64(n)) || nTreatedUsed < 50 || nControlUsed < 50
	if gate {
		diag.Warnings = diagnosticWarnings(fracTrimmed, ep)
		return Result{Ok: false, Failure: diag}
	}

	var sumY1, sumY0, sumN float64
	phi := make([]float64, 0, nUsed)
	y1Used := make([]float64, 0, nUsed)
	y0Used := make([]float64, 0, nUsed)
	for i := 0; i < n; i++ {
		if !used[i] {
			continue
		}
		e := eHat[i]
		t := T[i]
		yi := y[i]
		y1i := mu1[i] + t*(yi-mu1[i])/e
		y0i := mu0[i] + (1-t)*(yi-mu0[i])/(1-e)
		phii := (mu1[i] - mu0[i]) + t*(yi-mu1[i])/e - (1-t)*(yi-mu0[i])/(1-e)
		sumY1 += y1i
		sumY0 += y0i
		sumN++
		phi = append(phi, phii)
		y1Used = append(y1Used, y1i)
		y0Used = append(y0Used, y0i)
	}
	tau := sumY1/sumN - sumY0/sumN
	se := stdev(phi) / math.Sqrt(sumN)
	ciLow := tau - 1.96*se
	ciHigh := tau + 1.96*se
	pValue := twoSidedPValue(tau, se)
	rawTau := rawNaiveDiff(T, y)

	est := Estimate{
		Tau: tau, SE: se, CILow: ciLow, CIHigh: ciHigh, PValue: pValue,
		RawTau: rawTau, N: n, NTreated: nTreated, NControl: nControl,
		NUsed: nUsed, NTreatedUsed: nTreatedUsed, NControlUsed: nControlUsed,
		EMin: ep.min, EP01: ep.p01, EP50: ep.p50, EP99: ep.p99, EMax: ep.max,
		FracTrimmed: fracTrimmed,
		Warnings:    diagnosticWarnings(fracTrimmed, ep),
	}

	if binary {
		y1Mean := mean(y1Used)
		y0Mean := mean(y0Used)
		if y0Mean != 0 {
			rr := y1Mean / y0Mean
			est.HasRiskRatio = true
			est.RiskRatio = rr
			est.EValue = eValueFromRiskRatio(rr)
		}
	}

	return Result{Ok: true, Value: est}
}

func diagnosticWarnings(fracTrimmed float64, ep pctiles) []string {
	var out []string
	if fracTrimmed > 0.5 {
		out = append(out, "Low overlap")
	}
	if ep.p01 < 0.02 || ep.p99 > 0.98 {
		out = append(out, "Positivity warning")
	}
	return out
}

// fitPropensity fits e(X) on the training fold, falling back to the
// training treatment rate if T has no variation in that fold.
func fitPropensity(Xscaled [][]float64, trainRows []int, T []float64, minGroup int) predictor {
	if !bothGroupsPresent(subset(T, trainRows)) {
		return constantModel{c: meanOf(T, trainRows)}
	}
	return fitLogistic(Xscaled, trainRows, T)
}

// fitOutcome fits μ on one treatment arm's training rows, falling back to
// the group mean (or overallMean if the group is empty) when the group is
// too small or, for binary outcomes, has degenerate variance.
func fitOutcome(Xscaled [][]float64, rows []int, y []float64, binary bool, minGroup int, overallMean float64) predictor {
	if len(rows) == 0 {
		return constantModel{c: overallMean}
	}
	if len(rows) < minGroup {
		return constantModel{c: meanOf(y, rows)}
	}
	if binary && !hasTwoValues(y, rows) {
		return constantModel{c: meanOf(y, rows)}
	}
	if binary {
		return fitLogistic(Xscaled, rows, y)
	}
	return fitLinear(Xscaled, rows, y)
}

func hasTwoValues(y []float64, rows []int) bool {
	seen := map[float64]bool{}
	for _, r := range rows {
		seen[y[r]] = true
		if len(seen) >= 2 {
			return true
		}
	}
	return false
}

func bothGroupsPresent(T []float64) bool {
	var sawOne, sawZero bool
	for _, t := range T {
		if t == 1 {
			sawOne = true
		} else {
			sawZero = true
		}
	}
	return sawOne && sawZero
}

func countGroups(T []float64) (treated, control int) {
	for _, t := range T {
		if t == 1 {
			treated++
		} else {
			control++
		}
	}
	return
}

func subset(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}

func meanOf(v []float64, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += v[r]
	}
	return sum / float64(len(rows))
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stdev(v []float64) float64 {
	n := len(v)
	if n < 2 {
		return 0
	}
	m := mean(v)
	var ss float64
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(n-1))
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func rawNaiveDiff(T, y []float64) float64 {
	var sum1, n1, sum0, n0 float64
	for i, t := range T {
		if t == 1 {
			sum1 += y[i]
			n1++
		} else {
			sum0 += y[i]
			n0++
		}
	}
	if n1 == 0 || n0 == 0 {
		return 0
	}
	return sum1/n1 - sum0/n0
}

type pctiles struct{ min, p01, p50, p99, max float64 }

func percentiles(v []float64) pctiles {
	if len(v) == 0 {
		return pctiles{}
	}
	sorted := append([]float64{}, v...)
	sort.Float64s(sorted)
	at := func(q float64) float64 {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return pctiles{min: sorted[0], p01: at(0.01), p50: at(0.50), p99: at(0.99), max: sorted[len(sorted)-1]}
}

// twoSidedPValue is the standard-normal two-sided p-value for tau/se, via
// the complementary error function.
func twoSidedPValue(tau, se float64) float64 {
	if se == 0 {
		if tau == 0 {
			return 1
		}
		return 0
	}
	z := math.Abs(tau / se)
	return math.Erfc(z / math.Sqrt2)
}

// eValueFromRiskRatio implements the VanderWeele-Ding E-value: invert
// rr < 1 first, then rr + sqrt(rr*(rr-1)); a risk ratio of exactly 1 (no
// confounding needed) returns 1.
func eValueFromRiskRatio(rr float64) float64 {
	if math.IsNaN(rr) || math.IsInf(rr, 0) || rr <= 0 {
		return math.NaN()
	}
	if rr < 1 {
		rr = 1 / rr
	}
	if rr <= 1 {
		return 1
	}
	return rr + math.Sqrt(rr*(rr-1))
}

// kfoldAssignments deterministically shuffles row indices and assigns each
// to one of k folds as evenly as possible.
func kfoldAssignments(n, k int, seed int64) []int {
	rng := xrand.New(seed)
	perm := rng.Shuffle(n)
	folds := make([]int, n)
	for rank, row := range perm {
		folds[row] = rank % k
	}
	return folds
}
