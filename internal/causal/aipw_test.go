package causal

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/pable/smeecher/internal/xrand"
)

// synthX fills an n x p matrix with independent 0/1 columns.
func synthX(n, p int, seed int64) *mat.Dense {
	rng := xrand.New(seed)
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if rng.Intn(2) == 1 {
				X.Set(i, j, 1)
			}
		}
	}
	return X
}

func bernoulli(n int, seed int64) []float64 {
	rng := xrand.New(seed)
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(rng.Intn(2))
	}
	return v
}

func TestRun_RandomizedTreatmentNearZero(t *testing.T) {
	n := 2000
	X := synthX(n, 3, 1)
	T := bernoulli(n, 2)
	y := bernoulli(n, 3)

	res := Run(X, T, y, true, DefaultConfig())
	if !res.Ok {
		t.Fatalf("expected identifiable estimate, got failure: %+v", res.Failure)
	}
	est := res.Value
	if math.Abs(est.Tau) > 0.2 {
		t.Fatalf("randomized treatment should have tau near 0, got %v", est.Tau)
	}
	if est.CILow > est.Tau || est.CIHigh < est.Tau {
		t.Fatalf("CI [%v, %v] must bracket tau %v", est.CILow, est.CIHigh, est.Tau)
	}
	if est.NUsed > n || est.NTreatedUsed+est.NControlUsed != est.NUsed {
		t.Fatalf("inconsistent used counts: %+v", est)
	}
}

func TestRun_RecoversDeterministicEffect(t *testing.T) {
	// y == T exactly: both outcome arms are degenerate, the group-mean
	// fallback kicks in, and tau must come out 1.
	n := 1000
	X := synthX(n, 2, 7)
	T := bernoulli(n, 8)
	y := append([]float64{}, T...)

	res := Run(X, T, y, true, DefaultConfig())
	if !res.Ok {
		t.Fatalf("expected identifiable estimate, got failure: %+v", res.Failure)
	}
	if math.Abs(res.Value.Tau-1) > 0.05 {
		t.Fatalf("tau = %v, want ~1", res.Value.Tau)
	}
	if math.Abs(res.Value.RawTau-1) > 1e-9 {
		t.Fatalf("raw naive diff = %v, want 1", res.Value.RawTau)
	}
}

func TestRun_OverlapFailureGate(t *testing.T) {
	// T is a deterministic function of column 0, which is set on only 10
	// rows: far too few treated rows to pass the identifiability gate.
	n := 400
	X := mat.NewDense(n, 2, nil)
	T := make([]float64, n)
	y := bernoulli(n, 5)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, 1)
		T[i] = 1
	}

	res := Run(X, T, y, true, DefaultConfig())
	if res.Ok {
		t.Fatalf("expected overlap failure, got estimate %+v", res.Value)
	}
	if res.Failure.N != n {
		t.Fatalf("diagnostics N = %d, want %d", res.Failure.N, n)
	}
	if res.Failure.NTreatedUsed >= 50 {
		t.Fatalf("treated-used = %d, gate should have tripped below 50", res.Failure.NTreatedUsed)
	}
	if res.Failure.TrimLow != 0.05 || res.Failure.TrimHigh != 0.95 {
		t.Fatalf("diagnostics must carry the trim bounds, got %+v", res.Failure)
	}
}

func TestRun_DegenerateInputs(t *testing.T) {
	res := Run(mat.NewDense(1, 1, nil), nil, nil, true, DefaultConfig())
	if res.Ok {
		t.Fatal("empty input must not produce an estimate")
	}
	// All-treated: no control group anywhere.
	n := 100
	T := make([]float64, n)
	for i := range T {
		T[i] = 1
	}
	res = Run(synthX(n, 2, 1), T, bernoulli(n, 2), true, DefaultConfig())
	if res.Ok {
		t.Fatal("single-group input must not produce an estimate")
	}
}

func TestEValueFromRiskRatio(t *testing.T) {
	if got := eValueFromRiskRatio(1); got != 1 {
		t.Fatalf("rr=1: got %v, want 1", got)
	}
	want := 2 + math.Sqrt(2)
	if got := eValueFromRiskRatio(2); math.Abs(got-want) > 1e-12 {
		t.Fatalf("rr=2: got %v, want %v", got, want)
	}
	// Protective ratios are inverted first, so rr and 1/rr agree.
	if a, b := eValueFromRiskRatio(0.5), eValueFromRiskRatio(2); math.Abs(a-b) > 1e-12 {
		t.Fatalf("rr=0.5 (%v) should match rr=2 (%v)", a, b)
	}
	if got := eValueFromRiskRatio(0); !math.IsNaN(got) {
		t.Fatalf("rr=0: got %v, want NaN", got)
	}
}

func TestTwoSidedPValue(t *testing.T) {
	if got := twoSidedPValue(0, 0); got != 1 {
		t.Fatalf("tau=0, se=0: got %v, want 1", got)
	}
	if got := twoSidedPValue(1, 0); got != 0 {
		t.Fatalf("tau=1, se=0: got %v, want 0", got)
	}
	if got := twoSidedPValue(0, 1); math.Abs(got-1) > 1e-12 {
		t.Fatalf("z=0: got %v, want 1", got)
	}
	if got := twoSidedPValue(1.96, 1); math.Abs(got-0.05) > 0.001 {
		t.Fatalf("z=1.96: got %v, want ~0.05", got)
	}
}

func TestKFoldAssignments(t *testing.T) {
	n, k := 103, 5
	folds := kfoldAssignments(n, k, 42)
	counts := make([]int, k)
	for _, f := range folds {
		if f < 0 || f >= k {
			t.Fatalf("fold %d out of range", f)
		}
		counts[f]++
	}
	for _, c := range counts {
		if c < n/k || c > n/k+1 {
			t.Fatalf("unbalanced folds: %v", counts)
		}
	}
	again := kfoldAssignments(n, k, 42)
	for i := range folds {
		if folds[i] != again[i] {
			t.Fatal("fold assignment must be deterministic for a fixed seed")
		}
	}
}

func TestPercentiles(t *testing.T) {
	v := make([]float64, 100)
	for i := range v {
		v[i] = float64(i + 1)
	}
	p := percentiles(v)
	if p.min != 1 || p.max != 100 {
		t.Fatalf("min/max = %v/%v", p.min, p.max)
	}
	if p.p50 < 49 || p.p50 > 52 {
		t.Fatalf("p50 = %v", p.p50)
	}
}

func TestTransform(t *testing.T) {
	placements := []int8{0, 1, 4, 5, 8}
	ids := []uint32{1, 2, 3, 4}

	cases := []struct {
		outcome Outcome
		want    []float64
	}{
		{OutcomeTop4, []float64{1, 1, 0, 0}},
		{OutcomeWin, []float64{1, 0, 0, 0}},
		{OutcomePlacement, []float64{1, 4, 5, 8}},
		{OutcomeRankScore, []float64{7, 4, 3, 0}},
	}
	for _, tc := range cases {
		got := Transform(placements, ids, tc.outcome)
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got %v, want %v", tc.outcome, got, tc.want)
			}
		}
	}
}

func TestParseOutcome(t *testing.T) {
	if ParseOutcome("win") != OutcomeWin || ParseOutcome("rank") != OutcomePlacement {
		t.Fatal("alias mapping broken")
	}
	if ParseOutcome("") != OutcomeTop4 || ParseOutcome("nonsense") != OutcomeTop4 {
		t.Fatal("default outcome must be top4")
	}
	if !OutcomeTop4.IsBinary() || !OutcomeWin.IsBinary() || OutcomePlacement.IsBinary() {
		t.Fatal("IsBinary misclassifies an outcome")
	}
}
