package causal

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestScaler_MaxAbsColumns(t *testing.T) {
	X := mat.NewDense(3, 3, []float64{
		1, -4, 0,
		2, 2, 0,
		-3, 1, 0,
	})
	sc := fitScaler(X, []int{0, 1, 2})
	row := sc.row(X, 2)
	if row[0] != -1 {
		t.Fatalf("col 0 scaled by maxabs 3: got %v", row[0])
	}
	if row[1] != 0.25 {
		t.Fatalf("col 1 scaled by maxabs 4: got %v", row[1])
	}
	// All-zero columns must not divide by zero.
	if row[2] != 0 {
		t.Fatalf("zero column: got %v", row[2])
	}
}

func TestFitLogistic_SeparableDirection(t *testing.T) {
	Xs := [][]float64{}
	var y []float64
	var rows []int
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			Xs = append(Xs, []float64{1})
			y = append(y, 1)
		} else {
			Xs = append(Xs, []float64{-1})
			y = append(y, 0)
		}
		rows = append(rows, i)
	}
	m := fitLogistic(Xs, rows, y)
	hi := m.predictProba([]float64{1})
	lo := m.predictProba([]float64{-1})
	if hi <= 0.5 || lo >= 0.5 {
		t.Fatalf("logistic did not learn the separating direction: p(+1)=%v p(-1)=%v", hi, lo)
	}
}

func TestFitLinear_RecoversSlope(t *testing.T) {
	Xs := [][]float64{}
	var y []float64
	var rows []int
	for i := 0; i < 50; i++ {
		x := float64(i%10) / 10
		Xs = append(Xs, []float64{x})
		y = append(y, 2*x+1)
		rows = append(rows, i)
	}
	m := fitLinear(Xs, rows, y)
	if got := m.predict([]float64{0.5}); math.Abs(got-2) > 0.3 {
		t.Fatalf("predicted %v at x=0.5, want ~2", got)
	}
}

func TestConstantModelFallback(t *testing.T) {
	m := fitOutcome(nil, nil, nil, true, 25, 0.42)
	if got := m.predictProba(nil); got != 0.42 {
		t.Fatalf("empty group must fall back to the overall mean, got %v", got)
	}
	// A small group uses its own mean.
	Xs := [][]float64{{1}, {1}, {1}}
	y := []float64{1, 1, 0}
	m = fitOutcome(Xs, []int{0, 1, 2}, y, true, 25, 0.5)
	want := 2.0 / 3
	if got := m.predictProba([]float64{1}); math.Abs(got-want) > 1e-12 {
		t.Fatalf("small-group fallback mean = %v, want %v", got, want)
	}
}
