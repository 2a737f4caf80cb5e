package causal

import (
	"math"
	"testing"

	"github.com/pable/smeecher/internal/engine"
)

func TestWeightedPercentiles_UnequalWeights(t *testing.T) {
	// 98% of the mass sits at 0.1; a plain median over the three values
	// would return 0.5.
	ep := weightedPercentiles([]float64{0.5, 0.1, 0.9}, []float64{1, 98, 1})
	if ep.p50 != 0.1 {
		t.Fatalf("p50 = %v, want 0.1 (the dominant stratum)", ep.p50)
	}
	if ep.p99 != 0.5 {
		t.Fatalf("p99 = %v, want 0.5", ep.p99)
	}
	if ep.min != 0.1 || ep.max != 0.9 {
		t.Fatalf("min/max = %v/%v, want 0.1/0.9", ep.min, ep.max)
	}
}

func TestWeightedPercentiles_Empty(t *testing.T) {
	ep := weightedPercentiles(nil, nil)
	if ep.min != 0 || ep.max != 0 {
		t.Fatalf("empty input should yield zero pctiles, got %+v", ep)
	}
}

// buildUnevenComps builds 1200 Ashe boards split into two comps of very
// different size (900 with Jinx, 300 with Garen) so the strata come out
// uneven; within each comp, InfinityEdge perfectly decides a top-4 finish.
func buildUnevenComps() *engine.Engine {
	rows := make([]engine.MatchRow, 1200)
	for i := range rows {
		partner := "Jinx"
		if i >= 900 {
			partner = "Garen"
		}
		treated := i%2 == 0
		units := []engine.UnitEntry{{Name: partner, Star: 1, Cost: 2}}
		if treated {
			rows[i].Placement = i%4 + 1
			units = append(units, engine.UnitEntry{Name: "Ashe", Star: 1, Cost: 1, Items: []string{"InfinityEdge"}})
		} else {
			rows[i].Placement = i%4 + 5
			units = append(units, engine.UnitEntry{Name: "Ashe", Star: 1, Cost: 1})
		}
		rows[i].Units = units
	}
	return engine.Build(rows)
}

func TestFastApprox_UnevenStrata(t *testing.T) {
	eng := buildUnevenComps()
	base := eng.Index.Filter([]string{"U:Ashe"}, nil)

	sc := BuildStrata(eng, base, "Ashe", 1, 7)
	res := sc.Candidate("Ashe", "InfinityEdge", OutcomeTop4)
	if !res.Ok {
		t.Fatalf("expected an identifiable estimate, got %+v", res)
	}
	if res.Tau < 0.8 {
		t.Fatalf("tau = %v, want ~1 for a deterministic item effect", res.Tau)
	}
	if res.CILow > res.Tau || res.CIHigh < res.Tau {
		t.Fatalf("CI [%v, %v] must bracket tau %v", res.CILow, res.CIHigh, res.Tau)
	}
	// Every stratum has balanced treatment (e = 0.5), so nothing is trimmed
	// and no overlap warning fires regardless of how the rows clustered.
	if res.FracTrimmed > 1e-9 {
		t.Fatalf("frac trimmed = %v, want 0", res.FracTrimmed)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestFastApprox_NoTreatedRowsFailsGate(t *testing.T) {
	eng := buildUnevenComps()
	base := eng.Index.Filter([]string{"U:Ashe"}, nil)
	sc := BuildStrata(eng, base, "Ashe", 1, 7)

	res := sc.Candidate("Ashe", "NoSuchItem", OutcomeTop4)
	if res.Ok {
		t.Fatal("an item nobody holds must not produce an estimate")
	}
	if !math.IsNaN(res.Tau) && res.Tau != 0 {
		t.Fatalf("failed estimate should carry no tau, got %v", res.Tau)
	}
}
