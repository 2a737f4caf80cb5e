package unitbuild

import (
	"testing"

	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
)

// buildAsheItems constructs a synthetic population where Ashe + InfinityEdge
// places well, Ashe + RunaansHurricane places poorly, and combining both
// places best of all (so the beam search has an interaction to find).
func buildAsheItems(n int) *engine.Engine {
	rows := make([]engine.MatchRow, 0, n)
	for i := 0; i < n; i++ {
		switch i % 4 {
		case 0: // Ashe + IE + Runaans: best
			rows = append(rows, engine.MatchRow{
				Placement: 1 + i%2,
				Units:     []engine.UnitEntry{{Name: "Ashe", Star: 2, Items: []string{"InfinityEdge", "RunaansHurricane"}}},
			})
		case 1: // Ashe + IE only: good
			rows = append(rows, engine.MatchRow{
				Placement: 2 + i%3,
				Units:     []engine.UnitEntry{{Name: "Ashe", Star: 2, Items: []string{"InfinityEdge"}}},
			})
		case 2: // Ashe + Runaans only: mediocre
			rows = append(rows, engine.MatchRow{
				Placement: 4 + i%3,
				Units:     []engine.UnitEntry{{Name: "Ashe", Star: 2, Items: []string{"RunaansHurricane"}}},
			})
		default: // Ashe, no items: worst
			rows = append(rows, engine.MatchRow{
				Placement: 6 + i%3,
				Units:     []engine.UnitEntry{{Name: "Ashe", Star: 1}},
			})
		}
	}
	return engine.Build(rows)
}

func TestCompute_RanksItemCombos(t *testing.T) {
	e := buildAsheItems(400)
	r := Compute(e, "Ashe", "", 10, 2, filter.Mask{})

	if r.BaseN == 0 {
		t.Fatalf("expected a non-empty base")
	}
	if len(r.Builds) == 0 {
		t.Fatalf("expected at least one build")
	}

	// The best build should be the 2-item IE+Runaans combo, and it should
	// beat the single-item builds' final average.
	best := r.Builds[0]
	if len(best.Items) != 2 {
		t.Fatalf("expected the top build to use both slots, got %+v", best)
	}
	names := map[string]bool{}
	for _, it := range best.Items {
		names[it.Item] = true
	}
	if !names["InfinityEdge"] || !names["RunaansHurricane"] {
		t.Errorf("expected best build to combine InfinityEdge+RunaansHurricane, got %+v", best.Items)
	}
	if best.FinalAvg >= r.BaseAvg {
		t.Errorf("expected best build's avg placement (%.2f) to beat base (%.2f)", best.FinalAvg, r.BaseAvg)
	}
}

func TestCompute_LocksItemsFromFilter(t *testing.T) {
	e := buildAsheItems(400)
	r := Compute(e, "Ashe", "E:Ashe|InfinityEdge", 10, 2, filter.Mask{})

	if len(r.Builds) == 0 {
		t.Fatalf("expected at least one build")
	}
	for _, b := range r.Builds {
		if b.Items[0].Item != "InfinityEdge" {
			t.Errorf("expected slot 1 locked to InfinityEdge, got %+v", b.Items)
		}
	}
}

func TestCompute_TooFewSamplesReturnsNoBuilds(t *testing.T) {
	e := buildAsheItems(5)
	r := Compute(e, "Ashe", "", 1000, 2, filter.Mask{})
	if len(r.Builds) != 0 {
		t.Errorf("expected no builds below min_sample, got %+v", r.Builds)
	}
}
