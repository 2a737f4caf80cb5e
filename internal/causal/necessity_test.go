package causal

import (
	"math"
	"testing"

	"github.com/pable/smeecher/internal/engine"
)

// buildItemEffectEngine builds 600 Ashe boards where InfinityEdge perfectly
// determines a top-4 finish: 300 holders placing 1-4, 300 without placing
// 5-8. Brand rides along on every other board so the design matrix has at
// least one token column.
func buildItemEffectEngine() *engine.Engine {
	rows := make([]engine.MatchRow, 600)
	for i := range rows {
		var units []engine.UnitEntry
		if i < 300 {
			rows[i].Placement = i%4 + 1
			units = append(units, engine.UnitEntry{Name: "Ashe", Star: 1, Cost: 1, Items: []string{"InfinityEdge"}})
		} else {
			rows[i].Placement = i%4 + 5
			units = append(units, engine.UnitEntry{Name: "Ashe", Star: 1, Cost: 1})
		}
		if i%2 == 0 {
			units = append(units, engine.UnitEntry{Name: "Brand", Star: 1, Cost: 2})
		}
		rows[i].Units = units
	}
	return engine.Build(rows)
}

func TestItemNecessity_DeterministicEffect(t *testing.T) {
	eng := buildItemEffectEngine()

	res, scope := ItemNecessity(eng, "Ashe", "InfinityEdge", "", OutcomeTop4, 1, DefaultConfig())
	if !res.Ok {
		t.Fatalf("expected identifiable estimate, got failure: %+v", res.Failure)
	}
	if scope != 0 {
		t.Fatalf("no 2-star boards exist, scope should be unset, got %d", scope)
	}
	if res.Value.Tau < 0.8 {
		t.Fatalf("tau = %v, want ~1 for a deterministic item effect", res.Value.Tau)
	}
	if math.Abs(res.Value.RawTau-1) > 1e-9 {
		t.Fatalf("raw naive diff = %v, want 1", res.Value.RawTau)
	}
	if res.Value.NTreated != 300 || res.Value.NControl != 300 {
		t.Fatalf("group counts = %d/%d, want 300/300", res.Value.NTreated, res.Value.NControl)
	}
}

func TestItemNecessity_UnknownItemFailsGate(t *testing.T) {
	eng := buildItemEffectEngine()
	res, _ := ItemNecessity(eng, "Ashe", "NoSuchItem", "", OutcomeTop4, 1, DefaultConfig())
	if res.Ok {
		t.Fatal("an item nobody holds has no treated group and must not estimate")
	}
}

func TestBuildNecessityCache_PopulatesEquippedTokens(t *testing.T) {
	eng := buildItemEffectEngine()
	BuildNecessityCache(eng, DefaultConfig())

	id, ok := eng.Index.Lookup("E:Ashe|InfinityEdge")
	if !ok {
		t.Fatal("equipped token missing")
	}
	entry := eng.Necessity.Get(id)
	if !entry.Set {
		t.Fatal("expected a cached estimate for E:Ashe|InfinityEdge")
	}
	if entry.Tau < 0.8 {
		t.Fatalf("cached tau = %v, want ~1", entry.Tau)
	}
	if entry.ScopeMinStar != 0 {
		t.Fatalf("scope = %d, want 0", entry.ScopeMinStar)
	}

	// Non-equipped tokens stay unset.
	unitID, _ := eng.Index.Lookup("U:Ashe")
	if eng.Necessity.Get(unitID).Set {
		t.Fatal("unit tokens must never carry a necessity estimate")
	}
}

func TestAutoScope_TwoStarDominated(t *testing.T) {
	rows := make([]engine.MatchRow, 2500)
	for i := range rows {
		star := 2
		if i >= 2100 {
			star = 1
		}
		rows[i] = engine.MatchRow{
			Placement: i%8 + 1,
			Units:     []engine.UnitEntry{{Name: "Ashe", Star: star, Cost: 1}},
		}
	}
	eng := engine.Build(rows)
	base := eng.Index.Filter([]string{"U:Ashe"}, nil)

	cfg := DefaultConfig()
	scoped, star := AutoScope(eng, base, "Ashe", []string{"U:Ashe"}, cfg.AutoScopeShare, cfg.AutoScopeMinRows)
	if star != 2 {
		t.Fatalf("scope = %d, want 2 (84%% of boards are 2-star)", star)
	}
	if scoped.GetCardinality() != 2100 {
		t.Fatalf("scoped size = %d, want 2100", scoped.GetCardinality())
	}

	// A caller-supplied star filter disables auto-scoping.
	scoped, star = AutoScope(eng, base, "Ashe", []string{"U:Ashe", "U:Ashe:2"}, cfg.AutoScopeShare, cfg.AutoScopeMinRows)
	if star != 0 || scoped.GetCardinality() != base.GetCardinality() {
		t.Fatal("explicit star filter must suppress auto-scope")
	}
}

func TestAutoScope_BelowFloor(t *testing.T) {
	rows := make([]engine.MatchRow, 100)
	for i := range rows {
		rows[i] = engine.MatchRow{
			Placement: i%8 + 1,
			Units:     []engine.UnitEntry{{Name: "Ashe", Star: 2, Cost: 1}},
		}
	}
	eng := engine.Build(rows)
	base := eng.Index.Filter([]string{"U:Ashe"}, nil)
	cfg := DefaultConfig()
	if _, star := AutoScope(eng, base, "Ashe", []string{"U:Ashe"}, cfg.AutoScopeShare, cfg.AutoScopeMinRows); star != 0 {
		t.Fatal("100 rows is under the auto-scope floor")
	}
	// A lowered floor from config turns the same base into a scoped one.
	if _, star := AutoScope(eng, base, "Ashe", []string{"U:Ashe"}, cfg.AutoScopeShare, 50); star != 2 {
		t.Fatal("expected a config-lowered floor to enable auto-scope")
	}
}
