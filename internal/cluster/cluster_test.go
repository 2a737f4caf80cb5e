package cluster

import (
	"fmt"
	"testing"

	"github.com/pable/smeecher/internal/engine"
)

func buildComps(n int) *engine.Engine {
	rows := make([]engine.MatchRow, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			rows = append(rows, engine.MatchRow{
				Placement: 1 + i%4,
				Units:     []engine.UnitEntry{{Name: "Ashe", Star: 2}, {Name: "Jinx", Star: 1}},
				Traits:    []engine.TraitEntry{{Name: "Sniper", Tier: 2}},
			})
		} else {
			rows = append(rows, engine.MatchRow{
				Placement: 5 + i%4,
				Units:     []engine.UnitEntry{{Name: "Garen", Star: 1}, {Name: "Darius", Star: 2}},
				Traits:    []engine.TraitEntry{{Name: "Juggernaut", Tier: 2}},
			})
		}
	}
	return engine.Build(rows)
}

func TestComputeClusters_EmptyBase(t *testing.T) {
	e := buildComps(0)
	r := ComputeClusters(e, "U:DoesNotExist", DefaultParams())
	if r.Warning == "" {
		t.Fatalf("expected a warning on empty base")
	}
}

func TestComputeClusters_TooSmall(t *testing.T) {
	e := buildComps(20)
	p := DefaultParams()
	p.MinTokenFreq = 1
	r := ComputeClusters(e, "", p)
	if r.Warning == "" {
		t.Fatalf("expected a too-small warning, got clusters=%v", r.Clusters)
	}
}

func TestComputeClusters_SizesRespectMinAndSum(t *testing.T) {
	e := buildComps(400)
	p := DefaultParams()
	p.NClusters = 2
	p.MinClusterSize = 10
	p.MinTokenFreq = 1
	r := ComputeClusters(e, "", p)
	if r.Warning != "" {
		t.Fatalf("unexpected warning: %s", r.Warning)
	}
	total := 0
	for _, c := range r.Clusters {
		if c.Size < p.MinClusterSize {
			t.Errorf("cluster %d size %d below min %d", c.ID, c.Size, p.MinClusterSize)
		}
		total += c.Size
	}
	if total > r.BaseN {
		t.Errorf("cluster sizes sum %d exceeds base %d", total, r.BaseN)
	}
}

func TestRunID_Deterministic(t *testing.T) {
	p := DefaultParams()
	k1 := newCacheKey([]string{"U:Ashe", "T:Sniper"}, nil, p)
	k2 := newCacheKey([]string{"T:Sniper", "U:Ashe"}, nil, p)
	if k1.RunID() != k2.RunID() {
		t.Fatalf("RunID should be order-independent: %s vs %s", k1.RunID(), k2.RunID())
	}
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache()
	p := DefaultParams()
	want := Result{BaseN: 42}
	c.Put([]string{"U:Ashe"}, nil, p, want, nil)
	got, _, ok := c.Get([]string{"U:Ashe"}, nil, p)
	if !ok || got.BaseN != 42 {
		t.Fatalf("Get after Put = %+v, %v", got, ok)
	}
	if _, _, ok := c.Get([]string{"U:Jinx"}, nil, p); ok {
		t.Fatalf("expected miss for different key")
	}
}

func TestCache_EvictsLRU(t *testing.T) {
	c := NewCache()
	c.capacity = 2
	p := DefaultParams()
	for i := 0; i < 3; i++ {
		c.Put([]string{fmt.Sprintf("U:%d", i)}, nil, p, Result{BaseN: i}, nil)
	}
	if _, _, ok := c.Get([]string{"U:0"}, nil, p); ok {
		t.Fatalf("expected U:0 to be evicted")
	}
	if _, _, ok := c.Get([]string{"U:2"}, nil, p); !ok {
		t.Fatalf("expected U:2 to remain cached")
	}
}
