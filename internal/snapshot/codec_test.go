package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pable/smeecher/internal/engine"
)

// corruptVersionByte flips the version header (the 5th byte, right after
// the 4-byte magic) to a value this build does not know how to read.
func corruptVersionByte(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	data[4] = 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
}

func sampleEngine() *engine.Engine {
	rows := []engine.MatchRow{
		{Placement: 1, Units: []engine.UnitEntry{{Name: "Ashe", Star: 2, Cost: 1, Items: []string{"InfinityEdge", "InfinityEdge"}}}, Traits: []engine.TraitEntry{{Name: "Demacia", Tier: 3, NumUnits: 7}}},
		{Placement: 8, Units: []engine.UnitEntry{{Name: "Ashe", Star: 1, Cost: 1}}},
		{Placement: 4, Units: []engine.UnitEntry{{Name: "Jinx", Star: 3, Cost: 4, Items: []string{"EmptyBag"}}}},
	}
	e := engine.Build(rows)
	e.Necessity = engine.NewNecessityCache(len(e.Index.IDToToken))
	if id, ok := e.Index.Lookup("E:Ashe|InfinityEdge"); ok {
		e.Necessity.Set(id, engine.Entry{
			Tau: 0.12, CiLo: 0.01, CiHi: 0.23, Se: 0.06, RawTau: 0.13,
			FracTrimmed: 0.02, EP01: 1.4, EP99: 1.9,
			NTreated: 10, NControl: 90, NUsed: 95, ScopeMinStar: 2,
		})
	}
	return e
}

func TestRoundTrip(t *testing.T) {
	orig := sampleEngine()
	path := filepath.Join(t.TempDir(), "snap.smee")

	if err := Save(orig, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.TotalMatch != orig.TotalMatch {
		t.Fatalf("TotalMatch = %d, want %d", got.TotalMatch, orig.TotalMatch)
	}
	if got.Arrays.Len() != orig.Arrays.Len() {
		t.Fatalf("Arrays.Len() = %d, want %d", got.Arrays.Len(), orig.Arrays.Len())
	}
	for i := 0; i < orig.Arrays.Len(); i++ {
		if got.Arrays.Placement[i] != orig.Arrays.Placement[i] {
			t.Fatalf("Placement[%d] = %d, want %d", i, got.Arrays.Placement[i], orig.Arrays.Placement[i])
		}
		if got.Arrays.ItemCount[i] != orig.Arrays.ItemCount[i] {
			t.Fatalf("ItemCount[%d] = %d, want %d", i, got.Arrays.ItemCount[i], orig.Arrays.ItemCount[i])
		}
		if got.Arrays.UnitGoldValue[i] != orig.Arrays.UnitGoldValue[i] {
			t.Fatalf("UnitGoldValue[%d] = %d, want %d", i, got.Arrays.UnitGoldValue[i], orig.Arrays.UnitGoldValue[i])
		}
	}

	if len(got.Index.IDToToken) != len(orig.Index.IDToToken) {
		t.Fatalf("token count = %d, want %d", len(got.Index.IDToToken), len(orig.Index.IDToToken))
	}
	for id, tok := range orig.Index.IDToToken {
		if got.Index.IDToToken[id] != tok {
			t.Fatalf("token[%d] = %q, want %q", id, got.Index.IDToToken[id], tok)
		}
		if got.Labels[id] != orig.Labels[id] {
			t.Fatalf("label[%d] = %q, want %q", id, got.Labels[id], orig.Labels[id])
		}
		wantBM := orig.Index.Stats[id].Bitmap
		gotBM := got.Index.Stats[id].Bitmap
		if !wantBM.Equals(gotBM) {
			t.Fatalf("bitmap[%d] mismatch: got %v want %v", id, gotBM, wantBM)
		}
		if got.Index.Stats[id].PlacementSum != orig.Index.Stats[id].PlacementSum {
			t.Fatalf("psum[%d] mismatch", id)
		}
		if got.Index.Stats[id].Count != orig.Index.Stats[id].Count {
			t.Fatalf("count[%d] mismatch", id)
		}
	}
	if !got.Index.AllPlayers.Equals(orig.Index.AllPlayers) {
		t.Fatalf("AllPlayers mismatch")
	}

	id, ok := orig.Index.Lookup("E:Ashe|InfinityEdge")
	if !ok {
		t.Fatal("E:Ashe|InfinityEdge missing")
	}
	wantEntry := orig.Necessity.Get(id)
	gotEntry := got.Necessity.Get(id)
	if gotEntry != wantEntry {
		t.Fatalf("necessity entry = %+v, want %+v", gotEntry, wantEntry)
	}
}

func TestLoadVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.smee")
	if err := Save(sampleEngine(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	corruptVersionByte(t, path)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error loading version-mismatched snapshot")
	}
	if _, ok := err.(*VersionMismatchError); !ok {
		t.Fatalf("got %T, want *VersionMismatchError", err)
	}
}
