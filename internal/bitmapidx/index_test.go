package bitmapidx

import "testing"

func addToken(ix *Index, tok string, ids ...uint32) {
	id := ix.EnsureID(tok)
	bm := ix.Stats[id].Bitmap
	for _, pmID := range ids {
		bm.Add(pmID)
		ix.AllPlayers.Add(pmID)
	}
	ix.Stats[id].Count = int32(bm.GetCardinality())
}

// buildS1 constructs a tiny fixture: 4 pm-ids with placements {1,8,4,4}
// and U:A={1,2}, U:B={2,3,4}.
func buildS1() (*Index, []int8) {
	ix := New()
	addToken(ix, "U:A", 1, 2)
	addToken(ix, "U:B", 2, 3, 4)
	placements := []int8{0, 1, 8, 4, 4} // index 0 unused
	return ix, placements
}

func TestFilterAndAvgPlacement_S1(t *testing.T) {
	ix, placements := buildS1()
	got := ix.Intersect([]string{"U:A", "U:B"})
	if got.GetCardinality() != 1 || !got.Contains(2) {
		t.Fatalf("intersect = %v, want {2}", got.ToArray())
	}
	if avg := AvgPlacement(got, placements); avg != 8.0 {
		t.Fatalf("avg = %v, want 8.0", avg)
	}
}

func TestFilterExclude_S2(t *testing.T) {
	ix, placements := buildS1()
	got := ix.Filter([]string{"U:B"}, []string{"U:A"})
	want := []uint32{3, 4}
	if got.GetCardinality() != 2 {
		t.Fatalf("got %v want %v", got.ToArray(), want)
	}
	arr := got.ToArray()
	for i, w := range want {
		if arr[i] != w {
			t.Fatalf("got %v want %v", arr, want)
		}
	}
	if avg := AvgPlacement(got, placements); avg != 4.0 {
		t.Fatalf("avg = %v, want 4.0", avg)
	}
}

func TestEmptyFilterIsAllPlayers(t *testing.T) {
	ix, _ := buildS1()
	got := ix.Filter(nil, nil)
	if got.GetCardinality() != ix.AllPlayers.GetCardinality() {
		t.Fatalf("empty filter should equal AllPlayers")
	}
}

func TestUnknownIncludeIsEmpty(t *testing.T) {
	ix, _ := buildS1()
	got := ix.Intersect([]string{"U:A", "U:Nonexistent"})
	if !got.IsEmpty() {
		t.Fatalf("expected empty, got %v", got.ToArray())
	}
}

func TestUnknownExcludeIgnored(t *testing.T) {
	ix, _ := buildS1()
	got := ix.Filter([]string{"U:A"}, []string{"U:Nonexistent"})
	if got.GetCardinality() != 2 {
		t.Fatalf("got %v", got.ToArray())
	}
}

func TestMonotonicity(t *testing.T) {
	ix, _ := buildS1()
	base := ix.Intersect([]string{"U:A"})
	extended := ix.Intersect([]string{"U:A", "U:B"})
	if extended.GetCardinality() > base.GetCardinality() {
		t.Fatalf("extended filter grew: %d > %d", extended.GetCardinality(), base.GetCardinality())
	}
}

func TestExcludeDuality(t *testing.T) {
	ix, _ := buildS1()
	withExclude := ix.Filter([]string{"U:B"}, []string{"U:A"})
	withoutExclude := ix.Filter([]string{"U:B"}, nil)
	withBoth := ix.Intersect([]string{"U:B", "U:A"})
	lhs := withExclude.GetCardinality()
	rhs := withoutExclude.GetCardinality() - withBoth.GetCardinality()
	if int64(lhs) != int64(rhs) {
		t.Fatalf("exclude duality violated: %d != %d", lhs, rhs)
	}
}

func TestIdempotentOrdering(t *testing.T) {
	ix, _ := buildS1()
	a := ix.Intersect([]string{"U:A", "U:B"})
	b := ix.Intersect([]string{"U:B", "U:A"})
	if a.GetCardinality() != b.GetCardinality() || !a.Equals(b) {
		t.Fatalf("order dependence detected")
	}
}
