package token

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []Token{
		UnitTok("Ashe"),
		UnitStarTok("Ashe", 2),
		ItemTok("InfinityEdge"),
		EquippedTok("Ashe", "InfinityEdge"),
		EquippedCountTok("Ashe", "InfinityEdge", 2),
		EquippedCountTok("Ashe", "InfinityEdge", 3),
		TraitTok("Demacia"),
		TraitTierTok("Demacia", 3),
	}
	for _, tok := range cases {
		s := tok.String()
		parsed, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if parsed != tok {
			t.Fatalf("round trip mismatch for %q: got %+v want %+v", s, parsed, tok)
		}
	}
}

func TestImplies(t *testing.T) {
	got := EquippedCountTok("Ashe", "InfinityEdge", 3).Implies()
	want := []string{"E:Ashe|InfinityEdge", "E:Ashe|InfinityEdge:2"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	got = TraitTierTok("Demacia", 4).Implies()
	want = []string{"T:Demacia", "T:Demacia:3", "T:Demacia:2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	got = UnitStarTok("Ashe", 2).Implies()
	if len(got) != 1 || got[0] != "U:Ashe" {
		t.Fatalf("got %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	invalid := []string{"", "X:Y", "U:", "E:Ashe", "E:Ashe|", "T:X:notanumber", "U:Ashe:7"}
	for _, s := range invalid {
		if _, ok := Parse(s); ok {
			t.Fatalf("expected Parse(%q) to fail", s)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"TFT_Ashe":             "Ashe",
		"TFT14_Ashe":           "Ashe",
		"Set10_Ashe":           "Ashe",
		"TFT_Item_InfinityEdge": "InfinityEdge",
		"TFT14_Item_InfinityEdge": "InfinityEdge",
		"Ashe":                 "Ashe",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
