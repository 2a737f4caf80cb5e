package taxonomy

import "testing"

func TestItemKind(t *testing.T) {
	cases := map[string]ItemType{
		"BFSword":               Component,
		"InfinityEdge":          Full,
		"Bilgewater_CaptainsBrew": Full,
		"GuardianAngelRadiant":  Radiant,
		"Artifact_Deathcap":     Artifact,
		"TFT9_Item_Ornn_Deathblade": Artifact,
		"HextechEmblemItem":     Emblem,
		"TFT_Item_Emblem_Ace":   Emblem,
		"TFT9_UniqueGizmo":      Artifact,
	}
	for name, want := range cases {
		if got := ItemKind(name); got != want {
			t.Fatalf("ItemKind(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestItemPrefix(t *testing.T) {
	if got := ItemPrefix("Bilgewater_CaptainsBrew"); got != "Bilgewater" {
		t.Fatalf("got %q", got)
	}
	if got := ItemPrefix("InfinityEdge"); got != "" {
		t.Fatalf("got %q, want empty (no underscore)", got)
	}
	if got := ItemPrefix("BFSword"); got != "" {
		t.Fatalf("got %q, want empty (component)", got)
	}
	if got := ItemPrefix("TFT9_UniqueGizmo"); got != "" {
		t.Fatalf("got %q, want empty (artifact)", got)
	}
}
