// Package taxonomy implements the item-type classification used by candidate
// filtering and causal design-matrix construction: every item name
// falls into exactly one of component/full/artifact/emblem/radiant.
//
// Evaluation order matters for names that could match more than one rule:
// component check first, then Emblem, then the set-namespace "artifact"
// catch-all, then Radiant, then Artifact_/Item_Ornn, default full.
package taxonomy

import "strings"

// ItemType is one of the five mutually-exclusive item categories.
type ItemType string

const (
	Component ItemType = "component"
	Full      ItemType = "full"
	Artifact  ItemType = "artifact"
	Emblem    ItemType = "emblem"
	Radiant   ItemType = "radiant"
)

// componentItems are the nine basic crafting components.
var componentItems = map[string]bool{
	"BFSword":            true,
	"ChainVest":          true,
	"GiantsBelt":         true,
	"NeedlesslyLargeRod":  true,
	"NegatronCloak":       true,
	"RecurveBow":          true,
	"SparringGloves":      true,
	"Spatula":             true,
	"TearOfTheGoddess":    true,
}

// ItemKind returns the taxonomy bucket for a (post-normalization) item name.
func ItemKind(name string) ItemType {
	if componentItems[name] {
		return Component
	}
	if strings.HasSuffix(name, "EmblemItem") || strings.HasPrefix(name, "TFT_Item_Emblem_") {
		return Emblem
	}
	// Set-specific / generated items often keep a "TFTxx_" or "TFTx_Item_"
	// style prefix even after the generic namespace strip; treat these as
	// artifacts so "full" stays close to "standard craftable" items.
	if (strings.HasPrefix(name, "TFT") || strings.HasPrefix(name, "Set")) && strings.Contains(name, "_") {
		return Artifact
	}
	if strings.HasSuffix(name, "Radiant") {
		return Radiant
	}
	if strings.HasPrefix(name, "Artifact_") || strings.Contains(name, "Item_Ornn") {
		return Artifact
	}
	return Full
}

// ItemPrefix returns the "set" prefix of a full item name (the substring
// before its first underscore), or "" if the item is not a full item, has
// no underscore, or the prefix itself looks like a namespace marker
// (TFT*/Set*) rather than a meaningful thematic grouping.
func ItemPrefix(name string) string {
	if ItemKind(name) != Full {
		return ""
	}
	idx := strings.Index(name, "_")
	if idx < 0 {
		return ""
	}
	prefix := name[:idx]
	if prefix == "" {
		return ""
	}
	upper := strings.ToUpper(prefix)
	lower := strings.ToLower(prefix)
	if strings.HasPrefix(upper, "TFT") || strings.HasPrefix(lower, "set") {
		return ""
	}
	return prefix
}
