// Package filter implements the filter, candidate-generation, and
// scoring engine: parsing comma-separated include/exclude token lists,
// classifying a "center" selection, generating graph candidates from it by
// namespace-specific policy, and sorting scored edges for display.
package filter

import (
	"sort"
	"strings"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/taxonomy"
	"github.com/pable/smeecher/internal/token"
)

// ParseTokens splits a single comma-separated filter string into include and
// exclude token lists. A token prefixed with "-" or "!" is an exclude; order
// is not semantically meaningful.
func ParseTokens(raw string) (include, exclude []string) {
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "-") || strings.HasPrefix(t, "!") {
			exclude = append(exclude, t[1:])
		} else {
			include = append(include, t)
		}
	}
	return include, exclude
}

// CenterKind classifies an include-token set for candidate generation.
type CenterKind int

const (
	CenterEmpty CenterKind = iota
	CenterTrait
	CenterItem
	CenterUnit
	CenterCombo
)

// ClassifyCenter inspects the kinds of the include tokens and returns which
// candidate-generation policy applies.
func ClassifyCenter(include []string) CenterKind {
	if len(include) == 0 {
		return CenterEmpty
	}
	var hasUnit, hasItem bool
	for _, s := range include {
		t, ok := token.Parse(s)
		if !ok {
			continue
		}
		switch t.Kind {
		case token.Unit, token.UnitStar:
			hasUnit = true
		case token.Item:
			hasItem = true
		}
	}
	switch {
	case hasUnit && hasItem:
		return CenterCombo
	case hasUnit:
		return CenterUnit
	case hasItem:
		return CenterItem
	default:
		return CenterTrait
	}
}

// vocab is a one-time scan of the token vocabulary into the namespace
// buckets the candidate policy needs: base (non-starred/non-tiered) units,
// items, traits, and the unit<->item equip adjacency implied by E: tokens.
type vocab struct {
	units     []string
	items     []string
	traits    []string
	unitItems map[string][]string
	itemUnits map[string][]string
}

func buildVocab(ix *bitmapidx.Index) *vocab {
	v := &vocab{unitItems: map[string][]string{}, itemUnits: map[string][]string{}}
	for _, tok := range ix.IDToToken {
		parsed, ok := token.Parse(tok)
		if !ok {
			continue
		}
		switch parsed.Kind {
		case token.Unit:
			v.units = append(v.units, tok)
		case token.Item:
			v.items = append(v.items, tok)
		case token.Trait:
			v.traits = append(v.traits, tok)
		case token.Equipped:
			v.unitItems[parsed.Unit] = append(v.unitItems[parsed.Unit], parsed.Item)
			v.itemUnits[parsed.Item] = append(v.itemUnits[parsed.Item], parsed.Unit)
		}
	}
	return v
}

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// Candidates generates the raw candidate token pool for the given include
// set, by center kind. Tokens already present in include are never
// re-offered as candidates.
func Candidates(ix *bitmapidx.Index, include []string) []string {
	v := buildVocab(ix)
	seen := map[string]bool{}
	for _, t := range include {
		seen[t] = true
	}
	var out []string
	add := func(tok string) {
		if seen[tok] {
			return
		}
		seen[tok] = true
		out = append(out, tok)
	}

	switch ClassifyCenter(include) {
	case CenterEmpty:
		for _, u := range v.units {
			add(u)
		}
		for _, i := range v.items {
			add(i)
		}
		for _, tr := range v.traits {
			add(tr)
		}
	case CenterTrait:
		for _, u := range v.units {
			add(u)
		}
		for _, tr := range v.traits {
			add(tr)
		}
	case CenterItem:
		for _, t := range include {
			parsed, ok := token.Parse(t)
			if !ok || parsed.Kind != token.Item {
				continue
			}
			for _, u := range v.itemUnits[parsed.Item] {
				add(token.UnitTok(u).String())
			}
		}
		for _, i := range v.items {
			add(i)
		}
		for _, tr := range v.traits {
			add(tr)
		}
	case CenterUnit:
		for _, t := range include {
			parsed, ok := token.Parse(t)
			if !ok || (parsed.Kind != token.Unit && parsed.Kind != token.UnitStar) {
				continue
			}
			for _, item := range v.unitItems[parsed.Unit] {
				add(token.EquippedTok(parsed.Unit, item).String())
			}
		}
		for _, u := range v.units {
			add(u)
		}
		for _, tr := range v.traits {
			add(tr)
		}
	case CenterCombo:
		centerItems := map[string]bool{}
		for _, t := range include {
			parsed, ok := token.Parse(t)
			if ok && parsed.Kind == token.Item {
				centerItems[parsed.Item] = true
			}
		}
		for _, t := range include {
			parsed, ok := token.Parse(t)
			if !ok || (parsed.Kind != token.Unit && parsed.Kind != token.UnitStar) {
				continue
			}
			for _, item := range v.unitItems[parsed.Unit] {
				if centerItems[item] {
					continue
				}
				add(token.EquippedTok(parsed.Unit, item).String())
			}
		}
		for _, u := range v.units {
			add(u)
		}
		for _, tr := range v.traits {
			add(tr)
		}
	}
	return out
}

// Mask narrows a candidate pool by namespace, item type, and item prefix.
// A nil/empty mask field imposes no restriction on that axis.
type Mask struct {
	Types        []token.Kind
	ItemTypes    []taxonomy.ItemType
	ItemPrefixes []string
}

func (m Mask) apply(cands []string) []string {
	if len(m.Types) == 0 && len(m.ItemTypes) == 0 && len(m.ItemPrefixes) == 0 {
		return cands
	}
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		parsed, ok := token.Parse(c)
		if !ok {
			continue
		}
		if len(m.Types) > 0 {
			kindOK := false
			for _, k := range m.Types {
				if parsed.Kind == k {
					kindOK = true
					break
				}
			}
			if !kindOK {
				continue
			}
		}
		itemName := itemNameOf(parsed)
		if len(m.ItemTypes) > 0 {
			if itemName == "" {
				continue
			}
			kind := taxonomy.ItemKind(itemName)
			typeOK := false
			for _, it := range m.ItemTypes {
				if kind == it {
					typeOK = true
					break
				}
			}
			if !typeOK {
				continue
			}
		}
		if len(m.ItemPrefixes) > 0 {
			if itemName == "" {
				continue
			}
			prefix := taxonomy.ItemPrefix(itemName)
			if prefix == "" || !contains(m.ItemPrefixes, prefix) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func itemNameOf(t token.Token) string {
	switch t.Kind {
	case token.Item, token.Equipped, token.EquippedCount:
		return t.Item
	default:
		return ""
	}
}

// SortMode controls edge ordering for graph().
type SortMode string

const (
	SortImpact  SortMode = "impact"
	SortHelpful SortMode = "helpful"
	SortHarmful SortMode = "harmful"
)

// SortEdges orders scored edges in place per mode: impact ranks by |delta|
// descending, helpful by delta ascending (lowest placement is best), harmful
// by delta descending.
func SortEdges(edges []bitmapidx.ScoreResult, mode SortMode) {
	switch mode {
	case SortHelpful:
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Delta < edges[j].Delta })
	case SortHarmful:
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Delta > edges[j].Delta })
	default: // SortImpact
		sort.SliceStable(edges, func(i, j int) bool { return abs(edges[i].Delta) > abs(edges[j].Delta) })
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Node is a graph() vertex: a candidate token plus its display label.
type Node struct {
	Token string
	Label string
}

// Graph runs the full filter-and-score pipeline: parse tokens, compute base,
// generate and mask candidates, score them against base, and sort.
func Graph(
	ix *bitmapidx.Index,
	placements []int8,
	labelOf func(tok string) string,
	rawFilter string,
	mask Mask,
	sortMode SortMode,
	topK, minSample int,
) (nodes []Node, edges []bitmapidx.ScoreResult) {
	include, exclude := ParseTokens(rawFilter)
	base := ix.Filter(include, exclude)

	cands := Candidates(ix, include)
	cands = mask.apply(cands)

	edges = ix.ScoreCandidates(base, cands, minSample, placements)
	SortEdges(edges, sortMode)
	if topK > 0 && len(edges) > topK {
		edges = edges[:topK]
	}

	nodes = make([]Node, len(edges))
	for i, e := range edges {
		nodes[i] = Node{Token: e.Token, Label: labelOf(e.Token)}
	}
	return nodes, edges
}
