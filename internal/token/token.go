// Package token implements the canonical token encoding shared by every
// engine component: a short tagged string that names a Boolean predicate
// over a player-match (unit present, item equipped, trait active, ...).
//
// A token is modeled as a sum type (Kind) plus the fields relevant to that
// kind, with String/Parse converting between the struct and the canonical
// wire form used in the snapshot file and in filter query strings.
package token

import (
	"strconv"
	"strings"
)

// Kind tags which predicate a token encodes.
type Kind uint8

const (
	Unit Kind = iota
	UnitStar
	Item
	Equipped
	EquippedCount
	Trait
	TraitTier
)

func (k Kind) String() string {
	switch k {
	case Unit:
		return "Unit"
	case UnitStar:
		return "UnitStar"
	case Item:
		return "Item"
	case Equipped:
		return "Equipped"
	case EquippedCount:
		return "EquippedCount"
	case Trait:
		return "Trait"
	case TraitTier:
		return "TraitTier"
	default:
		return "Unknown"
	}
}

// Token is the parsed, tagged form of a canonical token string.
type Token struct {
	Kind  Kind
	Unit  string // Unit, UnitStar, Equipped, EquippedCount
	Item  string // Item, Equipped, EquippedCount
	Trait string // Trait, TraitTier
	Star  int    // UnitStar: 1..6
	Count int    // EquippedCount: 2 or 3
	Tier  int    // TraitTier: >=2
}

// Namespace returns the single-letter wire prefix for the token's kind.
func (t Token) Namespace() string {
	switch t.Kind {
	case Unit, UnitStar:
		return "U"
	case Item:
		return "I"
	case Equipped, EquippedCount:
		return "E"
	case Trait, TraitTier:
		return "T"
	default:
		return "?"
	}
}

// String renders the canonical wire form of the token, e.g. "U:Ashe:2",
// "E:Ashe|InfinityEdge:2", "T:Demacia:3".
func (t Token) String() string {
	switch t.Kind {
	case Unit:
		return "U:" + t.Unit
	case UnitStar:
		return "U:" + t.Unit + ":" + strconv.Itoa(t.Star)
	case Item:
		return "I:" + t.Item
	case Equipped:
		return "E:" + t.Unit + "|" + t.Item
	case EquippedCount:
		return "E:" + t.Unit + "|" + t.Item + ":" + strconv.Itoa(t.Count)
	case Trait:
		return "T:" + t.Trait
	case TraitTier:
		return "T:" + t.Trait + ":" + strconv.Itoa(t.Tier)
	default:
		return ""
	}
}

// UnitTok builds a Unit token.
func UnitTok(name string) Token { return Token{Kind: Unit, Unit: name} }

// UnitStarTok builds a UnitStar token for star level k (1..6).
func UnitStarTok(name string, k int) Token { return Token{Kind: UnitStar, Unit: name, Star: k} }

// ItemTok builds an Item token.
func ItemTok(name string) Token { return Token{Kind: Item, Item: name} }

// EquippedTok builds an Equipped token.
func EquippedTok(unit, item string) Token { return Token{Kind: Equipped, Unit: unit, Item: item} }

// EquippedCountTok builds an EquippedCount token for copy count c (2 or 3).
func EquippedCountTok(unit, item string, c int) Token {
	return Token{Kind: EquippedCount, Unit: unit, Item: item, Count: c}
}

// TraitTok builds a Trait token.
func TraitTok(name string) Token { return Token{Kind: Trait, Trait: name} }

// TraitTierTok builds a TraitTier token for tier k (>=2).
func TraitTierTok(name string, k int) Token { return Token{Kind: TraitTier, Trait: name, Tier: k} }

// Parse decodes a canonical token string back into its tagged form.
// ok is false if s is not a well-formed token.
func Parse(s string) (t Token, ok bool) {
	if len(s) < 3 || s[1] != ':' {
		return Token{}, false
	}
	ns, rest := s[0], s[2:]
	switch ns {
	case 'U':
		parts := strings.Split(rest, ":")
		switch len(parts) {
		case 1:
			if parts[0] == "" {
				return Token{}, false
			}
			return UnitTok(parts[0]), true
		case 2:
			k, err := strconv.Atoi(parts[1])
			if err != nil || k < 1 || k > 6 || parts[0] == "" {
				return Token{}, false
			}
			return UnitStarTok(parts[0], k), true
		default:
			return Token{}, false
		}
	case 'I':
		if rest == "" {
			return Token{}, false
		}
		return ItemTok(rest), true
	case 'E':
		bar := strings.Index(rest, "|")
		if bar < 0 {
			return Token{}, false
		}
		unit := rest[:bar]
		tail := rest[bar+1:]
		if unit == "" || tail == "" {
			return Token{}, false
		}
		if colon := strings.LastIndex(tail, ":"); colon >= 0 {
			c, err := strconv.Atoi(tail[colon+1:])
			if err == nil && (c == 2 || c == 3) {
				return EquippedCountTok(unit, tail[:colon], c), true
			}
		}
		return EquippedTok(unit, tail), true
	case 'T':
		parts := strings.Split(rest, ":")
		switch len(parts) {
		case 1:
			if parts[0] == "" {
				return Token{}, false
			}
			return TraitTok(parts[0]), true
		case 2:
			k, err := strconv.Atoi(parts[1])
			if err != nil || k < 2 || parts[0] == "" {
				return Token{}, false
			}
			return TraitTierTok(parts[0], k), true
		default:
			return Token{}, false
		}
	default:
		return Token{}, false
	}
}

// Implies returns the canonical strings of every weaker token this token's
// membership entails: a c-copy or k-tier token implies every lower
// count/tier variant and the base (unsuffixed) token, while a k-star token
// (an exact star level) implies only the base U:X token.
// The returned slice does not include the token itself.
func (t Token) Implies() []string {
	switch t.Kind {
	case UnitStar:
		return []string{UnitTok(t.Unit).String()}
	case EquippedCount:
		out := []string{EquippedTok(t.Unit, t.Item).String()}
		if t.Count == 3 {
			out = append(out, EquippedCountTok(t.Unit, t.Item, 2).String())
		}
		return out
	case TraitTier:
		out := []string{TraitTok(t.Trait).String()}
		for k := t.Tier - 1; k >= 2; k-- {
			out = append(out, TraitTierTok(t.Trait, k).String())
		}
		return out
	default:
		return nil
	}
}

// IsBase reports whether the token is the un-tiered / un-starred base form
// of its namespace (U:X, I:X, E:U|I, T:X) as opposed to a k-qualified
// variant (U:X:k, E:U|I:c, T:X:k).
func (t Token) IsBase() bool {
	switch t.Kind {
	case Unit, Item, Equipped, Trait:
		return true
	default:
		return false
	}
}
