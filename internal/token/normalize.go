package token

import (
	"regexp"
	"strings"
)

// setPrefixPattern strips the family of set-scoped namespace prefixes the
// TFT data API attaches to unit/item/trait ids: TFT_, TFT<N>_, Set<N>_, and
// the item-specific TFT_Item_/TFT<N>_Item_ variants.
var setPrefixPattern = regexp.MustCompile(`^(TFT\d*_Item_|TFT\d*_|Set\d+_)`)

// NormalizeName strips a leading set-namespace prefix from a raw id string
// as emitted by the ingest source. Normalization is one-way and idempotent:
// applying it twice yields the same result as applying it once.
func NormalizeName(raw string) string {
	name := raw
	for {
		stripped := setPrefixPattern.ReplaceAllString(name, "")
		if stripped == name {
			break
		}
		name = stripped
	}
	return strings.TrimSpace(name)
}

// EmptyBagPlaceholder is the opaque item id the randomized "item bag"
// mechanic emits when a grant rolled nothing usable. It is never tokenized.
//
// Open question: this is tied to one specific in-game
// randomized-bag mechanic and may need revisiting if that mechanic changes.
const EmptyBagPlaceholder = "EmptyBag"
