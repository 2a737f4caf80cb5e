package engine

// MatchRow is one player's result within one match, as handed to the
// tokenizer by the ingest boundary (internal/storage). This is the only
// shape the core engine knows about; everything upstream of it (API
// clients, rate limiting, the relational schema itself) stays outside
// the engine.
type MatchRow struct {
	Placement int // 1..8
	Units     []UnitEntry
	Traits    []TraitEntry
}

// UnitEntry describes one unit on a player's final board.
type UnitEntry struct {
	Name  string
	Star  int // actual star level, 1..6 (usually 1..3)
	Cost  int // shop cost tier, used for UnitGoldValue
	Items []string // raw (pre-normalization) item ids carried, one entry per copy
}

// TraitEntry describes one active trait on a player's final board.
type TraitEntry struct {
	Name     string
	Tier     int // API-reported tier, e.g. 3 for a 3-unit Demacia board
	NumUnits int // number of units contributing to the trait
}
