package causal

import (
	"strings"

	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
	"github.com/pable/smeecher/internal/token"
)

// defaultMinPrecomputeGroup is the stock treated/control floor for the
// build-time job (distinct from the AIPW fold-level MinGroupSize fallback
// in Config).
const defaultMinPrecomputeGroup = 100

// ItemNecessity runs the full on-demand AIPW estimate for "item on unit"
// within an arbitrary filter context. rawFilter follows the same
// include/exclude syntax as the graph filter.
func ItemNecessity(eng *engine.Engine, unit, item, rawFilter string, outcome Outcome, minTokenFreq int, cfg Config) (Result, uint8) {
	include, exclude := filter.ParseTokens(rawFilter)
	include = append(include, token.UnitTok(unit).String())
	base := eng.Index.Filter(include, exclude)

	scoped, scopeMinStar := AutoScope(eng, base, unit, include, cfg.AutoScopeShare, cfg.AutoScopeMinRows)
	ids := scoped.ToArray()

	design := BuildDesign(eng, unit, item, ids, minTokenFreq)
	T := Treatment(eng, unit, item, ids)
	y := Transform(eng.Arrays.Placement, ids, outcome)

	return Run(design.X, T, y, outcome.IsBinary(), cfg), scopeMinStar
}

// BuildNecessityCache runs the build-time precompute job: for every E:U|I
// token whose unit/item groups (under auto-scope) each meet
// cfg.MinPrecomputeGroup, fit AIPW and store the result into eng.Necessity.
// Tokens that fail the identifiability gate, or whose groups are too small
// to attempt, keep NaN/zero (the cache's "unset" sentinel). cfg supplies
// the auto-scope and min-group thresholds; the job always cross-fits with
// K=2, min_token_freq=25, and the widened precompute clip so cached
// estimates stay comparable across rebuilds.
func BuildNecessityCache(eng *engine.Engine, cfg Config) {
	n := len(eng.Index.IDToToken)
	eng.Necessity = engine.NewNecessityCache(n)
	cfg.NSplits = 2
	cfg.ClipEps = precomputeClipEps

	for id, tok := range eng.Index.IDToToken {
		unit, item, ok := parseEquippedBase(tok)
		if !ok {
			continue
		}
		unitBase := eng.Index.Filter([]string{token.UnitTok(unit).String()}, nil)
		scoped, scopeMinStar := AutoScope(eng, unitBase, unit, []string{token.UnitTok(unit).String()}, cfg.AutoScopeShare, cfg.AutoScopeMinRows)
		ids := scoped.ToArray()

		T := Treatment(eng, unit, item, ids)
		treated, control := countGroups(T)
		if treated < cfg.MinPrecomputeGroup || control < cfg.MinPrecomputeGroup {
			continue
		}

		design := BuildDesign(eng, unit, item, ids, 25)
		y := Transform(eng.Arrays.Placement, ids, OutcomeTop4)
		res := Run(design.X, T, y, true, cfg)
		if !res.Ok {
			continue
		}
		eng.Necessity.Set(int32(id), toEntry(res.Value, scopeMinStar))
	}
}

// parseEquippedBase reports whether tok is a base (non-count-qualified)
// Equipped token and, if so, its unit/item.
func parseEquippedBase(tok string) (unit, item string, ok bool) {
	if !strings.HasPrefix(tok, "E:") {
		return "", "", false
	}
	parsed, good := token.Parse(tok)
	if !good || parsed.Kind != token.Equipped {
		return "", "", false
	}
	return parsed.Unit, parsed.Item, true
}

func toEntry(e Estimate, scopeMinStar uint8) engine.Entry {
	return engine.Entry{
		Tau: float32(e.Tau), CiLo: float32(e.CILow), CiHi: float32(e.CIHigh), Se: float32(e.SE),
		RawTau: float32(e.RawTau), FracTrimmed: float32(e.FracTrimmed),
		EP01: float32(e.EP01), EP99: float32(e.EP99),
		NTreated: int32(e.NTreated), NControl: int32(e.NControl), NUsed: int32(e.NUsed),
		ScopeMinStar: scopeMinStar, Set: true,
	}
}
