// Package causal implements the AIPW estimator and necessity cache:
// doubly-robust ΔTop4/ΔWin estimates for "item I equipped on unit U" within
// a context, with K-fold cross-fitting, propensity clipping and trimming,
// overlap diagnostics, an auto-scope heuristic, a build-time precompute
// job, and a cluster-adjusted fast approximation for arbitrary contexts.
//
// Propensity and outcome models are L2-regularized linear/logistic
// learners on max-abs-scaled features; probabilities are clipped and rows
// outside the trim bounds are dropped before the estimate.
package causal

import "github.com/pable/smeecher/internal/engine"

// Outcome names one of the four placement transforms.
type Outcome string

const (
	OutcomeTop4      Outcome = "top4"
	OutcomeWin       Outcome = "win"
	OutcomePlacement Outcome = "placement"
	OutcomeRankScore Outcome = "rank_score"
)

// IsBinary reports whether the outcome is a 0/1 indicator (as opposed to a
// continuous score), which gates clipping and risk-ratio/E-value reporting.
func (o Outcome) IsBinary() bool {
	return o == OutcomeTop4 || o == OutcomeWin
}

// ParseOutcome maps a request string onto one of the four outcomes,
// defaulting to top4 (the only outcome the necessity cache ever serves).
func ParseOutcome(s string) Outcome {
	switch s {
	case "win", "first", "1st":
		return OutcomeWin
	case "placement", "rank":
		return OutcomePlacement
	case "rank_score", "rankscore", "score":
		return OutcomeRankScore
	default:
		return OutcomeTop4
	}
}

// Transform converts placements to the outcome variable y.
func Transform(placements []int8, ids []uint32, o Outcome) []float64 {
	y := make([]float64, len(ids))
	for i, id := range ids {
		p := float64(placements[id])
		switch o {
		case OutcomeWin:
			y[i] = boolF(p == 1)
		case OutcomePlacement:
			y[i] = p
		case OutcomeRankScore:
			y[i] = 8 - p
		default:
			y[i] = boolF(p <= 4)
		}
	}
	return y
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Treatment returns the 0/1 treatment vector: membership of the E:U|I
// bitmap within the supplied row set ids.
func Treatment(eng *engine.Engine, unit, item string, ids []uint32) []float64 {
	bm := eng.Index.BitmapFor("E:" + unit + "|" + item)
	t := make([]float64, len(ids))
	if bm == nil {
		return t
	}
	for i, id := range ids {
		if bm.Contains(id) {
			t[i] = 1
		}
	}
	return t
}
