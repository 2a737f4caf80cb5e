package engine

import "math"

// NecessityCache holds the precomputed per-token ΔTop4 necessity
// estimates: twelve parallel arrays sized num_tokens, populated
// only at `E:U|I` token ids. float32 NaN marks "unset"; ScopeMinStar uses 0
// to mean "unset" (valid scopes are 1..6).
type NecessityCache struct {
	Tau          []float32
	CiLo         []float32
	CiHi         []float32
	Se           []float32
	RawTau       []float32
	FracTrimmed  []float32
	EP01         []float32
	EP99         []float32
	NTreated     []int32
	NControl     []int32
	NUsed        []int32
	ScopeMinStar []uint8
}

// NewNecessityCache allocates a cache sized for n tokens, with every float
// array filled with NaN (unset).
func NewNecessityCache(n int) *NecessityCache {
	nc := &NecessityCache{
		Tau:          make([]float32, n),
		CiLo:         make([]float32, n),
		CiHi:         make([]float32, n),
		Se:           make([]float32, n),
		RawTau:       make([]float32, n),
		FracTrimmed:  make([]float32, n),
		EP01:         make([]float32, n),
		EP99:         make([]float32, n),
		NTreated:     make([]int32, n),
		NControl:     make([]int32, n),
		NUsed:        make([]int32, n),
		ScopeMinStar: make([]uint8, n),
	}
	nan := float32(math.NaN())
	for i := 0; i < n; i++ {
		nc.Tau[i] = nan
		nc.CiLo[i] = nan
		nc.CiHi[i] = nan
		nc.Se[i] = nan
		nc.RawTau[i] = nan
		nc.FracTrimmed[i] = nan
		nc.EP01[i] = nan
		nc.EP99[i] = nan
	}
	return nc
}

// Entry is the deserialized view of one token's cached necessity estimate.
type Entry struct {
	Tau          float32
	CiLo         float32
	CiHi         float32
	Se           float32
	RawTau       float32
	FracTrimmed  float32
	EP01         float32
	EP99         float32
	NTreated     int32
	NControl     int32
	NUsed        int32
	ScopeMinStar uint8
	Set          bool
}

// Get returns the cached estimate for token id, with Set=false if unset
// (Tau is NaN).
func (nc *NecessityCache) Get(id int32) Entry {
	if int(id) >= len(nc.Tau) {
		return Entry{}
	}
	tau := nc.Tau[id]
	if math.IsNaN(float64(tau)) {
		return Entry{}
	}
	return Entry{
		Tau: tau, CiLo: nc.CiLo[id], CiHi: nc.CiHi[id], Se: nc.Se[id],
		RawTau: nc.RawTau[id], FracTrimmed: nc.FracTrimmed[id],
		EP01: nc.EP01[id], EP99: nc.EP99[id],
		NTreated: nc.NTreated[id], NControl: nc.NControl[id], NUsed: nc.NUsed[id],
		ScopeMinStar: nc.ScopeMinStar[id], Set: true,
	}
}

// Set stores an estimate for token id.
func (nc *NecessityCache) Set(id int32, e Entry) {
	nc.Tau[id] = e.Tau
	nc.CiLo[id] = e.CiLo
	nc.CiHi[id] = e.CiHi
	nc.Se[id] = e.Se
	nc.RawTau[id] = e.RawTau
	nc.FracTrimmed[id] = e.FracTrimmed
	nc.EP01[id] = e.EP01
	nc.EP99[id] = e.EP99
	nc.NTreated[id] = e.NTreated
	nc.NControl[id] = e.NControl
	nc.NUsed[id] = e.NUsed
	nc.ScopeMinStar[id] = e.ScopeMinStar
}
