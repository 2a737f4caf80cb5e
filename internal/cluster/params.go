// Package cluster implements the archetype clusterer: feature selection
// over the token vocabulary, a sparse 0/1 feature matrix
// (github.com/james-bowman/sparse CSR), a from-scratch MiniBatch k-means
// (gonum/mat centroids), and the per-cluster summary plus an LRU/TTL
// result cache.
package cluster

// Params is the clustering parameter set. Zero-value Params is not
// meaningful; call DefaultParams to get a pinned default set.
type Params struct {
	NClusters         int
	UseUnits          bool
	UseTraits         bool
	UseItems          bool
	UseEquipped       bool
	IncludeStarUnits  bool
	IncludeTierTraits bool
	MinTokenFreq      int
	MinClusterSize    int
	TopKTokens        int
	RandomState       int64
	BatchSize         int
	NInit             int
	ReassignmentRatio float64
}

// DefaultParams returns the stock parameter set.
func DefaultParams() Params {
	return Params{
		NClusters:         15,
		UseUnits:          true,
		UseTraits:         true,
		UseItems:          false,
		UseEquipped:       false,
		IncludeStarUnits:  false,
		IncludeTierTraits: false,
		MinTokenFreq:      100,
		MinClusterSize:    50,
		TopKTokens:        10,
		RandomState:       42,
		BatchSize:         2048,
		NInit:             3,
		ReassignmentRatio: 0.01,
	}
}
