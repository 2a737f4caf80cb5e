package engine

// Arrays holds the dense, pm-id-indexed vectors: the placement outcome
// plus board-strength proxies used only as numeric covariates by the
// causal estimator. All slices share length = max pm-id + 1; index 0 is
// reserved (placement 0 marks "not a real pm-id").
type Arrays struct {
	Placement          []int8
	ItemCount           []int16
	ComponentCount      []int16
	CompletedItemCount  []int16
	UnitCount           []int16
	TwoStarCount        []int16
	ThreeStarCount      []int16
	UnitGoldValue       []int32
}

// grow extends every slice in a to length n (filling with zero values) if
// it is currently shorter.
func (a *Arrays) grow(n int) {
	if len(a.Placement) >= n {
		return
	}
	grow8 := func(s []int8) []int8 {
		out := make([]int8, n)
		copy(out, s)
		return out
	}
	grow16 := func(s []int16) []int16 {
		out := make([]int16, n)
		copy(out, s)
		return out
	}
	grow32 := func(s []int32) []int32 {
		out := make([]int32, n)
		copy(out, s)
		return out
	}
	a.Placement = grow8(a.Placement)
	a.ItemCount = grow16(a.ItemCount)
	a.ComponentCount = grow16(a.ComponentCount)
	a.CompletedItemCount = grow16(a.CompletedItemCount)
	a.UnitCount = grow16(a.UnitCount)
	a.TwoStarCount = grow16(a.TwoStarCount)
	a.ThreeStarCount = grow16(a.ThreeStarCount)
	a.UnitGoldValue = grow32(a.UnitGoldValue)
}

// Len returns max pm-id + 1.
func (a *Arrays) Len() int { return len(a.Placement) }
