package cluster

import (
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/pable/smeecher/internal/xrand"
)

// KMeansResult is the output of MiniBatchKMeans: a label per row and the
// final centroid matrix (k x m).
type KMeansResult struct {
	Labels    []int
	Centroids *mat.Dense
	Inertia   float64
}

// MiniBatchKMeans clusters the 0/1 feature matrix with fixed
// batch_size/n_init and Euclidean distance, k = NClusters. n_init restarts
// are run and the one with lowest final inertia over all rows wins.
// p.ReassignmentRatio is not read: centroids that attract few rows are
// never re-seeded.
func MiniBatchKMeans(X *sparse.CSR, p Params) KMeansResult {
	n, m := X.Dims()
	k := p.NClusters
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}

	rng := xrand.New(p.RandomState)
	var best KMeansResult
	best.Inertia = math.Inf(1)

	for init := 0; init < maxInt(p.NInit, 1); init++ {
		centroids := initCentroids(X, m, k, rng)
		runMiniBatch(X, centroids, p, rng)
		labels, inertia := assignAll(X, centroids)
		if inertia < best.Inertia {
			best = KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia}
		}
	}
	return best
}

// initCentroids seeds k centroids from k distinct random rows of X.
// Uniform sampling without replacement; k-means++-style seeding buys
// little on binary features at this scale.
func initCentroids(X *sparse.CSR, m, k int, rng *xrand.SplitMix64) *mat.Dense {
	n, _ := X.Dims()
	centroids := mat.NewDense(k, m, nil)
	chosen := map[int]bool{}
	for c := 0; c < k; c++ {
		var row int
		for {
			row = rng.Intn(n)
			if !chosen[row] || len(chosen) >= n {
				break
			}
		}
		chosen[row] = true
		copyRowInto(X, row, centroids.RawRowView(c))
	}
	return centroids
}

func copyRowInto(X *sparse.CSR, row int, dst []float64) {
	v := X.RowView(row).(*sparse.Vector)
	n := v.Len()
	for i := 0; i < n; i++ {
		dst[i] = v.AtVec(i)
	}
}

// runMiniBatch performs the online centroid updates: repeatedly sample a
// batch of batch_size rows (with replacement), assign each to its nearest
// centroid, and nudge that centroid toward the row with a shrinking
// learning rate 1/count (the textbook MiniBatchKMeans update).
func runMiniBatch(X *sparse.CSR, centroids *mat.Dense, p Params, rng *xrand.SplitMix64) {
	n, m := X.Dims()
	k, _ := centroids.Dims()
	counts := make([]int, k)
	iters := miniBatchIterations(n, p.BatchSize)

	centroidSq := make([]float64, k)
	refreshCentroidNorms(centroids, centroidSq)

	for it := 0; it < iters; it++ {
		batch := sampleBatch(n, p.BatchSize, rng)
		for _, row := range batch {
			c := nearestCentroid(X, row, centroids, centroidSq)
			counts[c]++
			eta := 1.0 / float64(counts[c])
			applyUpdate(X, row, centroids.RawRowView(c), eta, m)
		}
		refreshCentroidNorms(centroids, centroidSq)
	}
}

func miniBatchIterations(n, batchSize int) int {
	if batchSize <= 0 {
		batchSize = 1
	}
	iters := (n + batchSize - 1) / batchSize
	if iters < 1 {
		iters = 1
	}
	if iters > 50 {
		iters = 50
	}
	return iters
}

func sampleBatch(n, batchSize int, rng *xrand.SplitMix64) []int {
	if batchSize > n {
		batchSize = n
	}
	out := make([]int, batchSize)
	for i := range out {
		out[i] = rng.Intn(n)
	}
	return out
}

func refreshCentroidNorms(centroids *mat.Dense, centroidSq []float64) {
	k, _ := centroids.Dims()
	for c := 0; c < k; c++ {
		row := centroids.RawRowView(c)
		var sq float64
		for _, v := range row {
			sq += v * v
		}
		centroidSq[c] = sq
	}
}

func nearestCentroid(X *sparse.CSR, row int, centroids *mat.Dense, centroidSq []float64) int {
	v := X.RowView(row).(*sparse.Vector)
	k, _ := centroids.Dims()
	best, bestDist := 0, math.Inf(1)
	rowSq := sparse.Dot(v, v)
	for c := 0; c < k; c++ {
		cv := centroids.RawRowView(c)
		dot := dotSparseDense(v, cv)
		dist := rowSq - 2*dot + centroidSq[c]
		if dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	return best
}

func dotSparseDense(v *sparse.Vector, dense []float64) float64 {
	var sum float64
	n := v.Len()
	for i := 0; i < n; i++ {
		if val := v.AtVec(i); val != 0 {
			sum += val * dense[i]
		}
	}
	return sum
}

// applyUpdate nudges centroid toward the (binary, mostly-zero) row with
// learning rate eta, per-column: centroid[i] += eta * (x[i] - centroid[i]).
func applyUpdate(X *sparse.CSR, row int, centroid []float64, eta float64, m int) {
	v := X.RowView(row).(*sparse.Vector)
	for i := 0; i < m; i++ {
		centroid[i] += eta * (v.AtVec(i) - centroid[i])
	}
}

func assignAll(X *sparse.CSR, centroids *mat.Dense) ([]int, float64) {
	n, _ := X.Dims()
	k, _ := centroids.Dims()
	centroidSq := make([]float64, k)
	refreshCentroidNorms(centroids, centroidSq)
	labels := make([]int, n)
	var inertia float64
	for row := 0; row < n; row++ {
		c := nearestCentroid(X, row, centroids, centroidSq)
		labels[row] = c
		v := X.RowView(row).(*sparse.Vector)
		cv := centroids.RawRowView(c)
		dot := dotSparseDense(v, cv)
		dist := sparse.Dot(v, v) - 2*dot + centroidSq[c]
		inertia += dist
	}
	return labels, inertia
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
