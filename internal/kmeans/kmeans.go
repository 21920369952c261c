// Package kmeans partitions embedding vectors into clusters by cosine distance.
//
// The algorithm is fully deterministic for a given input order: centroids are seeded by
// equal-stride sampling and ties are broken by lowest cluster index, so results can be cached
// by content.
package kmeans

import (
	"math"

	"github.com/formbricks/precedent/pkg/vecmath"
)

// DefaultMaxIterations bounds the assign/update loop when the caller passes a non-positive limit.
const DefaultMaxIterations = 20

// Cluster is one non-empty group of input vectors.
type Cluster struct {
	// ID is the centroid slot the cluster was built from (0..k-1). IDs of empty slots are skipped.
	ID       int
	Centroid []float32
	// Members are indices into the input slice, in ascending order.
	Members []int
}

// Result is the outcome of a clustering run.
type Result struct {
	Clusters   []Cluster
	Iterations int
	Converged  bool
}

// Run partitions vectors into at most min(k, len(vectors)) non-empty clusters.
// An empty input or k < 1 yields an empty result.
func Run(vectors [][]float32, k, maxIterations int) Result {
	n := len(vectors)
	if n == 0 || k < 1 {
		return Result{}
	}

	if k > n {
		k = n
	}

	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}

	dim := len(vectors[0])
	centroids := strideCentroids(vectors, k)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	result := Result{}

	for iter := 0; iter < maxIterations; iter++ {
		result.Iterations = iter + 1

		// Assignment step: assign each point to nearest centroid
		changed := false
		for i, v := range vectors {
			nearest := nearestCentroid(v, centroids)
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed = true
			}
		}

		if !changed {
			result.Converged = true

			break
		}

		// Update step: recalculate centroids
		members := groupMembers(assignments, k)
		for c := range k {
			if len(members[c]) == 0 {
				centroids[c] = cloneVector(vectors[c%n])

				continue
			}

			centroids[c] = vecmath.Mean(vectors, members[c], dim)
		}
	}

	members := groupMembers(assignments, k)

	clusters := make([]Cluster, 0, k)
	for c := range k {
		if len(members[c]) == 0 {
			continue
		}

		clusters = append(clusters, Cluster{
			ID:       c,
			Centroid: centroids[c],
			Members:  members[c],
		})
	}

	result.Clusters = clusters

	return result
}

// Representative returns the member index whose vector is closest to the cluster centroid.
// Ties go to the lowest input index. Returns -1 for a cluster without members.
func Representative(vectors [][]float32, cluster Cluster) int {
	best := -1
	bestDist := math.MaxFloat64

	for _, idx := range cluster.Members {
		dist := vecmath.CosineDistance(vectors[idx], cluster.Centroid)
		if dist < bestDist || (dist == bestDist && idx < best) {
			best = idx
			bestDist = dist
		}
	}

	return best
}

// strideCentroids seeds centroid i with vectors[i*n/k].
func strideCentroids(vectors [][]float32, k int) [][]float32 {
	n := len(vectors)
	centroids := make([][]float32, k)

	for i := range k {
		centroids[i] = cloneVector(vectors[i*n/k])
	}

	return centroids
}

// nearestCentroid finds the index of the nearest centroid; ties resolve to the lowest index.
func nearestCentroid(v []float32, centroids [][]float32) int {
	minDist := math.MaxFloat64
	nearest := 0

	for i, centroid := range centroids {
		dist := vecmath.CosineDistance(v, centroid)
		if dist < minDist {
			minDist = dist
			nearest = i
		}
	}

	return nearest
}

func groupMembers(assignments []int, k int) [][]int {
	members := make([][]int, k)
	for i, c := range assignments {
		if c >= 0 {
			members[c] = append(members[c], i)
		}
	}

	return members
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	return out
}
