// Package retrieval ranks stored vectors by distance to a query. Candidates are plain
// slices; callers map Match.Index back to their own records.
package retrieval

import (
	"slices"

	"github.com/formbricks/precedent/pkg/vecmath"
)

// Match is one ranked candidate.
type Match struct {
	Index    int
	Distance float64
}

// NearestEuclidean returns the k candidates closest to target in score space, by
// non-decreasing distance. Candidates of a different dimension rank last.
func NearestEuclidean[T vecmath.Float](target []T, candidates [][]T, k int) []Match {
	return nearest(target, candidates, k, vecmath.EuclideanDistance[T])
}

// NearestCosine returns the k candidates closest to query by cosine distance.
func NearestCosine[T vecmath.Float](query []T, candidates [][]T, k int) []Match {
	return nearest(query, candidates, k, vecmath.CosineDistance[T])
}

// nearest ranks all candidates and keeps the first k. Equal distances keep input order.
// k larger than the candidate count returns everything; k <= 0 or no candidates returns
// an empty, non-nil slice.
func nearest[T vecmath.Float](query []T, candidates [][]T, k int, dist func(a, b []T) float64) []Match {
	if k <= 0 || len(candidates) == 0 {
		return []Match{}
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{Index: i, Distance: dist(query, c)}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})

	return matches[:min(k, len(matches))]
}
