package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultRuns    = 10
	defaultMaxIter = 300
	defaultTol     = 1e-4
)

// KMeans is Lloyd's algorithm with k-means++ seeding. Each of the Runs
// restarts draws from its own PCG stream derived from Seed; the run with the
// lowest inertia wins.
type KMeans struct {
	Seed    uint64
	Runs    int
	MaxIter int
	// Tol is relative to the mean per-dimension variance of the input.
	Tol float64
}

func NewKMeans(seed uint64) KMeans {
	return KMeans{
		Seed:    seed,
		Runs:    defaultRuns,
		MaxIter: defaultMaxIter,
		Tol:     defaultTol,
	}
}

func (km KMeans) Cluster(ctx context.Context, points [][]float64, k int) ([]int, error) {
	if err := validate(points, k); err != nil {
		return nil, err
	}

	runs := km.Runs
	if runs < 1 {
		runs = 1
	}
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = defaultMaxIter
	}
	tol := km.Tol * meanVariance(points)

	var best []int
	bestInertia := math.Inf(1)
	for run := range runs {
		rng := rand.New(rand.NewPCG(km.Seed, uint64(run)))
		labels, inertia, converged, err := lloyd(ctx, points, k, rng, maxIter, tol)
		if err != nil {
			return nil, err
		}
		if converged && inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, maxIter)
	}
	return best, nil
}

func lloyd(ctx context.Context, points [][]float64, k int, rng *rand.Rand, maxIter int, tol float64) ([]int, float64, bool, error) {
	dim := len(points[0])
	centers := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	next := make([][]float64, k)
	for c := range next {
		next[c] = make([]float64, dim)
	}
	counts := make([]int, k)

	for range maxIter {
		if err := ctx.Err(); err != nil {
			return nil, 0, false, err
		}

		assign(points, centers, labels)

		for c := range next {
			floats.Scale(0, next[c])
			counts[c] = 0
		}
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			counts[labels[i]]++
		}
		relocated := map[int]bool{}
		for c := range next {
			if counts[c] == 0 {
				far := farthestPoint(points, centers, labels, relocated)
				relocated[far] = true
				copy(next[c], points[far])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		var shift float64
		for c := range centers {
			shift += sqDist(centers[c], next[c])
			copy(centers[c], next[c])
		}
		if shift <= tol {
			inertia := assign(points, centers, labels)
			return labels, inertia, true, nil
		}
	}
	inertia := assign(points, centers, labels)
	return labels, inertia, false, nil
}

// assign labels every point with its nearest center and returns the inertia.
func assign(points, centers [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centers := make([][]float64, 0, k)
	centers = append(centers, clonePoint(points[rng.IntN(n)]))

	dist := make([]float64, n)
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		pick := 0
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range dist {
				r -= d
				if r < 0 {
					pick = i
					break
				}
				pick = i
			}
		} else {
			pick = rng.IntN(n)
		}
		center := clonePoint(points[pick])
		centers = append(centers, center)
		for i, p := range points {
			if d := sqDist(p, center); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

func farthestPoint(points, centers [][]float64, labels []int, taken map[int]bool) int {
	far, farDist := 0, -1.0
	for i, p := range points {
		if taken[i] {
			continue
		}
		if d := sqDist(p, centers[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

func meanVariance(points [][]float64) float64 {
	dim := len(points[0])
	col := make([]float64, len(points))
	var sum float64
	for j := range dim {
		for i, p := range points {
			col[i] = p[j]
		}
		_, std := stat.PopMeanStdDev(col, nil)
		sum += std * std
	}
	return sum / float64(dim)
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
