// Package cluster partitions points in R^d into k groups.
//
// Callers treat a Clusterer as an opaque routine: the only contract is
// Cluster(points, k) -> one cluster id in [0, k) per point, deterministic for a
// fixed configuration. Cluster ids carry no meaning beyond grouping.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidK     = errors.New("k must be positive")
	ErrTooFewPoints = errors.New("fewer distinct points than clusters")
	ErrNonFinite    = errors.New("points contain NaN or Inf")
	ErrNotConverged = errors.New("clustering did not converge")
	ErrDimension    = errors.New("points have inconsistent dimensions")
)

type Clusterer interface {
	Cluster(ctx context.Context, points [][]float64, k int) ([]int, error)
}

const (
	MethodKMeans = "kmeans"
	MethodWard   = "ward"
)

// New returns the clusterer registered under method.
func New(method string, seed uint64) (Clusterer, error) {
	switch strings.ToLower(method) {
	case MethodKMeans, "":
		return NewKMeans(seed), nil
	case MethodWard:
		return Ward{}, nil
	default:
		return nil, fmt.Errorf("unknown clustering method %q", method)
	}
}

func validate(points [][]float64, k int) error {
	if k < 1 {
		return ErrInvalidK
	}
	if len(points) < k {
		return fmt.Errorf("%w: %d points, k=%d", ErrTooFewPoints, len(points), k)
	}
	dim := len(points[0])
	if dim == 0 {
		return ErrDimension
	}
	for _, p := range points {
		if len(p) != dim {
			return ErrDimension
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrNonFinite
			}
		}
	}
	if distinctAtLeast(points, k) {
		return nil
	}
	return fmt.Errorf("%w: k=%d", ErrTooFewPoints, k)
}

func distinctAtLeast(points [][]float64, k int) bool {
	seen := make(map[string]struct{}, k)
	var sb strings.Builder
	for _, p := range points {
		sb.Reset()
		for _, v := range p {
			fmt.Fprintf(&sb, "%x,", math.Float64bits(v))
		}
		seen[sb.String()] = struct{}{}
		if len(seen) >= k {
			return true
		}
	}
	return false
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
