package cluster

import (
	"context"
	"math"
	"slices"
)

// Ward is agglomerative clustering with Ward's minimum-variance linkage. The
// dendrogram is built with the nearest-neighbour chain algorithm (valid
// because Ward linkage is reducible) in O(n²) time and O(n·d) memory, then cut
// so that exactly k clusters remain. It has no randomness.
type Ward struct{}

type wardMerge struct {
	a, b   int
	height float64
	order  int
}

func (Ward) Cluster(ctx context.Context, points [][]float64, k int) ([]int, error) {
	if err := validate(points, k); err != nil {
		return nil, err
	}

	merges, err := wardDendrogram(ctx, points)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(merges, func(x, y wardMerge) int {
		switch {
		case x.height < y.height:
			return -1
		case x.height > y.height:
			return 1
		default:
			return x.order - y.order
		}
	})

	n := len(points)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, m := range merges[:n-k] {
		ra, rb := find(m.a), find(m.b)
		if ra != rb {
			parent[max(ra, rb)] = min(ra, rb)
		}
	}

	ids := make(map[int]int, k)
	labels := make([]int, n)
	for i := range points {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, nil
}

// wardDendrogram returns the n-1 merges. Slot i always holds the cluster that
// contains point i, so merge endpoints double as point indices.
func wardDendrogram(ctx context.Context, points [][]float64) ([]wardMerge, error) {
	n := len(points)
	centroid := make([][]float64, n)
	size := make([]float64, n)
	active := make([]bool, n)
	for i, p := range points {
		centroid[i] = clonePoint(p)
		size[i] = 1
		active[i] = true
	}

	linkage := func(a, b int) float64 {
		return size[a] * size[b] / (size[a] + size[b]) * sqDist(centroid[a], centroid[b])
	}

	merges := make([]wardMerge, 0, n-1)
	chain := make([]int, 0, n)
	start := 0
	for step := 0; len(merges) < n-1; step++ {
		if step%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if len(chain) == 0 {
			for !active[start] {
				start++
			}
			chain = append(chain, start)
		}

		a := chain[len(chain)-1]
		prev := -1
		nearest, nearestDist := -1, math.Inf(1)
		if len(chain) >= 2 {
			prev = chain[len(chain)-2]
			nearest, nearestDist = prev, linkage(a, prev)
		}
		for j := range n {
			if !active[j] || j == a || j == prev {
				continue
			}
			if d := linkage(a, j); d < nearestDist {
				nearest, nearestDist = j, d
			}
		}

		if nearest != prev {
			chain = append(chain, nearest)
			continue
		}

		chain = chain[:len(chain)-2]
		merges = append(merges, wardMerge{
			a:      a,
			b:      nearest,
			height: math.Sqrt(2 * nearestDist),
			order:  len(merges),
		})

		keep, drop := min(a, nearest), max(a, nearest)
		total := size[a] + size[nearest]
		for x := range centroid[keep] {
			centroid[keep][x] = (centroid[a][x]*size[a] + centroid[nearest][x]*size[nearest]) / total
		}
		size[keep] = total
		active[drop] = false
	}
	return merges, nil
}
