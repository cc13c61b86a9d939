package rfm

import (
	"context"
	"slices"

	"gonum.org/v1/gonum/stat"

	"rfm-dashboard/internal/cluster"
	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// SegmentAssigner clusters standardized RFM vectors and names the clusters by
// their rank of mean monetary value.
type SegmentAssigner struct {
	clusterer cluster.Clusterer
}

func NewSegmentAssigner(c cluster.Clusterer) *SegmentAssigner {
	return &SegmentAssigner{clusterer: c}
}

// Assign returns one SegmentedRecord per input record, in input order.
// labelRank[0] names the cluster with the highest mean monetary value.
func (a *SegmentAssigner) Assign(ctx context.Context, records []models.RFMRecord, k int, labelRank []string) ([]models.SegmentedRecord, error) {
	if len(records) == 0 {
		return nil, apperrors.InvalidInput("no RFM records to segment")
	}
	if k < 1 {
		return nil, apperrors.InvalidInputf("segment count must be positive, got %d", k)
	}
	if len(labelRank) != k {
		return nil, apperrors.InvalidInputf("got %d segment labels for %d clusters", len(labelRank), k)
	}
	for i, label := range labelRank {
		if slices.Contains(labelRank[:i], label) {
			return nil, apperrors.InvalidInputf("segment label %q is used more than once", label)
		}
	}
	if len(records) < k {
		return nil, apperrors.InvalidInputf("cannot form %d segments from %d customers", k, len(records))
	}

	points := Standardize(records)
	clusterIDs, err := a.clusterer.Cluster(ctx, points, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, apperrors.ExternalLibraryWrap(err, "clustering failed")
	}
	if len(clusterIDs) != len(records) {
		return nil, apperrors.ExternalLibrary("clustering returned a label count that does not match the input")
	}

	names, err := rankClusters(records, clusterIDs, labelRank)
	if err != nil {
		return nil, err
	}

	out := make([]models.SegmentedRecord, len(records))
	for i, r := range records {
		out[i] = models.SegmentedRecord{RFMRecord: r, Segment: names[clusterIDs[i]]}
	}
	return out, nil
}

// rankClusters maps cluster id to label: clusters sorted by mean monetary
// value, descending, ties broken by cluster id.
func rankClusters(records []models.RFMRecord, clusterIDs []int, labelRank []string) (map[int]string, error) {
	type clusterMean struct {
		id    int
		sum   float64
		count int
	}
	byID := make(map[int]*clusterMean)
	for i, id := range clusterIDs {
		c, ok := byID[id]
		if !ok {
			c = &clusterMean{id: id}
			byID[id] = c
		}
		c.sum += records[i].Monetary.InexactFloat64()
		c.count++
	}
	if len(byID) > len(labelRank) {
		return nil, apperrors.ExternalLibrary("clustering returned more clusters than requested")
	}

	ranked := make([]*clusterMean, 0, len(byID))
	for _, c := range byID {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(x, y *clusterMean) int {
		mx, my := x.sum/float64(x.count), y.sum/float64(y.count)
		switch {
		case mx > my:
			return -1
		case mx < my:
			return 1
		default:
			return x.id - y.id
		}
	})

	names := make(map[int]string, len(ranked))
	for i, c := range ranked {
		names[c.id] = labelRank[i]
	}
	return names, nil
}

// Standardize scales recency, frequency and monetary to zero mean and unit
// population variance. A constant feature maps to all zeros.
func Standardize(records []models.RFMRecord) [][]float64 {
	n := len(records)
	cols := [3][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	for i, r := range records {
		cols[0][i] = float64(r.Recency)
		cols[1][i] = float64(r.Frequency)
		cols[2][i] = r.Monetary.InexactFloat64()
	}

	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, 3)
	}
	for j, col := range cols {
		mean, std := stat.PopMeanStdDev(col, nil)
		for i, v := range col {
			if std == 0 {
				continue
			}
			points[i][j] = (v - mean) / std
		}
	}
	return points
}
