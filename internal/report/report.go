// Package report summarizes segmented customers into the tables, histograms
// and advice shown on the dashboard and written as chart and PDF artifacts.
package report

import (
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

const DefaultBins = 20

const (
	FeatureRecency   = "recency"
	FeatureFrequency = "frequency"
	FeatureMonetary  = "monetary"
)

var Features = []string{FeatureRecency, FeatureFrequency, FeatureMonetary}

// Palette colors segments by rank of mean monetary value and repeats past
// its length.
var Palette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4"}

func ColorFor(rank int) string {
	return Palette[rank%len(Palette)]
}

type Report struct {
	Segments        []models.SegmentSummary `json:"segments"`
	Revenue         []models.SegmentRevenue `json:"revenue"`
	Distributions   []models.Distribution   `json:"distributions"`
	Recommendations []models.Recommendation `json:"recommendations"`
	TotalCustomers  int                     `json:"total_customers"`
	TotalRevenue    float64                 `json:"total_revenue"`
}

// Distribution returns the histogram for feature, matched case-insensitively.
func (r *Report) Distribution(feature string) (models.Distribution, bool) {
	for _, d := range r.Distributions {
		if strings.EqualFold(d.Feature, feature) {
			return d, true
		}
	}
	return models.Distribution{}, false
}

func (r *Report) SegmentColor(segment string) string {
	for _, s := range r.Segments {
		if s.Segment == segment {
			return s.Color
		}
	}
	return ""
}

func Build(records []models.SegmentedRecord, bins int) (*Report, error) {
	if len(records) == 0 {
		return nil, apperrors.InvalidInput("no segmented records to report on")
	}
	if bins < 1 {
		return nil, apperrors.InvalidInputf("histogram bins must be positive, got %d", bins)
	}

	type group struct {
		name                        string
		recency, frequency, revenue float64
		monetary                    decimal.Decimal
		count                       int
	}
	groups := make(map[string]*group)
	total := decimal.Zero
	cols := [3][]float64{}
	for _, r := range records {
		g, ok := groups[r.Segment]
		if !ok {
			g = &group{name: r.Segment, monetary: decimal.Zero}
			groups[r.Segment] = g
		}
		g.recency += float64(r.Recency)
		g.frequency += float64(r.Frequency)
		g.monetary = g.monetary.Add(r.Monetary)
		g.count++
		total = total.Add(r.Monetary)

		cols[0] = append(cols[0], float64(r.Recency))
		cols[1] = append(cols[1], float64(r.Frequency))
		cols[2] = append(cols[2], r.Monetary.InexactFloat64())
	}

	summaries := make([]models.SegmentSummary, 0, len(groups))
	for _, g := range groups {
		n := float64(g.count)
		revenue := g.monetary.InexactFloat64()
		summaries = append(summaries, models.SegmentSummary{
			Segment:   g.name,
			Recency:   g.recency / n,
			Frequency: g.frequency / n,
			Monetary:  revenue / n,
			Count:     g.count,
			Revenue:   revenue,
		})
	}
	slices.SortFunc(summaries, func(a, b models.SegmentSummary) int {
		return descending(a.Monetary, b.Monetary, a.Segment, b.Segment)
	})
	for i := range summaries {
		summaries[i].Color = ColorFor(i)
	}

	revenue := make([]models.SegmentRevenue, len(summaries))
	for i, s := range summaries {
		revenue[i] = models.SegmentRevenue{Segment: s.Segment, Color: s.Color, Revenue: s.Revenue}
	}
	slices.SortFunc(revenue, func(a, b models.SegmentRevenue) int {
		return descending(a.Revenue, b.Revenue, a.Segment, b.Segment)
	})

	dists := make([]models.Distribution, len(Features))
	for i, feature := range Features {
		dists[i] = models.Distribution{Feature: feature, Bins: Histogram(cols[i], bins)}
	}

	return &Report{
		Segments:        summaries,
		Revenue:         revenue,
		Distributions:   dists,
		Recommendations: Recommendations(summaries),
		TotalCustomers:  len(records),
		TotalRevenue:    total.InexactFloat64(),
	}, nil
}

func descending(a, b float64, nameA, nameB string) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return strings.Compare(nameA, nameB)
	}
}

// Histogram splits [min, max] of values into n equal-width bins. Every bin is
// half-open except the last, which also holds max. A constant input is
// centred in a unit-wide range.
func Histogram(values []float64, n int) []models.HistogramBin {
	if len(values) == 0 || n < 1 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := make([]float64, n+1)
	floats.Span(edges, lo, hi)

	dividers := slices.Clone(edges)
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	bins := make([]models.HistogramBin, n)
	for i := range bins {
		bins[i] = models.HistogramBin{Lower: edges[i], Upper: edges[i+1], Count: int(counts[i])}
	}
	return bins
}
