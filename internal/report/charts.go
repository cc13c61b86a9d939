package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	RecencyChart   = "rfm_dist_recency.png"
	FrequencyChart = "rfm_dist_frequency.png"
	MonetaryChart  = "rfm_dist_monetary.png"
	RevenueChart   = "revenue_by_segment.png"
)

var ChartFiles = []string{RecencyChart, FrequencyChart, MonetaryChart, RevenueChart}

var histogramTitles = map[string]string{
	FeatureRecency:   "Recency (Days Since Last Purchase)",
	FeatureFrequency: "Frequency (Number of Invoices)",
	FeatureMonetary:  "Monetary (Total Spending)",
}

var chartFeatures = map[string]string{
	RecencyChart:   FeatureRecency,
	FrequencyChart: FeatureFrequency,
	MonetaryChart:  FeatureMonetary,
}

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

// WriteCharts renders every file in ChartFiles into dir.
func WriteCharts(dir string, rep *Report) error {
	for _, name := range ChartFiles {
		if err := writeChart(filepath.Join(dir, name), rep, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func writeChart(path string, rep *Report, name string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := RenderChart(w, rep, name); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RenderChart writes the named chart as PNG.
func RenderChart(w io.Writer, rep *Report, name string) error {
	var (
		p   *plot.Plot
		err error
	)
	if name == RevenueChart {
		p, err = revenuePlot(rep)
	} else if feature, ok := chartFeatures[name]; ok {
		p, err = histogramPlot(rep, feature)
	} else {
		return fmt.Errorf("unknown chart %q", name)
	}
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func histogramPlot(rep *Report, feature string) (*plot.Plot, error) {
	dist, ok := rep.Distribution(feature)
	if !ok || len(dist.Bins) == 0 {
		return nil, fmt.Errorf("no %s distribution", feature)
	}
	rank := 0
	for i, f := range Features {
		if f == feature {
			rank = i
		}
	}

	bins := make([]plotter.HistogramBin, len(dist.Bins))
	for i, b := range dist.Bins {
		bins[i] = plotter.HistogramBin{Min: b.Lower, Max: b.Upper, Weight: float64(b.Count)}
	}
	h := &plotter.Histogram{
		Bins:      bins,
		Width:     dist.Bins[0].Upper - dist.Bins[0].Lower,
		FillColor: parseHex(ColorFor(rank)),
		LineStyle: plotter.DefaultLineStyle,
	}

	p := plot.New()
	p.Title.Text = histogramTitles[feature]
	p.X.Label.Text = featureLabel(feature)
	p.Y.Label.Text = "Count"
	p.Add(h)
	return p, nil
}

func revenuePlot(rep *Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Total Revenue by Segment"
	p.X.Label.Text = "Segment"
	p.Y.Label.Text = "Total Revenue"

	names := make([]string, len(rep.Revenue))
	points := make(plotter.XYs, len(rep.Revenue))
	labels := make([]string, len(rep.Revenue))
	for i, r := range rep.Revenue {
		bar, err := plotter.NewBarChart(plotter.Values{r.Revenue}, vg.Points(40))
		if err != nil {
			return nil, err
		}
		bar.XMin = float64(i)
		bar.Color = parseHex(r.Color)
		p.Add(bar)

		names[i] = r.Segment
		points[i] = plotter.XY{X: float64(i), Y: r.Revenue}
		labels[i] = FormatMoney(r.Revenue)
	}

	valueLabels, err := plotter.NewLabels(plotter.XYLabels{XYs: points, Labels: labels})
	if err != nil {
		return nil, err
	}
	p.Add(valueLabels)
	p.NominalX(names...)
	return p, nil
}

func featureLabel(feature string) string {
	switch feature {
	case FeatureRecency:
		return "Recency"
	case FeatureFrequency:
		return "Frequency"
	default:
		return "Monetary"
	}
}
