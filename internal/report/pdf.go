package report

import (
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const PDFFile = "segment_report.pdf"

var (
	colorTitle = &props.Color{Red: 40, Green: 40, Blue: 40}
	colorGray  = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// RenderPDF lays out the segment summary, revenue split and recommendations
// on A4 pages.
func RenderPDF(rep *Report, generated time.Time) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(12).WithBottomMargin(12).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Customer Segmentation Report", true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(titleRow(rep, generated))
	m.AddRows(line.NewRow(2, props.Line{Color: colorTitle, Thickness: 0.4}))

	m.AddRows(sectionRow("Segment Sizes and Attributes"))
	m.AddRows(summaryHeaderRow())
	for _, s := range rep.Segments {
		m.AddRows(summaryRow(s.Segment, s.Color, []string{
			fmt.Sprintf("%.1f", s.Recency),
			fmt.Sprintf("%.1f", s.Frequency),
			FormatMoney(s.Monetary),
			FormatCount(s.Count),
		}))
	}

	m.AddRows(line.NewRow(4))
	m.AddRows(sectionRow("Revenue by Segment"))
	for _, r := range rep.Revenue {
		share := 0.0
		if rep.TotalRevenue != 0 {
			share = 100 * r.Revenue / rep.TotalRevenue
		}
		m.AddRows(revenueRow(r.Segment, r.Color, FormatMoney(r.Revenue), fmt.Sprintf("%.1f%%", share)))
	}

	m.AddRows(line.NewRow(4))
	m.AddRows(sectionRow("Marketing Recommendations"))
	for _, rec := range rep.Recommendations {
		m.AddRows(row.New(9).Add(
			col.New(3).Add(text.New(rec.Segment, props.Text{
				Style: fontstyle.Bold, Size: 9, Top: 1, Color: hexColor(rec.Color),
			})),
			col.New(9).Add(text.New(rec.Advice, props.Text{Size: 9, Top: 1})),
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generate document: %w", err)
	}
	return doc.GetBytes(), nil
}

func titleRow(rep *Report, generated time.Time) core.Row {
	return row.New(18).Add(
		col.New(8).Add(
			text.New("Customer Segmentation Report", props.Text{
				Style: fontstyle.Bold, Size: 14, Color: colorTitle, Top: 1,
			}),
			text.New("Generated "+generated.UTC().Format("2006-01-02 15:04 MST"), props.Text{
				Size: 8, Top: 10, Color: colorGray,
			}),
		),
		col.New(4).Add(
			text.New(FormatCount(rep.TotalCustomers)+" customers", props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Top: 1,
			}),
			text.New("Revenue "+FormatMoney(rep.TotalRevenue), props.Text{
				Size: 9, Align: align.Right, Top: 8,
			}),
		),
	)
}

func sectionRow(title string) core.Row {
	return row.New(9).Add(col.New(12).Add(text.New(title, props.Text{
		Style: fontstyle.Bold, Size: 11, Top: 2, Color: colorTitle,
	})))
}

func summaryHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Top: 1, Color: colorGray,
		}))
	}
	return row.New(6).Add(
		h("Segment", 4, align.Left),
		h("Recency (days)", 2, align.Right),
		h("Frequency", 2, align.Right),
		h("Monetary", 2, align.Right),
		h("Count", 2, align.Right),
	)
}

func summaryRow(segment, color string, values []string) core.Row {
	cols := []core.Col{col.New(4).Add(text.New(segment, props.Text{
		Style: fontstyle.Bold, Size: 9, Top: 1, Color: hexColor(color),
	}))}
	for _, v := range values {
		cols = append(cols, col.New(2).Add(text.New(v, props.Text{Size: 9, Align: align.Right, Top: 1})))
	}
	return row.New(7).Add(cols...)
}

func revenueRow(segment, color, revenue, share string) core.Row {
	return row.New(7).Add(
		col.New(4).Add(text.New(segment, props.Text{
			Style: fontstyle.Bold, Size: 9, Top: 1, Color: hexColor(color),
		})),
		col.New(4).Add(text.New(revenue, props.Text{Size: 9, Align: align.Right, Top: 1})),
		col.New(4).Add(text.New(share, props.Text{Size: 9, Align: align.Right, Top: 1, Color: colorGray})),
	)
}

func hexColor(s string) *props.Color {
	c := parseHex(s)
	return &props.Color{Red: int(c.R), Green: int(c.G), Blue: int(c.B)}
}
