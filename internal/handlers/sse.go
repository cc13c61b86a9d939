package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/services"
)

var segmentTableTemplate = template.Must(template.New("segmentTable").Funcs(template.FuncMap{
	"money": report.FormatMoney,
	"count": report.FormatCount,
}).Parse(`
<div id="segments-content">
<table class="modern-table">
<thead><tr><th>Segment</th><th>Customers</th><th>Avg Recency (days)</th><th>Avg Frequency</th><th>Avg Monetary</th><th>Revenue</th></tr></thead>
<tbody>
{{range .}}<tr>
<td><span class="segment-badge" style="background-color: {{.Color}}">{{.Segment}}</span></td>
<td>{{count .Count}}</td>
<td>{{printf "%.1f" .Recency}}</td>
<td>{{printf "%.1f" .Frequency}}</td>
<td>{{money .Monetary}}</td>
<td><strong>{{money .Revenue}}</strong></td>
</tr>{{else}}<tr><td colspan="6">No segmentation loaded</td></tr>{{end}}
</tbody>
</table>
</div>`))

type SSEHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

func (h *SSEHandlers) renderSegmentTable(segments []models.SegmentSummary) (string, error) {
	var buf strings.Builder
	err := segmentTableTemplate.Execute(&buf, segments)
	return buf.String(), err
}

func (h *SSEHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.renderSegmentTable(h.dashboard.Segments())
	if err != nil {
		h.logger.Error("render segment table", "error", err)
		return
	}

	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleRevenue(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	jsonData, err := json.Marshal(map[string]any{
		"revenueData": h.dashboard.Revenue(),
	})
	if err != nil {
		h.logger.Error("marshal revenue data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	sse.PatchElements(`<div id="revenue-content">Revenue chart data loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleDistributions(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	jsonData, err := json.Marshal(map[string]any{
		"distributionData": h.dashboard.Distributions(),
	})
	if err != nil {
		h.logger.Error("marshal distribution data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	sse.PatchElements(`<div id="distributions-content">Distribution chart data loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleRefreshAll re-reads the RFM table from disk and pushes every panel.
// A failed reload keeps serving the previous segmentation.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.Reload(r.Context()); err != nil {
		h.logger.Warn("reload RFM table", "error", err)
	}

	sse := datastar.NewSSE(w, r)

	html, err := h.renderSegmentTable(h.dashboard.Segments())
	if err != nil {
		h.logger.Error("render segment table", "error", err)
		return
	}
	sse.PatchElements(html)

	allSignals, err := json.Marshal(map[string]any{
		"revenueData":      h.dashboard.Revenue(),
		"distributionData": h.dashboard.Distributions(),
		"recommendations":  h.dashboard.Recommendations(),
	})
	if err != nil {
		h.logger.Error("marshal all signals data", "error", err)
		return
	}
	sse.PatchSignals(allSignals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
