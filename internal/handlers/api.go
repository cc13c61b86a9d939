package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/services"
)

const (
	defaultCustomerLimit = 50
	maxCustomerLimit     = 1000
	cacheMaxAge          = "public, max-age=300"
)

type APIHandlers struct {
	dashboard *services.Dashboard
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

func NewAPIHandlers(dashboard *services.Dashboard, outputDir string, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		outputDir: outputDir,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *APIHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.dashboard.Segments(), map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleRevenue(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.dashboard.Revenue(), map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.dashboard.Distribution(r.PathValue("feature"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, dist, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

// HandleCustomers lists customers by descending monetary value, optionally
// filtered by ?segment= and capped by ?limit=.
func (h *APIHandlers) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	limit := defaultCustomerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCustomerLimit {
			h.fail(w, r, errors.BadRequest(fmt.Sprintf("limit must be an integer between 1 and %d", maxCustomerLimit)))
			return
		}
		limit = n
	}

	customers, err := h.dashboard.Customers(r.URL.Query().Get("segment"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, customers)
}

func (h *APIHandlers) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.dashboard.Recommendations(), map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleReportPDF(w http.ResponseWriter, r *http.Request) {
	if !h.dashboard.Ready() {
		h.fail(w, r, errors.ServiceUnavailable("no segmentation has been loaded"))
		return
	}

	doc, err := report.RenderPDF(h.dashboard.Report(), h.now())
	if err != nil {
		h.fail(w, r, errors.ExternalLibraryWrap(err, "render report"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", report.PDFFile))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	if _, err := w.Write(doc); err != nil {
		observability.Logger(r.Context(), h.logger).Warn("write pdf", "error", err)
	}
}

// HandleChart serves a chart PNG from the output directory, rendering it from
// the loaded report when the pipeline has not written one.
func (h *APIHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if !slices.Contains(report.ChartFiles, name) {
		h.fail(w, r, errors.NotFound(fmt.Sprintf("unknown chart %q", name)))
		return
	}

	w.Header().Set("Cache-Control", cacheMaxAge)
	if h.outputDir != "" {
		path := filepath.Join(h.outputDir, name)
		if _, err := os.Stat(path); err == nil {
			http.ServeFile(w, r, path)
			return
		}
	}

	if !h.dashboard.Ready() {
		h.fail(w, r, errors.ServiceUnavailable("no segmentation has been loaded"))
		return
	}
	var buf bytes.Buffer
	if err := report.RenderChart(&buf, h.dashboard.Report(), name); err != nil {
		h.fail(w, r, errors.ExternalLibraryWrap(err, "render chart"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.dashboard.Ready() {
		status = "degraded"
	}

	healthData := map[string]string{
		"status":    status,
		"timestamp": h.now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.dashboard.Stats())
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}
