package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/services"
)

func createTestDashboard(t testing.TB) *services.Dashboard {
	t.Helper()
	d := services.NewDashboard(slog.Default(), "", 0)
	rec := func(id string, r, f int, m, segment string) models.SegmentedRecord {
		return models.SegmentedRecord{
			RFMRecord: models.RFMRecord{CustomerID: id, Recency: r, Frequency: f, Monetary: decimal.RequireFromString(m)},
			Segment:   segment,
		}
	}
	err := d.SetData([]models.SegmentedRecord{
		rec("12347", 1, 7, "4310.00", "Loyal Customers"),
		rec("12346", 325, 1, "77183.60", "Loyal Customers"),
		rec("12348", 74, 4, "1797.24", "At-Risk Customers"),
		rec("12350", 309, 1, "334.40", "Occasional Buyers"),
		rec("12353", 203, 1, "89.00", "New Customers"),
	})
	if err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	return d
}

func newTestAPIHandlers(t testing.TB) *APIHandlers {
	return NewAPIHandlers(createTestDashboard(t), "", slog.Default())
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return response
}

func errorCode(t *testing.T, response map[string]any) string {
	t.Helper()
	errObj, ok := response["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", response)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestNewAPIHandlers(t *testing.T) {
	dashboard := createTestDashboard(t)
	handlers := NewAPIHandlers(dashboard, "output", slog.Default())

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}
	if handlers.dashboard != dashboard {
		t.Error("NewAPIHandlers() should set dashboard field")
	}
	if handlers.outputDir != "output" {
		t.Error("NewAPIHandlers() should set outputDir field")
	}
}

func TestAPIHandlers_HandleSegments(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/segments", nil)
	w := httptest.NewRecorder()

	handlers.HandleSegments(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != cacheMaxAge {
		t.Errorf("expected cache-control %q, got %q", cacheMaxAge, cc)
	}

	response := decodeEnvelope(t, w)
	if success, ok := response["success"].(bool); !ok || !success {
		t.Error("expected success=true in response")
	}
	data, ok := response["data"].([]any)
	if !ok || len(data) != 4 {
		t.Fatalf("expected 4 segments, got %v", response["data"])
	}
	first := data[0].(map[string]any)
	if first["segment"] != "Loyal Customers" || first["color"] != "#FF6B6B" {
		t.Errorf("expected Loyal Customers in #FF6B6B first, got %v", first)
	}
	if first["count"] != float64(2) {
		t.Errorf("expected count 2, got %v", first["count"])
	}
}

func TestAPIHandlers_HandleRevenue(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/revenue", nil)
	w := httptest.NewRecorder()

	handlers.HandleRevenue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	response := decodeEnvelope(t, w)
	data, ok := response["data"].([]any)
	if !ok || len(data) != 4 {
		t.Fatalf("expected 4 revenue rows, got %v", response["data"])
	}
	prev := data[0].(map[string]any)["revenue"].(float64)
	for _, item := range data[1:] {
		revenue := item.(map[string]any)["revenue"].(float64)
		if revenue > prev {
			t.Errorf("revenue should be descending, got %v after %v", revenue, prev)
		}
		prev = revenue
	}
}

func TestAPIHandlers_HandleDistribution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/distributions/{feature}", newTestAPIHandlers(t).HandleDistribution)

	tests := []struct {
		name       string
		feature    string
		wantStatus int
	}{
		{"recency", "recency", http.StatusOK},
		{"case insensitive", "Monetary", http.StatusOK},
		{"unknown feature", "tenure", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/distributions/"+tt.feature, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			response := decodeEnvelope(t, w)
			if tt.wantStatus != http.StatusOK {
				if code := errorCode(t, response); code != "NOT_FOUND" {
					t.Errorf("expected NOT_FOUND, got %q", code)
				}
				return
			}

			data := response["data"].(map[string]any)
			bins := data["bins"].([]any)
			if len(bins) != report.DefaultBins {
				t.Errorf("expected %d bins, got %d", report.DefaultBins, len(bins))
			}
			total := 0.0
			for _, b := range bins {
				total += b.(map[string]any)["count"].(float64)
			}
			if total != 5 {
				t.Errorf("expected bin counts to sum to 5, got %v", total)
			}
		})
	}
}

func TestAPIHandlers_HandleCustomers(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
		wantCount  int
	}{
		{"default limit", "", http.StatusOK, "", 5},
		{"limited", "?limit=2", http.StatusOK, "", 2},
		{"by segment", "?segment=Loyal+Customers", http.StatusOK, "", 2},
		{"unknown segment", "?segment=Whales", http.StatusNotFound, "NOT_FOUND", 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, "BAD_REQUEST", 0},
		{"non numeric limit", "?limit=ten", http.StatusBadRequest, "BAD_REQUEST", 0},
		{"limit too large", "?limit=100000", http.StatusBadRequest, "BAD_REQUEST", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/customers"+tt.query, nil)
			w := httptest.NewRecorder()
			handlers.HandleCustomers(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			response := decodeEnvelope(t, w)
			if tt.wantCode != "" {
				if code := errorCode(t, response); code != tt.wantCode {
					t.Errorf("expected %s, got %q", tt.wantCode, code)
				}
				if success, _ := response["success"].(bool); success {
					t.Error("expected success=false")
				}
				return
			}
			data := response["data"].([]any)
			if len(data) != tt.wantCount {
				t.Errorf("expected %d customers, got %d", tt.wantCount, len(data))
			}
		})
	}
}

func TestAPIHandlers_HandleCustomers_SortedByMonetary(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?limit=1", nil)
	w := httptest.NewRecorder()
	handlers.HandleCustomers(w, req)

	data := decodeEnvelope(t, w)["data"].([]any)
	if id := data[0].(map[string]any)["customer_id"]; id != "12346" {
		t.Errorf("expected top customer 12346, got %v", id)
	}
}

func TestAPIHandlers_HandleRecommendations(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations", nil)
	w := httptest.NewRecorder()
	handlers.HandleRecommendations(w, req)

	data := decodeEnvelope(t, w)["data"].([]any)
	if len(data) != 4 {
		t.Fatalf("expected 4 recommendations, got %d", len(data))
	}
	for _, item := range data {
		if advice, _ := item.(map[string]any)["advice"].(string); advice == "" {
			t.Errorf("expected advice text, got %v", item)
		}
	}
}

func TestAPIHandlers_HandleReportPDF(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/report.pdf", nil)
	w := httptest.NewRecorder()
	handlers.HandleReportPDF(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("expected content-type 'application/pdf', got %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("expected body to start with %PDF")
	}
}

func TestAPIHandlers_NotReady(t *testing.T) {
	handlers := NewAPIHandlers(services.NewDashboard(slog.Default(), "", 0), "", slog.Default())

	tests := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/report.pdf", handlers.HandleReportPDF},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		w := httptest.NewRecorder()
		tt.handler(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status %d, got %d", tt.path, http.StatusServiceUnavailable, w.Code)
		}
	}
}

func TestAPIHandlers_HandleChart(t *testing.T) {
	dir := t.TempDir()
	onDisk := []byte("\x89PNG\r\n\x1a\nfrom-disk")
	if err := os.WriteFile(filepath.Join(dir, report.RevenueChart), onDisk, 0644); err != nil {
		t.Fatal(err)
	}

	handlers := NewAPIHandlers(createTestDashboard(t), dir, slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /charts/{file}", handlers.HandleChart)

	t.Run("served from output dir", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/charts/"+report.RevenueChart, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if !bytes.Equal(w.Body.Bytes(), onDisk) {
			t.Error("expected the file written by the pipeline")
		}
	})

	t.Run("rendered on demand", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/charts/"+report.RecencyChart, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("expected content-type 'image/png', got %q", ct)
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
			t.Error("expected a PNG body")
		}
	})

	t.Run("unknown chart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/charts/secrets.png", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		handlers   *APIHandlers
		wantStatus string
	}{
		{"loaded", newTestAPIHandlers(t), "healthy"},
		{"empty", NewAPIHandlers(services.NewDashboard(slog.Default(), "", 0), "", slog.Default()), "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			tt.handlers.HandleHealth(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "" {
				t.Errorf("health check should not be cached, got %q", cc)
			}

			data := decodeEnvelope(t, w)["data"].(map[string]any)
			if data["status"] != tt.wantStatus {
				t.Errorf("expected status %q, got %v", tt.wantStatus, data["status"])
			}
			for _, field := range []string{"timestamp", "version"} {
				if _, ok := data[field]; !ok {
					t.Errorf("expected field %q in health data", field)
				}
			}
		})
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()
	handlers.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	expectedFields := []string{"record_count", "last_processed", "segments", "total_revenue", "loads"}
	for _, field := range expectedFields {
		if _, ok := data[field]; !ok {
			t.Errorf("expected field %q in stats data", field)
		}
	}
	if data["record_count"] != float64(5) {
		t.Errorf("expected record_count 5, got %v", data["record_count"])
	}
}

func TestAPIHandlers_ErrorRequestID(t *testing.T) {
	handlers := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?limit=-1", nil)
	w := httptest.NewRecorder()
	handlers.HandleCustomers(w, req)

	body := w.Body.String()
	for _, field := range []string{`"success":false`, `"code":"BAD_REQUEST"`, `"timestamp"`} {
		if !strings.Contains(body, field) {
			t.Errorf("expected %s in error body %s", field, body)
		}
	}
}

func BenchmarkAPIHandlers_HandleSegments(b *testing.B) {
	handlers := newTestAPIHandlers(b)
	req := httptest.NewRequest(http.MethodGet, "/api/segments", nil)

	for b.Loop() {
		handlers.HandleSegments(httptest.NewRecorder(), req)
	}
}
