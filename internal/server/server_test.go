package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/services"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dashboard := services.NewDashboard(logger, "", 0)
	err := dashboard.SetData([]models.SegmentedRecord{
		{RFMRecord: models.RFMRecord{CustomerID: "1", Recency: 3, Frequency: 5, Monetary: decimal.NewFromInt(500)}, Segment: "Loyal Customers"},
		{RFMRecord: models.RFMRecord{CustomerID: "2", Recency: 90, Frequency: 1, Monetary: decimal.NewFromInt(20)}, Segment: "At-Risk Customers"},
	})
	if err != nil {
		t.Fatal(err)
	}
	page := func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "dashboard page")
	}
	return NewServer(dashboard, t.TempDir(), logger, &TemplateHandlers{Dashboard: page})
}

func TestServer_Routes(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/admin/stats", http.StatusOK},
		{http.MethodGet, "/api/segments", http.StatusOK},
		{http.MethodGet, "/api/revenue", http.StatusOK},
		{http.MethodGet, "/api/distributions/frequency", http.StatusOK},
		{http.MethodGet, "/api/distributions/age", http.StatusNotFound},
		{http.MethodGet, "/api/customers?segment=Loyal+Customers&limit=5", http.StatusOK},
		{http.MethodGet, "/api/customers?limit=abc", http.StatusBadRequest},
		{http.MethodGet, "/api/recommendations", http.StatusOK},
		{http.MethodGet, "/report.pdf", http.StatusOK},
		{http.MethodGet, "/charts/revenue_by_segment.png", http.StatusOK},
		{http.MethodGet, "/sse/segments", http.StatusOK},
		{http.MethodGet, "/sse/revenue", http.StatusOK},
		{http.MethodGet, "/sse/distributions", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPost, "/api/segments", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestServer_DashboardPage(t *testing.T) {
	w := httptest.NewRecorder()
	testServer(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(w.Body.String(), "dashboard page") {
		t.Errorf("expected dashboard page, got %q", w.Body.String())
	}
}

func testConfig() *config.Config {
	return &config.Config{Server: config.ServerConfig{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: 2 * time.Second,
	}}
}

func TestGracefulServer_ShutdownRunsHooks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gs := NewGracefulServer(&http.Server{Handler: http.NotFoundHandler()}, logger, testConfig())

	var ran atomic.Int32
	gs.RegisterShutdownHook("first", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	gs.RegisterShutdownHook("second", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if ran.Load() != 2 {
		t.Errorf("expected 2 hooks to run, got %d", ran.Load())
	}
}

func TestGracefulServer_HookErrorsAreReported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gs := NewGracefulServer(&http.Server{Handler: http.NotFoundHandler()}, logger, testConfig())

	cacheErr := errors.New("flush failed")
	metricsErr := errors.New("push failed")
	var ran atomic.Int32
	gs.RegisterShutdownHook("cache", func(ctx context.Context) error { return cacheErr })
	gs.RegisterShutdownHook("metrics", func(ctx context.Context) error { return metricsErr })
	gs.RegisterShutdownHook("logs", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = gs.Serve(ctx, ln)
	for _, want := range []error{cacheErr, metricsErr} {
		if !errors.Is(err, want) {
			t.Errorf("expected %v in %v", want, err)
		}
	}
	if ran.Load() != 1 {
		t.Error("a failing hook must not stop the others")
	}
}
