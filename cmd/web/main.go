package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/middleware"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/server"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	loadTimeout   = 30 * time.Second
	cacheMaxAge   = "public, max-age=60"
)

var chartTitles = map[string]string{
	report.RecencyChart:   "Recency Distribution",
	report.FrequencyChart: "Frequency Distribution",
	report.MonetaryChart:  "Monetary Distribution",
	report.RevenueChart:   "Revenue by Segment",
}

func dashboardPage(dashboard *services.Dashboard) templates.Page {
	rep := dashboard.Report()
	page := templates.Page{
		TotalCustomers:  report.FormatCount(rep.TotalCustomers),
		TotalRevenue:    report.FormatMoney(rep.TotalRevenue),
		Recommendations: rep.Recommendations,
	}
	if dashboard.Ready() {
		for _, name := range report.ChartFiles {
			page.Charts = append(page.Charts, templates.Chart{Title: chartTitles[name], Src: "/charts/" + name})
		}
	}
	return page
}

func handleDashboard(dashboard *services.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(dashboardPage(dashboard)).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"rfm_file", cfg.Data.RFMFile,
		"output_dir", cfg.Data.OutputDir,
	)

	dashboard := services.NewDashboard(logger, cfg.Data.CacheDir, cfg.Segment.HistogramBins)
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	start := time.Now()
	if err := dashboard.LoadFromCSV(ctx, cfg.Data.RFMFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("failed to load RFM table", "error", err)
			os.Exit(1)
		}
		logger.Warn("RFM table not found, serving an empty dashboard until refresh",
			"rfm_file", cfg.Data.RFMFile)
	} else {
		logger.Info("RFM table loaded successfully", "duration", time.Since(start))
	}

	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard(dashboard),
	}

	srv := server.NewServer(dashboard, cfg.Data.OutputDir, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	go rateLimiter.Run(limiterCtx)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("rate-limiter", func(ctx context.Context) error {
		stopLimiter()
		return nil
	})
	gracefulServer.RegisterShutdownHook("dashboard", func(ctx context.Context) error {
		logger.Info("shutting down dashboard service", "stats", dashboard.Stats())
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
