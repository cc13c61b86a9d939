package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/store"
)

const cacheVersion = "v1"

type PrecomputedData struct {
	Report       *report.Report       `json:"report"`
	Customers    []models.CustomerRow `json:"customers"`
	LastModified time.Time            `json:"last_modified"`
	RecordCount  int64                `json:"record_count"`
	// Identity of the table the data was computed from.
	SourceModTime time.Time `json:"source_mod_time"`
	SourceSize    int64     `json:"source_size"`
}

func (p *PrecomputedData) matches(info os.FileInfo) bool {
	return p.SourceSize == info.Size() && p.SourceModTime.Equal(info.ModTime())
}

// Dashboard serves the segmented customer base. Everything is computed once
// per load, so reads are slice lookups under a read lock.
type Dashboard struct {
	mu          sync.RWMutex
	precomputed *PrecomputedData
	csvPath     string
	cacheDir    string
	bins        int
	loads       atomic.Int64
	logger      *slog.Logger
}

func NewDashboard(logger *slog.Logger, cacheDir string, bins int) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	if bins < 1 {
		bins = report.DefaultBins
	}
	return &Dashboard{
		precomputed: &PrecomputedData{Report: &report.Report{}},
		cacheDir:    cacheDir,
		bins:        bins,
		logger:      logger,
	}
}

func (d *Dashboard) SetData(records []models.SegmentedRecord) error {
	data, err := d.compute(records)
	if err != nil {
		return err
	}
	d.publish(data)
	return nil
}

func (d *Dashboard) publish(data *PrecomputedData) {
	d.mu.Lock()
	d.precomputed = data
	d.mu.Unlock()
	d.loads.Add(1)
}

// LoadFromCSV reads an RFM table, reusing the gob cache only when it was
// computed from a table with the same size and modification time.
func (d *Dashboard) LoadFromCSV(ctx context.Context, filename string) error {
	d.mu.Lock()
	d.csvPath = filename
	d.mu.Unlock()

	fileInfo, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("load RFM table: %w", err)
	}

	if cached, err := d.loadFromCache(filename); err == nil && cached.matches(fileInfo) {
		d.publish(cached)
		d.logger.Info("loaded from cache", "records", cached.RecordCount)
		return nil
	}

	start := time.Now()
	d.logger.Info("processing RFM table", "filename", filename)

	if err := ctx.Err(); err != nil {
		return err
	}
	records, err := store.LoadRFMTable(filename)
	if err != nil {
		return fmt.Errorf("load RFM table: %w", err)
	}
	data, err := d.compute(records)
	if err != nil {
		return err
	}
	data.SourceModTime = fileInfo.ModTime()
	data.SourceSize = fileInfo.Size()
	d.publish(data)

	if err := d.saveToCache(filename); err != nil {
		d.logger.Warn("failed to save cache", "error", err)
	}

	d.logger.Info("RFM table loaded",
		"records", len(records),
		"duration", time.Since(start))
	return nil
}

// Reload re-reads the table last passed to LoadFromCSV.
func (d *Dashboard) Reload(ctx context.Context) error {
	d.mu.RLock()
	path := d.csvPath
	d.mu.RUnlock()
	if path == "" {
		return apperrors.ServiceUnavailable("no RFM table has been loaded")
	}
	return d.LoadFromCSV(ctx, path)
}

func (d *Dashboard) compute(records []models.SegmentedRecord) (*PrecomputedData, error) {
	rep, err := report.Build(records, d.bins)
	if err != nil {
		return nil, err
	}

	customers := make([]models.CustomerRow, len(records))
	for i, r := range records {
		customers[i] = models.CustomerRow{
			CustomerID: r.CustomerID,
			Recency:    r.Recency,
			Frequency:  r.Frequency,
			Monetary:   r.Monetary.InexactFloat64(),
			Segment:    r.Segment,
		}
	}
	slices.SortFunc(customers, func(a, b models.CustomerRow) int {
		if a.Monetary > b.Monetary {
			return -1
		}
		if a.Monetary < b.Monetary {
			return 1
		}
		return strings.Compare(a.CustomerID, b.CustomerID)
	})

	return &PrecomputedData{
		Report:       rep,
		Customers:    customers,
		LastModified: time.Now(),
		RecordCount:  int64(len(records)),
	}, nil
}

// Cache management
func (d *Dashboard) getCacheFilename(csvPath string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(csvPath)
	return filepath.Join(d.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (d *Dashboard) saveToCache(csvPath string) error {
	if d.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(d.getCacheFilename(csvPath))
	if err != nil {
		return err
	}
	defer file.Close()

	d.mu.RLock()
	defer d.mu.RUnlock()

	return gob.NewEncoder(file).Encode(d.precomputed)
}

func (d *Dashboard) loadFromCache(csvPath string) (*PrecomputedData, error) {
	if d.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	file, err := os.Open(d.getCacheFilename(csvPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data PrecomputedData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, err
	}
	if data.Report == nil {
		return nil, fmt.Errorf("cache has no report")
	}
	return &data, nil
}

func (d *Dashboard) Segments() []models.SegmentSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.precomputed.Report.Segments
}

func (d *Dashboard) Revenue() []models.SegmentRevenue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.precomputed.Report.Revenue
}

func (d *Dashboard) Distributions() []models.Distribution {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.precomputed.Report.Distributions
}

func (d *Dashboard) Distribution(feature string) (models.Distribution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	dist, ok := d.precomputed.Report.Distribution(feature)
	if !ok {
		return dist, apperrors.NotFound(fmt.Sprintf("unknown feature %q, expected one of %s",
			feature, strings.Join(report.Features, ", ")))
	}
	return dist, nil
}

// Customers lists customers by descending monetary value. An empty segment
// means all segments.
func (d *Dashboard) Customers(segment string, limit int) ([]models.CustomerRow, error) {
	if limit < 1 {
		return nil, apperrors.BadRequest("limit must be a positive integer")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if segment != "" && d.precomputed.Report.SegmentColor(segment) == "" {
		return nil, apperrors.NotFound(fmt.Sprintf("unknown segment %q", segment))
	}

	out := make([]models.CustomerRow, 0, min(limit, len(d.precomputed.Customers)))
	for _, c := range d.precomputed.Customers {
		if len(out) == limit {
			break
		}
		if segment == "" || c.Segment == segment {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *Dashboard) Recommendations() []models.Recommendation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.precomputed.Report.Recommendations
}

// Report returns the current report; callers must not modify it.
func (d *Dashboard) Report() *report.Report {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.precomputed.Report
}

func (d *Dashboard) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.precomputed.RecordCount > 0
}

// Utility method for monitoring
func (d *Dashboard) Stats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return map[string]any{
		"record_count":   d.precomputed.RecordCount,
		"last_processed": d.precomputed.LastModified,
		"segments":       len(d.precomputed.Report.Segments),
		"total_revenue":  d.precomputed.Report.TotalRevenue,
		"source":         d.csvPath,
		"loads":          d.loads.Load(),
	}
}
