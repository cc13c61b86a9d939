package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfm-dashboard/internal/config"
	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/pipeline"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/store"
)

func writeTransactions(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n")
	day := time.Date(2011, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := range 80 {
		customer := fmt.Sprintf("%d.0", 13000+i%20)
		when := day.AddDate(0, 0, (i*11)%120).Format("1/2/2006 15:04")
		fmt.Fprintf(&b, "%d,85123A,WHITE HANGING HEART,%d,%s,%d.%02d,%s,United Kingdom\n",
			536365+i%37, 1+i%6, when, 1+(i*7)%40, i%100, customer)
	}
	b.WriteString("536999,POST,POSTAGE,1,1/5/2011 10:00,18.00,,United Kingdom\n")

	path := filepath.Join(dir, "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Data: config.DataConfig{
			RFMFile:   filepath.Join(dir, "data", "rfm_data.csv"),
			OutputDir: filepath.Join(dir, "output"),
		},
		Source: config.SourceConfig{Path: writeTransactions(t, dir), Encoding: "utf-8", Delimiter: ","},
		Segment: config.SegmentConfig{
			K:             4,
			Labels:        config.DefaultLabels,
			Method:        "kmeans",
			Seed:          42,
			ReturnsPolicy: "include",
			HistogramBins: 20,
		},
	}
}

func testRunner() *pipeline.Runner {
	return pipeline.NewRunner(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun_PublishesAndSummarizes(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), cfg, testRunner(), &out))

	records, err := store.LoadRFMTable(cfg.Data.RFMFile)
	require.NoError(t, err)
	assert.Len(t, records, 20)

	for _, name := range append(report.ChartFiles, report.PDFFile) {
		assert.FileExists(t, filepath.Join(cfg.Data.OutputDir, name))
	}

	summary := out.String()
	assert.Contains(t, summary, "20 customers from 81 rows (1 anonymous rows skipped)")
	assert.Contains(t, summary, "snapshot 2011-04-28")
	assert.Contains(t, summary, "Artifacts:")
	assert.Contains(t, summary, cfg.Data.RFMFile)
}

func TestRun_InvalidSourceFails(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Source.Path, []byte("CustomerID,Quantity\n1,2\n"), 0644))

	err := run(context.Background(), cfg, testRunner(), io.Discard)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput), "got %v", err)
	assert.NoFileExists(t, cfg.Data.RFMFile)
}

func TestRun_UnknownSourceKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Path = "transactions.parquet"

	err := run(context.Background(), cfg, testRunner(), io.Discard)
	assert.Error(t, err)
}
