package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8084", cfg.Address())
	assert.Equal(t, "data/rfm_data.csv", cfg.Data.RFMFile)
	assert.Equal(t, 4, cfg.Segment.K)
	assert.Equal(t, DefaultLabels, cfg.Segment.Labels)
	assert.Equal(t, "kmeans", cfg.Segment.Method)
	assert.Equal(t, uint64(42), cfg.Segment.Seed)
	assert.Equal(t, "include", cfg.Segment.ReturnsPolicy)
	assert.True(t, cfg.Segment.SnapshotDate.IsZero())
	assert.Equal(t, ",", cfg.Source.Delimiter)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SEGMENT_K", "2")
	t.Setenv("SEGMENT_LABELS", "Whales, Minnows")
	t.Setenv("SEGMENT_METHOD", "Ward")
	t.Setenv("SEGMENT_SNAPSHOT_DATE", "2011-12-10")
	t.Setenv("SOURCE_KIND", "postgres")
	t.Setenv("SOURCE_SINCE", "2011-01-01")
	t.Setenv("LOG_FORMAT", "TEXT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"Whales", "Minnows"}, cfg.Segment.Labels)
	assert.Equal(t, "ward", cfg.Segment.Method)
	assert.Equal(t, time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC), cfg.Segment.SnapshotDate)
	assert.Equal(t, time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Source.Since)
	assert.Equal(t, "postgres", cfg.Source.Kind)
	assert.Equal(t, "text", cfg.Logger.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "SERVER_PORT", "70000"},
		{"labels do not match k", "SEGMENT_K", "3"},
		{"duplicate labels", "SEGMENT_LABELS", "Loyal,At-Risk,Loyal,New"},
		{"unknown method", "SEGMENT_METHOD", "dbscan"},
		{"unknown returns policy", "SEGMENT_RETURNS_POLICY", "net"},
		{"bad snapshot date", "SEGMENT_SNAPSHOT_DATE", "10/12/2011"},
		{"unknown source kind", "SOURCE_KIND", "parquet"},
		{"multi-char delimiter", "SOURCE_DELIMITER", ";;"},
		{"unknown encoding", "SOURCE_ENCODING", "utf-16"},
		{"zero bins", "SEGMENT_HISTOGRAM_BINS", "0"},
		{"bad log level", "LOG_LEVEL", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
