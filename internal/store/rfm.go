// Package store persists segmented RFM tables as CSV.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

var Header = []string{"CustomerID", "Recency", "Frequency", "Monetary", "Segment"}

func WriteRFMTable(w io.Writer, records []models.SegmentedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	row := make([]string, len(Header))
	for _, r := range records {
		row[0] = r.CustomerID
		row[1] = strconv.Itoa(r.Recency)
		row[2] = strconv.Itoa(r.Frequency)
		row[3] = r.Monetary.String()
		row[4] = r.Segment
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRFMTable parses a table written by WriteRFMTable. Columns are matched by
// name; extra columns, such as a leading index, are ignored.
func ReadRFMTable(r io.Reader) ([]models.SegmentedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.InvalidInput("RFM table is empty")
	}
	if err != nil {
		return nil, apperrors.InvalidInputWrap(err, "read RFM header")
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	cols := make([]int, len(Header))
	for i, name := range Header {
		c, ok := idx[name]
		if !ok {
			return nil, apperrors.InvalidInputf("RFM table is missing column %q", name)
		}
		cols[i] = c
	}

	var records []models.SegmentedRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.InvalidInputWrap(err, "malformed RFM table")
		}
		rec, err := parseRecord(row, cols)
		if err != nil {
			return nil, apperrors.InvalidInputWrap(err, fmt.Sprintf("row %d", line))
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(row []string, cols []int) (models.SegmentedRecord, error) {
	field := func(i int) string {
		if cols[i] < len(row) {
			return strings.TrimSpace(row[cols[i]])
		}
		return ""
	}

	var rec models.SegmentedRecord
	rec.CustomerID = field(0)
	if rec.CustomerID == "" {
		return rec, fmt.Errorf("empty CustomerID")
	}
	recency, err := strconv.Atoi(field(1))
	if err != nil {
		return rec, fmt.Errorf("recency: %w", err)
	}
	frequency, err := strconv.Atoi(field(2))
	if err != nil {
		return rec, fmt.Errorf("frequency: %w", err)
	}
	if recency < 0 || frequency < 1 {
		return rec, fmt.Errorf("recency %d / frequency %d out of range", recency, frequency)
	}
	monetary, err := decimal.NewFromString(field(3))
	if err != nil {
		return rec, fmt.Errorf("monetary: %w", err)
	}
	rec.Recency, rec.Frequency, rec.Monetary = recency, frequency, monetary
	rec.Segment = field(4)
	if rec.Segment == "" {
		return rec, fmt.Errorf("empty Segment")
	}
	return rec, nil
}

// SaveRFMTable replaces path in one rename so readers never see a partial file.
func SaveRFMTable(path string, records []models.SegmentedRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteRFMTable(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("write RFM table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func LoadRFMTable(path string) ([]models.SegmentedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open RFM table: %w", err)
	}
	defer f.Close()
	return ReadRFMTable(f)
}
