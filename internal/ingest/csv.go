package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// CSVSource reads delimited text. Encoding is "utf-8" (default) or "latin1".
type CSVSource struct {
	Path      string
	Delimiter rune
	Encoding  string
}

func (s *CSVSource) Load(ctx context.Context) ([]models.TransactionRecord, Stats, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return s.read(ctx, file)
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) ([]models.TransactionRecord, Stats, error) {
	switch s.Encoding {
	case "", "utf-8", "utf8":
	case "latin1", "iso-8859-1":
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	default:
		return nil, Stats{}, apperrors.InvalidInputf("unsupported encoding %q", s.Encoding)
	}

	reader := csv.NewReader(r)
	if s.Delimiter != 0 {
		reader.Comma = s.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, Stats{}, apperrors.InvalidInput("transaction file is empty")
	}
	if err != nil {
		return nil, Stats{}, apperrors.InvalidInputWrap(err, "read header")
	}
	cols, err := resolveHeader(header)
	if err != nil {
		return nil, Stats{}, err
	}

	parser := newRowParser(ctx, cols, 2)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			parser.discard()
			return nil, Stats{}, apperrors.InvalidInputWrap(err, "malformed CSV")
		}
		if err := parser.add(row); err != nil {
			break
		}
	}
	return parser.wait()
}
