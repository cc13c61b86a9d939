package ingest

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// XLSXSource reads a spreadsheet, such as the UCI "Online Retail.xlsx".
// Sheet defaults to the first sheet in the workbook.
type XLSXSource struct {
	Path  string
	Sheet string
}

func (s *XLSXSource) Load(ctx context.Context) ([]models.TransactionRecord, Stats, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, Stats{}, apperrors.InvalidInputf("workbook has no sheet %q", sheet)
	}

	// Formatted values render InvoiceDate with the cell's own number format
	// ("12/1/10 8:26" in the UCI file); unformatted dates arrive as serials.
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, Stats{}, apperrors.InvalidInputWrap(err, "read sheet")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, Stats{}, apperrors.InvalidInput("worksheet is empty")
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, Stats{}, apperrors.InvalidInputWrap(err, "read header")
	}
	cols, err := resolveHeader(header)
	if err != nil {
		return nil, Stats{}, err
	}

	parser := newRowParser(ctx, cols, 2)
	for rows.Next() {
		row, err := rows.Columns()
		if err != nil {
			parser.discard()
			return nil, Stats{}, apperrors.InvalidInputWrap(err, "read row")
		}
		if len(row) == 0 {
			continue
		}
		if err := parser.add(row); err != nil {
			break
		}
	}
	if err := rows.Error(); err != nil {
		parser.discard()
		return nil, Stats{}, apperrors.InvalidInputWrap(err, "read sheet")
	}
	return parser.wait()
}
