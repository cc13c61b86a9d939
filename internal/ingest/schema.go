package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

const (
	colCustomer = iota
	colInvoice
	colDate
	colQuantity
	colPrice
	numColumns
)

// Columns is the required transaction schema, in canonical order.
var Columns = [numColumns]string{"CustomerID", "InvoiceNo", "InvoiceDate", "Quantity", "UnitPrice"}

// aliases covers the renamed headers of the 2009-2011 "Online Retail II" export.
var aliases = map[string]int{
	"customer id": colCustomer,
	"invoice":     colInvoice,
	"price":       colPrice,
}

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"1/2/2006 15:04",
	"1/2/06 15:04",
}

type columnIndex [numColumns]int

func resolveHeader(header []string) (columnIndex, error) {
	var idx columnIndex
	for i := range idx {
		idx[i] = -1
	}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		col := -1
		for c, want := range Columns {
			if strings.EqualFold(name, want) {
				col = c
				break
			}
		}
		if col < 0 {
			if alias, ok := aliases[strings.ToLower(name)]; ok {
				col = alias
			}
		}
		if col >= 0 && idx[col] < 0 {
			idx[col] = i
		}
	}
	for c, i := range idx {
		if i < 0 {
			return idx, apperrors.InvalidInputf("missing required column %q", Columns[c])
		}
	}
	return idx, nil
}

// parseRow converts one data row. ok is false for anonymous rows, which carry
// no customer id and are skipped.
func parseRow(row []string, cols columnIndex, line int) (rec models.TransactionRecord, ok bool, err error) {
	field := func(c int) string {
		if i := cols[c]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	customer := normalizeCustomerID(field(colCustomer))
	if customer == "" {
		return rec, false, nil
	}

	invoice := field(colInvoice)
	if invoice == "" {
		return rec, false, apperrors.InvalidInputf("row %d: empty InvoiceNo", line)
	}

	when, err := parseDate(field(colDate))
	if err != nil {
		return rec, false, apperrors.InvalidInputWrap(err, fmt.Sprintf("row %d: invalid InvoiceDate", line))
	}

	qty, err := parseQuantity(field(colQuantity))
	if err != nil {
		return rec, false, apperrors.InvalidInputWrap(err, fmt.Sprintf("row %d: invalid Quantity", line))
	}

	price, err := decimal.NewFromString(field(colPrice))
	if err != nil {
		return rec, false, apperrors.InvalidInputWrap(err, fmt.Sprintf("row %d: invalid UnitPrice", line))
	}

	return models.TransactionRecord{
		CustomerID:  customer,
		InvoiceID:   invoice,
		InvoiceDate: when,
		Quantity:    qty,
		UnitPrice:   price,
	}, true, nil
}

// normalizeCustomerID turns spreadsheet floats such as "17850.0" back into
// the integer id they encode.
func normalizeCustomerID(s string) string {
	whole, frac, found := strings.Cut(s, ".")
	if !found || whole == "" || strings.Trim(frac, "0") != "" {
		return s
	}
	if _, err := strconv.ParseUint(whole, 10, 64); err != nil {
		return s
	}
	return whole
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseQuantity(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("quantity %q is not a whole number", s)
	}
	return int64(f), nil
}
