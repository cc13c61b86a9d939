package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is one invoice line item as read from the transaction source.
type TransactionRecord struct {
	CustomerID  string
	InvoiceID   string
	InvoiceDate time.Time
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// LineTotal is quantity × unit price.
func (t TransactionRecord) LineTotal() decimal.Decimal {
	return t.UnitPrice.Mul(decimal.NewFromInt(t.Quantity))
}

type RFMRecord struct {
	CustomerID string          `json:"customer_id"`
	Recency    int             `json:"recency"`
	Frequency  int             `json:"frequency"`
	Monetary   decimal.Decimal `json:"monetary"`
}

type SegmentedRecord struct {
	RFMRecord
	Segment string `json:"segment"`
}

type SegmentSummary struct {
	Segment   string  `json:"segment"`
	Color     string  `json:"color"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
	Monetary  float64 `json:"monetary"`
	Count     int     `json:"count"`
	Revenue   float64 `json:"revenue"`
}

type SegmentRevenue struct {
	Segment string  `json:"segment"`
	Color   string  `json:"color"`
	Revenue float64 `json:"revenue"`
}

type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

type Distribution struct {
	Feature string         `json:"feature"`
	Bins    []HistogramBin `json:"bins"`
}

type Recommendation struct {
	Segment string `json:"segment"`
	Color   string `json:"color"`
	Advice  string `json:"advice"`
}

type CustomerRow struct {
	CustomerID string  `json:"customer_id"`
	Recency    int     `json:"recency"`
	Frequency  int     `json:"frequency"`
	Monetary   float64 `json:"monetary"`
	Segment    string  `json:"segment"`
}
