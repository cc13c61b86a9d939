// Package rfm turns transaction line items into per-customer
// Recency/Frequency/Monetary features and names customer segments.
package rfm

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

const day = 24 * time.Hour

// ReturnsPolicy decides how line items with a non-positive quantity (returns,
// cancellations) take part in the features.
type ReturnsPolicy string

const (
	// ReturnsInclude nets returns into monetary and counts their invoices.
	ReturnsInclude ReturnsPolicy = "include"
	// ReturnsExclude drops them before aggregation.
	ReturnsExclude ReturnsPolicy = "exclude"
)

func ParseReturnsPolicy(s string) (ReturnsPolicy, error) {
	switch p := ReturnsPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ReturnsInclude, ReturnsExclude:
		return p, nil
	case "":
		return ReturnsInclude, nil
	default:
		return "", fmt.Errorf("unknown returns policy %q, must be one of: include, exclude", s)
	}
}

type FeatureBuilder struct {
	Returns ReturnsPolicy
}

func NewFeatureBuilder(returns ReturnsPolicy) FeatureBuilder {
	return FeatureBuilder{Returns: returns}
}

type customerAcc struct {
	last     time.Time
	invoices map[string]struct{}
	monetary decimal.Decimal
}

// Build aggregates transactions into one RFMRecord per customer. Recency is
// the number of whole days from the customer's latest invoice to snapshot.
func (b FeatureBuilder) Build(transactions []models.TransactionRecord, snapshot time.Time) (map[string]models.RFMRecord, error) {
	acc := make(map[string]*customerAcc)
	for _, tx := range transactions {
		if b.Returns == ReturnsExclude && tx.Quantity <= 0 {
			continue
		}
		c, ok := acc[tx.CustomerID]
		if !ok {
			c = &customerAcc{invoices: make(map[string]struct{})}
			acc[tx.CustomerID] = c
		}
		if tx.InvoiceDate.After(c.last) {
			c.last = tx.InvoiceDate
		}
		c.invoices[tx.InvoiceID] = struct{}{}
		c.monetary = c.monetary.Add(tx.LineTotal())
	}

	out := make(map[string]models.RFMRecord, len(acc))
	for id, c := range acc {
		if snapshot.Before(c.last) {
			return nil, apperrors.InvalidInputf(
				"snapshot date %s precedes last invoice %s of customer %s",
				snapshot.Format(time.DateOnly), c.last.Format(time.DateTime), id)
		}
		out[id] = models.RFMRecord{
			CustomerID: id,
			Recency:    int(snapshot.Sub(c.last) / day),
			Frequency:  len(c.invoices),
			Monetary:   c.monetary,
		}
	}
	return out, nil
}

// DefaultSnapshot is midnight (in the invoices' location) of the day after the
// latest invoice, so the most recent customers get recency 0 or 1.
func DefaultSnapshot(transactions []models.TransactionRecord) (time.Time, error) {
	if len(transactions) == 0 {
		return time.Time{}, apperrors.InvalidInput("no transactions to derive a snapshot date from")
	}
	latest := transactions[0].InvoiceDate
	for _, tx := range transactions[1:] {
		if tx.InvoiceDate.After(latest) {
			latest = tx.InvoiceDate
		}
	}
	y, m, d := latest.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, latest.Location()), nil
}

// Sorted returns the records ordered by customer id.
func Sorted(records map[string]models.RFMRecord) []models.RFMRecord {
	out := make([]models.RFMRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.RFMRecord) int {
		return strings.Compare(a.CustomerID, b.CustomerID)
	})
	return out
}
