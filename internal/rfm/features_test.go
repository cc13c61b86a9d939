package rfm

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tx(customer, invoice string, when time.Time, qty int64, price string) models.TransactionRecord {
	return models.TransactionRecord{
		CustomerID:  customer,
		InvoiceID:   invoice,
		InvoiceDate: when,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func TestBuild_Scenario(t *testing.T) {
	transactions := []models.TransactionRecord{
		tx("C1", "INV1", date(2024, 1, 1), 2, "10.0"),
		tx("C1", "INV1", date(2024, 1, 1), 1, "5.0"),
		tx("C2", "INV2", date(2024, 1, 10), 1, "100.0"),
	}

	got, err := NewFeatureBuilder(ReturnsInclude).Build(transactions, date(2024, 2, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)

	c1 := got["C1"]
	assert.Equal(t, 31, c1.Recency)
	assert.Equal(t, 1, c1.Frequency)
	assert.True(t, c1.Monetary.Equal(decimal.RequireFromString("25")), "C1 monetary = %s", c1.Monetary)

	c2 := got["C2"]
	assert.Equal(t, 22, c2.Recency)
	assert.Equal(t, 1, c2.Frequency)
	assert.True(t, c2.Monetary.Equal(decimal.RequireFromString("100")), "C2 monetary = %s", c2.Monetary)
}

func TestBuild_FrequencyCountsDistinctInvoices(t *testing.T) {
	transactions := []models.TransactionRecord{
		tx("C1", "A", date(2024, 1, 1), 1, "1"),
		tx("C1", "A", date(2024, 1, 1), 1, "1"),
		tx("C1", "A", date(2024, 1, 1), 1, "1"),
		tx("C1", "B", date(2024, 1, 5), 1, "1"),
		tx("C2", "A", date(2024, 1, 1), 1, "1"),
		tx("C2", "C", date(2024, 1, 2), 1, "1"),
		tx("C2", "D", date(2024, 1, 3), 1, "1"),
	}

	got, err := NewFeatureBuilder(ReturnsInclude).Build(transactions, date(2024, 2, 1))
	require.NoError(t, err)

	want := map[string]map[string]bool{}
	for _, line := range transactions {
		if want[line.CustomerID] == nil {
			want[line.CustomerID] = map[string]bool{}
		}
		want[line.CustomerID][line.InvoiceID] = true
	}
	for customer, invoices := range want {
		assert.Equal(t, len(invoices), got[customer].Frequency, customer)
	}
}

func TestBuild_MonetaryIsConserved(t *testing.T) {
	var transactions []models.TransactionRecord
	for i := range 500 {
		customer := fmt.Sprintf("C%02d", i%37)
		invoice := fmt.Sprintf("INV%03d", i%91)
		qty := int64(i%7 - 1) // includes returns
		price := fmt.Sprintf("%d.%02d", i%13, i%100)
		transactions = append(transactions, tx(customer, invoice, date(2024, 1, 1+i%28), qty, price))
	}

	got, err := NewFeatureBuilder(ReturnsInclude).Build(transactions, date(2024, 3, 1))
	require.NoError(t, err)

	want := decimal.Zero
	for _, line := range transactions {
		want = want.Add(line.LineTotal())
	}
	sum := decimal.Zero
	for _, r := range got {
		sum = sum.Add(r.Monetary)
	}
	assert.True(t, want.Equal(sum), "want %s, got %s", want, sum)
}

func TestBuild_SingleTransactionBoundary(t *testing.T) {
	got, err := NewFeatureBuilder(ReturnsInclude).Build(
		[]models.TransactionRecord{tx("C9", "X1", date(2023, 12, 25), 3, "2.50")},
		date(2024, 1, 4),
	)
	require.NoError(t, err)
	assert.Equal(t, 10, got["C9"].Recency)
	assert.Equal(t, 1, got["C9"].Frequency)
	assert.Equal(t, "7.5", got["C9"].Monetary.String())
}

func TestBuild_RecencyFloorsPartialDays(t *testing.T) {
	when := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	got, err := NewFeatureBuilder(ReturnsInclude).Build(
		[]models.TransactionRecord{tx("C1", "A", when, 1, "1")},
		date(2024, 2, 1),
	)
	require.NoError(t, err)
	assert.Equal(t, 30, got["C1"].Recency)
}

func TestBuild_SnapshotBeforeInvoiceFails(t *testing.T) {
	_, err := NewFeatureBuilder(ReturnsInclude).Build(
		[]models.TransactionRecord{
			tx("C1", "A", date(2024, 1, 1), 1, "1"),
			tx("C2", "B", date(2024, 3, 1), 1, "1"),
		},
		date(2024, 2, 1),
	)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestBuild_EmptyInputYieldsNoRecords(t *testing.T) {
	got, err := NewFeatureBuilder(ReturnsInclude).Build(nil, date(2024, 2, 1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuild_Idempotent(t *testing.T) {
	transactions := []models.TransactionRecord{
		tx("B", "2", date(2024, 1, 3), 1, "9.99"),
		tx("A", "1", date(2024, 1, 1), 2, "1.25"),
		tx("C", "3", date(2024, 1, 2), -1, "4.00"),
		tx("A", "4", date(2024, 1, 9), 5, "0.10"),
	}
	b := NewFeatureBuilder(ReturnsInclude)

	first, err := b.Build(transactions, date(2024, 2, 1))
	require.NoError(t, err)
	second, err := b.Build(transactions, date(2024, 2, 1))
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprint(Sorted(first)), fmt.Sprint(Sorted(second)))
}

func TestBuild_ReturnsPolicy(t *testing.T) {
	transactions := []models.TransactionRecord{
		tx("C1", "A", date(2024, 1, 1), 4, "10"),
		tx("C1", "CA", date(2024, 1, 20), -1, "10"),
		tx("C2", "CB", date(2024, 1, 5), -2, "3"),
	}

	included, err := NewFeatureBuilder(ReturnsInclude).Build(transactions, date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, "30", included["C1"].Monetary.String())
	assert.Equal(t, 2, included["C1"].Frequency)
	assert.Equal(t, 12, included["C1"].Recency)
	assert.Equal(t, "-6", included["C2"].Monetary.String())

	excluded, err := NewFeatureBuilder(ReturnsExclude).Build(transactions, date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, "40", excluded["C1"].Monetary.String())
	assert.Equal(t, 1, excluded["C1"].Frequency)
	assert.Equal(t, 31, excluded["C1"].Recency)
	assert.NotContains(t, excluded, "C2")
}

func TestParseReturnsPolicy(t *testing.T) {
	p, err := ParseReturnsPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReturnsInclude, p)

	p, err = ParseReturnsPolicy(" Exclude ")
	require.NoError(t, err)
	assert.Equal(t, ReturnsExclude, p)

	_, err = ParseReturnsPolicy("net")
	assert.Error(t, err)
}

func TestDefaultSnapshot(t *testing.T) {
	snapshot, err := DefaultSnapshot([]models.TransactionRecord{
		tx("A", "1", time.Date(2011, 12, 9, 12, 50, 0, 0, time.UTC), 1, "1"),
		tx("B", "2", date(2010, 12, 1), 1, "1"),
	})
	require.NoError(t, err)
	assert.Equal(t, date(2011, 12, 10), snapshot)

	_, err = DefaultSnapshot(nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestSorted(t *testing.T) {
	got := Sorted(map[string]models.RFMRecord{
		"b": {CustomerID: "b"},
		"a": {CustomerID: "a"},
		"c": {CustomerID: "c"},
	})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].CustomerID, got[1].CustomerID, got[2].CustomerID})
}
