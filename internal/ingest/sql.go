package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type dialect struct {
	quote       func(string) string
	placeholder squirrel.PlaceholderFormat
	// cast wraps CustomerID and UnitPrice so numeric and text columns scan alike.
	customerExpr func(string) string
	priceExpr    func(string) string
}

var (
	mysqlDialect = dialect{
		quote:        func(s string) string { return "`" + s + "`" },
		placeholder:  squirrel.Question,
		customerExpr: func(c string) string { return "CAST(" + c + " AS CHAR)" },
		priceExpr:    func(c string) string { return c },
	}
	postgresDialect = dialect{
		quote:        func(s string) string { return `"` + s + `"` },
		placeholder:  squirrel.Dollar,
		customerExpr: func(c string) string { return c + "::text" },
		priceExpr:    func(c string) string { return c + "::numeric" },
	}
)

// selectTransactions builds the transaction query for table, optionally
// restricted to invoices on or after since.
func selectTransactions(d dialect, table string, since time.Time) (string, []any, error) {
	if !tableNamePattern.MatchString(table) {
		return "", nil, apperrors.InvalidInputf("invalid table name %q", table)
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = d.quote(p)
	}

	col := func(c int) string { return d.quote(Columns[c]) }
	query := squirrel.Select(
		d.customerExpr(col(colCustomer)),
		col(colInvoice),
		col(colDate),
		col(colQuantity),
		d.priceExpr(col(colPrice)),
	).
		From(strings.Join(parts, ".")).
		OrderBy(col(colDate)).
		PlaceholderFormat(d.placeholder)

	if !since.IsZero() {
		query = query.Where(squirrel.GtOrEq{col(colDate): since})
	}
	return query.ToSql()
}

// rowScanner is the subset of *sql.Rows and pgx.Rows the loaders need.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectRows(ctx context.Context, rows rowScanner) ([]models.TransactionRecord, Stats, error) {
	var (
		records []models.TransactionRecord
		stats   Stats
	)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}
		stats.Rows++
		line := stats.Rows

		var (
			customer *string
			invoice  *string
			when     *time.Time
			qty      *int64
			price    decimal.NullDecimal
		)
		if err := rows.Scan(&customer, &invoice, &when, &qty, &price); err != nil {
			return nil, Stats{}, apperrors.InvalidInputWrap(err, fmt.Sprintf("row %d: scan", line))
		}

		if customer == nil || normalizeCustomerID(strings.TrimSpace(*customer)) == "" {
			stats.SkippedAnonymous++
			continue
		}
		switch {
		case invoice == nil || strings.TrimSpace(*invoice) == "":
			return nil, Stats{}, apperrors.InvalidInputf("row %d: empty InvoiceNo", line)
		case when == nil:
			return nil, Stats{}, apperrors.InvalidInputf("row %d: missing InvoiceDate", line)
		case qty == nil:
			return nil, Stats{}, apperrors.InvalidInputf("row %d: missing Quantity", line)
		case !price.Valid:
			return nil, Stats{}, apperrors.InvalidInputf("row %d: missing UnitPrice", line)
		}

		records = append(records, models.TransactionRecord{
			CustomerID:  normalizeCustomerID(strings.TrimSpace(*customer)),
			InvoiceID:   strings.TrimSpace(*invoice),
			InvoiceDate: when.UTC(),
			Quantity:    *qty,
			UnitPrice:   price.Decimal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, Stats{}, apperrors.ExternalLibraryWrap(err, "read rows")
	}
	stats.Loaded = len(records)
	return records, stats, nil
}
