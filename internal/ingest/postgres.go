package ingest

import (
	"context"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// PostgresSource reads transactions from a PostgreSQL table. NUMERIC prices
// decode straight into decimal.Decimal.
type PostgresSource struct {
	DSN   string
	Table string
	Since time.Time
}

func (s *PostgresSource) Load(ctx context.Context) ([]models.TransactionRecord, Stats, error) {
	query, args, err := selectTransactions(postgresDialect, s.Table, s.Since)
	if err != nil {
		return nil, Stats{}, err
	}

	pool, err := newPool(ctx, s.DSN)
	if err != nil {
		return nil, Stats{}, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Stats{}, apperrors.ExternalLibraryWrap(err, "query transactions")
	}
	defer rows.Close()

	return collectRows(ctx, rows)
}

func newPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.InvalidInputWrap(err, "invalid Postgres DSN")
	}
	poolConfig.MaxConns = 2
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperrors.ExternalLibraryWrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.ExternalLibraryWrap(err, "ping database")
	}
	return pool, nil
}
