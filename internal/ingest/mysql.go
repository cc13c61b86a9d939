package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

// MySQLSource reads transactions from a MySQL or MariaDB table. DSN is either
// a driver DSN or a mysql:// / mariadb:// URL.
type MySQLSource struct {
	DSN   string
	Table string
	Since time.Time
}

func (s *MySQLSource) Load(ctx context.Context) ([]models.TransactionRecord, Stats, error) {
	dsn, err := toMySQLDSN(s.DSN)
	if err != nil {
		return nil, Stats{}, apperrors.InvalidInputWrap(err, "invalid MySQL DSN")
	}
	query, args, err := selectTransactions(mysqlDialect, s.Table, s.Since)
	if err != nil {
		return nil, Stats{}, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, Stats{}, apperrors.ExternalLibraryWrap(err, "open MySQL")
	}
	defer db.Close()
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Stats{}, apperrors.ExternalLibraryWrap(err, "query transactions")
	}
	defer rows.Close()

	return collectRows(ctx, rows)
}

// toMySQLDSN accepts mysql:// and mariadb:// URLs as well as native DSNs and
// forces UTC time parsing.
func toMySQLDSN(dsn string) (string, error) {
	var cfg *mysql.Config
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		cfg = mysql.NewConfig()
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if cfg.User == "" || cfg.Addr == "" || cfg.DBName == "" {
			return "", fmt.Errorf("dsn must name user, host and database")
		}
	} else {
		var err error
		if cfg, err = mysql.ParseDSN(dsn); err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.InterpolateParams = true
	return cfg.FormatDSN(), nil
}
