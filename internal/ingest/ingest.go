// Package ingest loads raw retail transactions from delimited files,
// spreadsheets and SQL databases into models.TransactionRecord values.
package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"rfm-dashboard/internal/config"
	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

// Stats describes what a Load call read.
type Stats struct {
	Rows             int `json:"rows"`
	Loaded           int `json:"loaded"`
	SkippedAnonymous int `json:"skipped_anonymous"`
}

type Source interface {
	Load(ctx context.Context) ([]models.TransactionRecord, Stats, error)
}

// Open picks a Source for cfg. An empty Kind is inferred from the Path
// extension.
func Open(cfg config.SourceConfig) (Source, error) {
	kind := cfg.Kind
	if kind == "" {
		switch strings.ToLower(filepath.Ext(cfg.Path)) {
		case ".xlsx", ".xlsm":
			kind = "xlsx"
		case ".csv", ".tsv", ".txt":
			kind = "csv"
		default:
			return nil, apperrors.InvalidInputf("cannot infer source kind from %q", cfg.Path)
		}
	}

	switch kind {
	case "csv":
		delim := ','
		if cfg.Delimiter != "" {
			delim = []rune(cfg.Delimiter)[0]
		}
		return &CSVSource{Path: cfg.Path, Delimiter: delim, Encoding: cfg.Encoding}, nil
	case "xlsx":
		return &XLSXSource{Path: cfg.Path, Sheet: cfg.Sheet}, nil
	case "mysql":
		return &MySQLSource{DSN: cfg.DSN, Table: cfg.Table, Since: cfg.Since}, nil
	case "postgres":
		return &PostgresSource{DSN: cfg.DSN, Table: cfg.Table, Since: cfg.Since}, nil
	default:
		return nil, apperrors.InvalidInputf("unknown source kind %q", kind)
	}
}

type batchResult struct {
	records   []models.TransactionRecord
	anonymous int
}

// rowParser parses header-mapped rows in bounded parallel batches. Results
// come back in input order.
type rowParser struct {
	parent  context.Context
	ctx     context.Context
	g       *errgroup.Group
	cols    columnIndex
	results []*batchResult
	batch   [][]string
	next    int
	rows    int
}

// newRowParser expects data rows to start at spreadsheet line firstLine.
func newRowParser(ctx context.Context, cols columnIndex, firstLine int) *rowParser {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	return &rowParser{
		parent: ctx,
		ctx:    gctx,
		g:      g,
		cols:   cols,
		batch:  make([][]string, 0, batchSize),
		next:   firstLine,
	}
}

func (p *rowParser) add(row []string) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	p.rows++
	p.batch = append(p.batch, row)
	if len(p.batch) >= batchSize {
		p.flush()
	}
	return nil
}

func (p *rowParser) flush() {
	if len(p.batch) == 0 {
		return
	}
	rows, first := p.batch, p.next
	out := &batchResult{}
	p.results = append(p.results, out)
	p.next += len(rows)
	p.batch = make([][]string, 0, batchSize)

	p.g.Go(func() error {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		out.records = make([]models.TransactionRecord, 0, len(rows))
		for i, row := range rows {
			rec, ok, err := parseRow(row, p.cols, first+i)
			if err != nil {
				return err
			}
			if !ok {
				out.anonymous++
				continue
			}
			out.records = append(out.records, rec)
		}
		return nil
	})
}

// discard drops any pending batch and waits for in-flight workers.
func (p *rowParser) discard() {
	p.batch = p.batch[:0]
	_ = p.g.Wait()
}

func (p *rowParser) wait() ([]models.TransactionRecord, Stats, error) {
	p.flush()
	if err := p.g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	if err := p.parent.Err(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Rows: p.rows}
	var total int
	for _, r := range p.results {
		total += len(r.records)
	}
	records := make([]models.TransactionRecord, 0, total)
	for _, r := range p.results {
		records = append(records, r.records...)
		stats.SkippedAnonymous += r.anonymous
	}
	stats.Loaded = len(records)
	return records, stats, nil
}
