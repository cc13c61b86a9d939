// Package pipeline runs one segmentation pass: load transactions, build RFM
// features, cluster them into segments and publish the artifacts.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"rfm-dashboard/internal/cluster"
	"rfm-dashboard/internal/config"
	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/report"
	"rfm-dashboard/internal/rfm"
	"rfm-dashboard/internal/store"
)

type Options struct {
	Source    ingest.Source
	Snapshot  time.Time // zero: rfm.DefaultSnapshot
	K         int
	Labels    []string
	Method    string
	Seed      uint64
	Returns   rfm.ReturnsPolicy
	Bins      int
	OutputDir string
	RFMFile   string
	Progress  bool
}

// OptionsFromConfig opens the configured source and copies the segmentation
// settings.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	src, err := ingest.Open(cfg.Source)
	if err != nil {
		return Options{}, err
	}
	returns, err := rfm.ParseReturnsPolicy(cfg.Segment.ReturnsPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Source:    src,
		Snapshot:  cfg.Segment.SnapshotDate,
		K:         cfg.Segment.K,
		Labels:    cfg.Segment.Labels,
		Method:    cfg.Segment.Method,
		Seed:      cfg.Segment.Seed,
		Returns:   returns,
		Bins:      cfg.Segment.HistogramBins,
		OutputDir: cfg.Data.OutputDir,
		RFMFile:   cfg.Data.RFMFile,
		Progress:  cfg.Pipeline.Progress,
	}, nil
}

type Result struct {
	RunID     string
	Stats     ingest.Stats
	Snapshot  time.Time
	Records   []models.SegmentedRecord
	Report    *report.Report
	Artifacts []string
	Duration  time.Duration
}

type Runner struct {
	logger   *slog.Logger
	progress io.Writer
	now      func() time.Time
	rename   func(oldpath, newpath string) error
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger, progress: os.Stderr, now: time.Now, rename: os.Rename}
}

var stages = []string{"load", "features", "segments", "report", "artifacts", "commit"}

// Run executes every stage. Artifacts are staged beside their targets and only
// moved into place once all of them were written; on error the previous
// artifacts are left as they were.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Source == nil {
		return nil, apperrors.InvalidInput("no transaction source configured")
	}
	if opts.OutputDir == "" || opts.RFMFile == "" {
		return nil, apperrors.InvalidInput("output directory and RFM file are required")
	}
	if opts.Bins == 0 {
		opts.Bins = report.DefaultBins
	}

	start := r.now()
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	ctx, runSpan := observability.StartSpan(ctx, "pipeline.run")
	logger := observability.Logger(ctx, r.logger)

	bar := r.newBar(opts.Progress)

	res := &Result{RunID: runID}
	stage := func(name string, fn func(context.Context) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		bar.Describe(name)
		sctx, span := observability.StartSpan(ctx, "pipeline."+name)
		err := fn(sctx)
		span.End(logger, err)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		_ = bar.Add(1)
		return nil
	}

	var (
		transactions []models.TransactionRecord
		features     map[string]models.RFMRecord
		staging      string
		rfmStaged    string
	)
	defer func() {
		if staging != "" {
			if err := os.RemoveAll(staging); err != nil {
				logger.Warn("failed to remove staging directory", "path", staging, "error", err)
			}
		}
		if rfmStaged != "" {
			if err := os.Remove(rfmStaged); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove staged RFM table", "path", rfmStaged, "error", err)
			}
		}
	}()

	err := stage("load", func(ctx context.Context) error {
		var err error
		transactions, res.Stats, err = opts.Source.Load(ctx)
		if err == nil && len(transactions) == 0 {
			err = apperrors.InvalidInput("source contained no attributable transactions")
		}
		return err
	})
	if err == nil {
		logger.Info("transactions loaded",
			"rows", res.Stats.Rows,
			"loaded", res.Stats.Loaded,
			"skipped_anonymous", res.Stats.SkippedAnonymous)
		err = stage("features", func(context.Context) error {
			snapshot := opts.Snapshot
			if snapshot.IsZero() {
				var err error
				if snapshot, err = rfm.DefaultSnapshot(transactions); err != nil {
					return err
				}
			}
			res.Snapshot = snapshot
			var err error
			features, err = rfm.NewFeatureBuilder(opts.Returns).Build(transactions, snapshot)
			if err == nil && len(features) == 0 {
				err = apperrors.InvalidInput("no customers left after applying the returns policy")
			}
			return err
		})
	}
	if err == nil {
		err = stage("segments", func(ctx context.Context) error {
			c, err := cluster.New(opts.Method, opts.Seed)
			if err != nil {
				return apperrors.InvalidInputWrap(err, "clustering method")
			}
			res.Records, err = rfm.NewSegmentAssigner(c).Assign(ctx, rfm.Sorted(features), opts.K, opts.Labels)
			return err
		})
	}
	if err == nil {
		err = stage("report", func(context.Context) error {
			var err error
			res.Report, err = report.Build(res.Records, opts.Bins)
			return err
		})
	}
	if err == nil {
		err = stage("artifacts", func(context.Context) error {
			if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
				return err
			}
			staging = filepath.Join(opts.OutputDir, ".staging-"+runID)
			if err := os.Mkdir(staging, 0755); err != nil {
				return err
			}
			// Same directory as the table so the final rename never crosses devices.
			rfmStaged = filepath.Join(filepath.Dir(opts.RFMFile), ".staging-"+runID+"-"+filepath.Base(opts.RFMFile))
			return r.writeArtifacts(staging, rfmStaged, res)
		})
	}
	if err == nil {
		err = stage("commit", func(context.Context) error {
			published, err := r.commit(logger, runID, staging, rfmStaged, opts)
			res.Artifacts = published
			return err
		})
	}

	runSpan.End(logger, err)
	if err != nil {
		_ = bar.Exit()
		logger.Error("segmentation run failed", "error", err)
		return nil, err
	}
	_ = bar.Finish()

	res.Duration = r.now().Sub(start)
	logger.Info("segmentation run complete",
		"customers", len(res.Records),
		"segments", len(res.Report.Segments),
		"snapshot", res.Snapshot.Format(time.DateOnly),
		"duration", res.Duration)
	return res, nil
}

func (r *Runner) newBar(enabled bool) *progressbar.ProgressBar {
	return progressbar.NewOptions(len(stages),
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetVisibility(enabled),
		progressbar.OptionSetDescription("segmentation"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *Runner) writeArtifacts(dir, rfmFile string, res *Result) error {
	if err := store.SaveRFMTable(rfmFile, res.Records); err != nil {
		return err
	}
	if err := report.WriteCharts(dir, res.Report); err != nil {
		return apperrors.ExternalLibraryWrap(err, "render charts")
	}
	pdf, err := report.RenderPDF(res.Report, r.now())
	if err != nil {
		return apperrors.ExternalLibraryWrap(err, "render PDF")
	}
	return os.WriteFile(filepath.Join(dir, report.PDFFile), pdf, 0644)
}

type move struct {
	from, to string
	backup   string // empty when nothing exists at to
	backedUp bool
	placed   bool
}

// commit moves the staged artifacts into place, charts and PDF first and the
// RFM table last, since the dashboard reloads from the table. Existing
// artifacts are renamed aside first and put back if any move fails.
func (r *Runner) commit(logger *slog.Logger, runID, staging, rfmStaged string, opts Options) ([]string, error) {
	var moves []*move
	for _, name := range append(slices.Clone(report.ChartFiles), report.PDFFile) {
		moves = append(moves, &move{from: filepath.Join(staging, name), to: filepath.Join(opts.OutputDir, name)})
	}
	moves = append(moves, &move{from: rfmStaged, to: opts.RFMFile})

	for _, m := range moves {
		if _, err := os.Stat(m.from); err != nil {
			return nil, fmt.Errorf("staged artifact missing: %w", err)
		}
		info, err := os.Lstat(m.to)
		switch {
		case err == nil && info.IsDir():
			return nil, fmt.Errorf("publish %s: %s is a directory", filepath.Base(m.to), m.to)
		case err == nil:
			m.backup = m.to + ".bak-" + runID
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := r.publish(moves); err != nil {
		r.rollback(logger, moves)
		return nil, err
	}

	published := make([]string, 0, len(moves))
	for _, m := range moves {
		if m.backup != "" {
			if err := os.Remove(m.backup); err != nil {
				logger.Warn("failed to remove previous artifact", "path", m.backup, "error", err)
			}
		}
		published = append(published, m.to)
	}
	return published, nil
}

func (r *Runner) publish(moves []*move) error {
	for _, m := range moves {
		if m.backup != "" {
			if err := r.rename(m.to, m.backup); err != nil {
				return fmt.Errorf("set aside %s: %w", filepath.Base(m.to), err)
			}
			m.backedUp = true
		}
		if err := r.rename(m.from, m.to); err != nil {
			return fmt.Errorf("publish %s: %w", filepath.Base(m.to), err)
		}
		m.placed = true
	}
	return nil
}

// rollback undoes publish in reverse order.
func (r *Runner) rollback(logger *slog.Logger, moves []*move) {
	for _, m := range slices.Backward(moves) {
		if m.placed {
			if err := os.Remove(m.to); err != nil {
				logger.Error("failed to withdraw artifact", "path", m.to, "error", err)
			}
		}
		if m.backedUp {
			if err := r.rename(m.backup, m.to); err != nil {
				logger.Error("failed to restore previous artifact", "path", m.to, "backup", m.backup, "error", err)
			}
		}
	}
}
