// Command segment reads the transaction source, segments customers by RFM
// and publishes the RFM table, charts and PDF report for the dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/pipeline"
	"rfm-dashboard/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, pipeline.NewRunner(logger), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "segmentation failed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, out io.Writer) error {
	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}
	return printSummary(out, res)
}

func printSummary(out io.Writer, res *pipeline.Result) error {
	fmt.Fprintf(out, "Run %s: %s customers from %s rows (%s anonymous rows skipped), snapshot %s, %s\n\n",
		res.RunID,
		report.FormatCount(len(res.Records)),
		report.FormatCount(res.Stats.Rows),
		report.FormatCount(res.Stats.SkippedAnonymous),
		res.Snapshot.Format(time.DateOnly),
		res.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Segment\tCustomers\tRecency\tFrequency\tMonetary\tRevenue\t")
	for _, s := range res.Report.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%s\t%s\t\n",
			s.Segment, report.FormatCount(s.Count), s.Recency, s.Frequency,
			report.FormatMoney(s.Monetary), report.FormatMoney(s.Revenue))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nArtifacts:")
	for _, path := range res.Artifacts {
		fmt.Fprintln(out, "  "+path)
	}
	return nil
}
