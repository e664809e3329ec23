package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/reconcile"
	"github.com/David-Botos/vessel-recon/pkg/source"
	"github.com/David-Botos/vessel-recon/pkg/store"
)

var diffFlags struct {
	baselineDir string
	currentDir  string
	diffDir     string
	configPath  string
	preferExt   string
	workers     int
	progress    bool
	metricsFile string
	storeDSN    string
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare every baseline with its pipeline export",
	Long: `Compare every baseline with its pipeline export and write per-dataset
diff, presence and summary files plus the aggregate _summary.csv.

Examples:
  vesselrecon diff --baseline-dir baseline --current-dir current --diff-dir diffs
  vesselrecon diff --workers 4 --progress --metrics-file recon.prom`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	f := diffCmd.Flags()
	f.StringVar(&diffFlags.baselineDir, "baseline-dir", "", "directory of cleaned baseline files (env RECON_BASELINE_DIR)")
	f.StringVar(&diffFlags.currentDir, "current-dir", "", "directory of pipeline exports (env RECON_CURRENT_DIR)")
	f.StringVar(&diffFlags.diffDir, "diff-dir", "", "output directory (env RECON_DIFF_DIR)")
	f.StringVar(&diffFlags.configPath, "config", "", "diff configuration YAML (env RECON_DIFF_CONFIG)")
	f.StringVar(&diffFlags.preferExt, "prefer-ext", "", "preferred pipeline export source, csv or xlsx (env PREFER_EXT)")
	f.IntVar(&diffFlags.workers, "workers", 0, "datasets compared concurrently (env WORKER_POOL_SIZE)")
	f.BoolVar(&diffFlags.progress, "progress", false, "show a progress bar on stderr")
	f.StringVar(&diffFlags.metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")
	f.StringVar(&diffFlags.storeDSN, "store-dsn", "", "record the run in this PostgreSQL or SQLite database (env RECON_STORE_DSN)")
}

func runDiff(cmd *cobra.Command, args []string) error {
	opts := reconcile.RunOptions{
		BaselineDir: pick(diffFlags.baselineDir, cfg.BaselineDir),
		CurrentDir:  pick(diffFlags.currentDir, cfg.CurrentDir),
		DiffDir:     pick(diffFlags.diffDir, cfg.DiffDir),
		PreferExt:   pick(diffFlags.preferExt, cfg.PreferExt),
		Workers:     cfg.WorkerPoolSize,
	}
	if diffFlags.workers > 0 {
		opts.Workers = diffFlags.workers
	}
	if diffFlags.progress {
		opts.Progress = os.Stderr
	}

	canon, err := newCanonicalizer(pick(diffFlags.configPath, cfg.DiffConfigPath))
	if err != nil {
		return err
	}
	loader, err := source.NewLoader(canon, logger)
	if err != nil {
		return err
	}
	engine, err := reconcile.NewEngine(canon, loader, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if runStore, err := openStore(ctx, diffFlags.storeDSN, cfg.Store); err != nil {
		logger.Warn("Run history disabled", zap.Error(err))
	} else if runStore != nil {
		defer runStore.Close()
		engine.WithRecorder(runStore)
	}

	report, runErr := engine.Run(ctx, opts)
	printReport(cmd.OutOrStdout(), report)

	metrics := engine.GetMetrics()
	logger.Debug(metrics.GenerateMetricsReport())
	if diffFlags.metricsFile != "" {
		if err := metrics.WriteTextfile(diffFlags.metricsFile); err != nil {
			logger.Warn("Failed to write metrics file",
				zap.String("path", diffFlags.metricsFile),
				zap.Error(err))
		}
	}

	return runErr
}

func newCanonicalizer(configPath string) (*cleaner.Canonicalizer, error) {
	diffCfg := config.LoadDiffConfig(configPath, logger)
	diffCfg, issues := diffCfg.WithEnvOverrides(nil)
	for _, issue := range issues {
		logger.Warn("Environment override ignored", zap.String("issue", issue))
	}
	return cleaner.NewCanonicalizer(diffCfg, logger)
}

// openStore returns nil when no store is configured
func openStore(ctx context.Context, dsn string, fromEnv *config.StoreConfig) (*store.RunStore, error) {
	switch {
	case dsn != "":
		return store.OpenDSN(ctx, dsn)
	case fromEnv != nil:
		return store.Open(ctx, fromEnv)
	default:
		return nil, nil
	}
}

func printReport(w io.Writer, report *reconcile.RunReport) {
	if report == nil {
		return
	}

	for _, result := range report.Results {
		switch {
		case !result.Compared:
			fmt.Fprintf(w, "[WARN] %s: failed: %s\n", result.Slug, firstError(result))
		case result.Mismatches == 0:
			fmt.Fprintf(w, "[OK] %s: %d cells, match rate %.4f\n",
				result.Slug, result.Summary.TotalCells, result.Summary.MatchRate)
		default:
			fmt.Fprintf(w, "[DIFF] %s: %d mismatches, match rate %.4f (null-aware %.4f)\n",
				result.Slug, result.Mismatches, result.Summary.MatchRate, result.Summary.NullAwareMatchRate)
		}
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "[WARN] %s: %s\n", result.Slug, warning)
		}
		if result.Compared {
			for _, record := range result.Errors {
				fmt.Fprintf(w, "[WARN] %s: %s\n", result.Slug, record.Message)
			}
		}
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(w, "[WARN] %s: skipped: %s\n", skipped.Slug, skipped.Reason)
	}
	if report.SummaryPath != "" {
		fmt.Fprintf(w, "Summary written to %s\n", report.SummaryPath)
	}
}

func firstError(result reconcile.DatasetResult) string {
	if len(result.Errors) == 0 {
		return "unknown error"
	}
	return result.Errors[0].Message
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
