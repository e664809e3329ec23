package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/reconcile"
	"github.com/David-Botos/vessel-recon/pkg/validate"
)

var validateFlags struct {
	thresholdFile string
	summary       string
	diffsDir      string
	historyDSN    string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check reconciliation artifacts against regression thresholds",
	Long: `Check the aggregate summary and presence files against regression
thresholds. Exits 0 when clean, 1 on failures and 2 on warnings only.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateFlags.thresholdFile, "threshold-file", "", "thresholds YAML (env RECON_THRESHOLDS)")
	f.StringVar(&validateFlags.summary, "summary", "", "aggregate summary CSV (default <diffs-dir>/_summary.csv)")
	f.StringVar(&validateFlags.diffsDir, "diffs-dir", "", "directory holding the presence files (env RECON_DIFF_DIR)")
	f.StringVar(&validateFlags.historyDSN, "history-dsn", "", "read fallback baseline match rates from this run store")
}

func runValidate(cmd *cobra.Command, args []string) error {
	thresholds, err := config.LoadThresholds(pick(validateFlags.thresholdFile, cfg.ThresholdsPath), logger)
	if err != nil {
		return err
	}

	diffsDir := pick(validateFlags.diffsDir, cfg.DiffDir)
	summaryPath := pick(validateFlags.summary, filepath.Join(diffsDir, reconcile.SummaryFileName))

	validator := validate.NewValidator(thresholds, logger)
	if validateFlags.historyDSN != "" {
		if rates, err := historyRates(cmd, validateFlags.historyDSN); err != nil {
			logger.Warn("Match rate history unavailable", zap.Error(err))
		} else {
			validator.WithHistory(rates)
		}
	}

	result := validator.ValidateArtifacts(summaryPath, diffsDir)
	result.Report(os.Stderr)

	if code := result.ExitCode(); code != validate.ExitPassed {
		return &exitError{code: code}
	}
	return nil
}

func historyRates(cmd *cobra.Command, dsn string) (map[string]float64, error) {
	runStore, err := openStore(cmd.Context(), dsn, nil)
	if err != nil {
		return nil, err
	}
	defer runStore.Close()
	return runStore.LatestMatchRates(cmd.Context())
}
