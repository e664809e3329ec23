// Command vesselrecon reconciles pipeline vessel exports against registry
// baselines and validates the results against regression thresholds.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/vessel-recon/pkg/config"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:           "vesselrecon",
	Short:         "Reconcile vessel registry exports against baselines",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger, err = newLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// exitError carries a process exit code without printing anything further
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading configuration (default .env)")
	rootCmd.AddCommand(diffCmd, validateCmd, compositesCmd, historyCmd)
}

func newLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
