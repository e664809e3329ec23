package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/David-Botos/vessel-recon/pkg/reconcile"
	"github.com/David-Botos/vessel-recon/pkg/source"
)

var compositesFlags struct {
	baseline   string
	pipeline   string
	currentDir string
	configPath string
	slug       string
}

var compositesCmd = &cobra.Command{
	Use:   "composites",
	Short: "Explain which composite key sets engage for a dataset pair",
	Long: `Evaluate every configured composite key set for one baseline in isolation
and report column presence, key uniqueness, overlap and a verdict.

Examples:
  vesselrecon composites --baseline baseline/ccsbt.csv --pipeline current/CCSBT_stage.csv
  vesselrecon composites --baseline baseline/iotc.csv --current-dir current`,
	Args: cobra.NoArgs,
	RunE: runComposites,
}

func init() {
	f := compositesCmd.Flags()
	f.StringVar(&compositesFlags.baseline, "baseline", "", "baseline file")
	f.StringVar(&compositesFlags.pipeline, "pipeline", "", "pipeline export file (default: discovered in --current-dir)")
	f.StringVar(&compositesFlags.currentDir, "current-dir", "", "directory of pipeline exports (env RECON_CURRENT_DIR)")
	f.StringVar(&compositesFlags.configPath, "config", "", "diff configuration YAML (env RECON_DIFF_CONFIG)")
	f.StringVar(&compositesFlags.slug, "slug", "", "dataset slug override")
	_ = compositesCmd.MarkFlagRequired("baseline")
}

func runComposites(cmd *cobra.Command, args []string) error {
	canon, err := newCanonicalizer(pick(compositesFlags.configPath, cfg.DiffConfigPath))
	if err != nil {
		return err
	}
	loader, err := source.NewLoader(canon, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	baseline, err := loader.LoadBaseline(ctx, compositesFlags.baseline)
	if err != nil {
		return err
	}
	if compositesFlags.slug != "" {
		baseline.Slug = strings.ToUpper(compositesFlags.slug)
	}
	if baseline.Slug == "" {
		return errors.New("baseline slug is empty, pass --slug")
	}

	pipelinePath := compositesFlags.pipeline
	if pipelinePath == "" {
		pipelinePath, err = source.FindPipelineExport(
			pick(compositesFlags.currentDir, cfg.CurrentDir), baseline.Slug, cfg.PreferExt)
		if err != nil {
			return err
		}
	}
	pipeline, err := loader.LoadPipeline(ctx, pipelinePath, baseline.Slug)
	if err != nil {
		return err
	}

	diagnostics := reconcile.DiagnoseComposites(canon, baseline, pipeline)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d baseline rows, %d pipeline rows, %d composite sets\n",
		baseline.Slug, len(baseline.Rows), len(pipeline.Rows), len(diagnostics))
	for _, d := range diagnostics {
		fmt.Fprintln(out)
		fmt.Fprint(out, d.String())
	}
	return nil
}
