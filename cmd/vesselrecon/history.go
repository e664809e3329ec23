package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/David-Botos/vessel-recon/pkg/store"
)

var historyFlags struct {
	storeDSN string
	runID    string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded reconciliation runs",
	Long: `List the runs recorded in the run store, newest first. With --run, print
the dataset summaries of that run instead.

Examples:
  vesselrecon history --store-dsn file:history.db
  vesselrecon history --store-dsn file:history.db --run 3f0c...`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.storeDSN, "store-dsn", "", "PostgreSQL or SQLite run store (env RECON_STORE_DSN)")
	f.StringVar(&historyFlags.runID, "run", "", "print the dataset summaries of this run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runStore, err := openStore(ctx, historyFlags.storeDSN, cfg.Store)
	if err != nil {
		return err
	}
	if runStore == nil {
		return errors.New("no run store configured, pass --store-dsn")
	}
	defer runStore.Close()

	if historyFlags.runID != "" {
		rows, err := runStore.RunSummaries(ctx, historyFlags.runID)
		if err != nil {
			return err
		}
		printRunSummaries(cmd.OutOrStdout(), historyFlags.runID, rows)
		return nil
	}

	runs, err := runStore.Runs(ctx)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []store.RunRow) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  %d datasets\n",
			run.StartedAt().Format(time.RFC3339), run.RunID, run.DatasetCount)
	}
}

func printRunSummaries(w io.Writer, runID string, rows []store.SummaryRow) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "No summaries for run %s\n", runID)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s: %d cells, match rate %.4f (null-aware %.4f), aligned %d/%d/%d\n",
			row.Slug, row.TotalCells, row.MatchRate, row.NullAwareMatchRate,
			row.AlignedByJoinKey, row.AlignedByComposite, row.AlignedByRowIndex)
	}
}
