package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/app"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one incremental sync",
	Long: `Fetch the full bookmark listing, process new and changed items and
commit the result once.

Interrupting the run (Ctrl-C) keeps everything finished so far.

Examples:
  marksync run
  marksync run --dry-run --json`,
	RunE: runSync,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the diff without enriching or committing")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.RunOnce(ctx, dryRun)
	if res == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
	} else {
		printResult(out, res)
	}

	if err != nil {
		return fmt.Errorf("state committed but delivery failed: %w", err)
	}
	if res.Interrupted {
		return errors.New("run interrupted, remaining items will be processed next time")
	}
	return nil
}

func printResult(w io.Writer, res *reconcile.Result) {
	if res.DryRun {
		fmt.Fprintf(w, "dry run %s\n", res.RunID)
		fmt.Fprintf(w, "  to process: %d\n", len(res.Diff.ToProcess))
		for _, id := range res.Diff.ToProcess {
			fmt.Fprintf(w, "    + %s\n", id)
		}
		fmt.Fprintf(w, "  unchanged:  %d\n", len(res.Diff.Unchanged))
		fmt.Fprintf(w, "  tombstoned: %d\n", len(res.Diff.Tombstoned))
		for _, id := range res.Diff.Tombstoned {
			fmt.Fprintf(w, "    - %s\n", id)
		}
		return
	}

	counts := map[string]int{}
	for _, rec := range res.Updated {
		counts[string(rec.Status)]++
	}
	fmt.Fprintf(w, "run %s (%s)\n", res.RunID, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  processed:  %d (enriched %d, failed %d, skipped %d)\n",
		len(res.Updated), counts["enriched"], counts["failed"], counts["skipped"])
	fmt.Fprintf(w, "  unchanged:  %d\n", len(res.Diff.Unchanged))
	fmt.Fprintf(w, "  tombstoned: %d\n", len(res.Tombstoned))
	if !res.Committed {
		fmt.Fprintln(w, "  nothing to commit")
	}
}
