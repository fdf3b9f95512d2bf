package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/state"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the committed state",
	Long: `Print record counts by status, tag and folder from the state file.
Read-only: safe to run while a sync or the daemon is active.`,
	RunE: runStats,
}

type statsOutput struct {
	StateFile string       `json:"state_file"`
	Backups   int          `json:"backups"`
	Stats     domain.Stats `json:"stats"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	store, err := state.NewFileStore(cfg.StateFile, state.Options{})
	if err != nil {
		return err
	}
	snap, err := store.Load()
	if err != nil {
		return err
	}
	backups, err := store.Backups()
	if err != nil {
		return err
	}

	out := statsOutput{
		StateFile: store.Path(),
		Backups:   len(backups),
		Stats:     domain.ComputeStats(snap),
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	st := out.Stats
	fmt.Fprintf(w, "%s (%d backups)\n", out.StateFile, out.Backups)
	fmt.Fprintf(w, "  total: %d (active %d, tombstoned %d, enriched %d)\n", st.Total, st.Active, st.Tombstoned, st.Enriched)
	if !st.LastUpdated.IsZero() {
		fmt.Fprintf(w, "  last updated: %s\n", st.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	printCounts(cmd, "status", statusCounts(st.ByStatus))
	printCounts(cmd, "tags", st.ByTag)
	printCounts(cmd, "folders", st.ByFolder)
	return nil
}

func statusCounts(in map[domain.Status]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

// printCounts lists counts by descending value, then key.
func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-20s %d\n", k, counts[k])
	}
}
