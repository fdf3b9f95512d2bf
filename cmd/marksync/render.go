package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/render"
	"github.com/MrSnakeDoc/marksync/internal/state"
)

var renderDir string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Rebuild every markdown note from the committed state",
	Long: `Regenerate notes and index.md for every record in the state file.
Normal runs only rewrite what changed; use this after editing templates or
pointing MARKSYNC_OUTPUT_DIR somewhere new.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderDir, "out", "o", "", "Output directory (overrides MARKSYNC_OUTPUT_DIR)")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	dir := cfg.OutputDir
	if renderDir != "" {
		dir = renderDir
	}
	if dir == "" {
		return errors.New("no output directory: set MARKSYNC_OUTPUT_DIR or --out")
	}

	store, err := state.NewFileStore(cfg.StateFile, state.Options{})
	if err != nil {
		return err
	}
	snap, err := store.Load()
	if err != nil {
		return err
	}

	md, err := render.NewMarkdown(dir, logger.Nop())
	if err != nil {
		return err
	}
	n, err := md.RenderAll(snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rendered %d notes into %s\n", n, dir)
	return nil
}
