package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/app"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync periodically and serve the HTTP API",
	Long: `Run as a long-lived service: sync every MARKSYNC_SYNC_INTERVAL, reload
the rules file on change, prune old state backups and serve /healthz,
/readyz, /stats, /bookmarks and POST /sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		return a.Serve(ctx)
	},
}
