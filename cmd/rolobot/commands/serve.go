package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// newServeCmd creates the `rolobot serve` command that runs the recall
// scheduler daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recall scheduler daemon",
		Long: `Run rolobot as a daemon: the recall scheduler sweeps every minute and
nudges users about contacts they have not touched in a while.

Examples:
  rolobot serve
  rolobot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	// ── Wire subsystems ──
	svc, err := buildService(cfg, logger, consoleSender{})
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Start scheduler ──
	if !cfg.Recall.Enabled {
		return fmt.Errorf("recall is disabled in config; nothing to serve")
	}
	if err := svc.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("rolobot running, press Ctrl+C to stop",
		"store", cfg.Store.Path,
		"window_minutes", cfg.Recall.WindowMinutes,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	cancel()

	done := make(chan struct{})
	go func() {
		svc.scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}
