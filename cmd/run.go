package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/rxsink/internal/app"
)

// runCmd runs the sinks on live sockets
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured sinks on live sockets",
	Long: `Run every configured sink on OS sockets in the foreground.

The process will:
  1. Load configuration and initialize logging
  2. Bind, join and listen on every sink address
  3. Serve metrics and sink status over HTTP (if enabled)
  4. Sample throughput and append records until SIGTERM or SIGINT`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSinks(cmd.Context()); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
	},
}

func runSinks(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fxApp := app.New(cfg)
	if err := fxApp.Err(); err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigs)

	slog.Info("sinks running, waiting for signals", "sinks", len(cfg.Sinks))
	select {
	case sig := <-sigs:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	slog.Info("sinks stopped")
	return nil
}
