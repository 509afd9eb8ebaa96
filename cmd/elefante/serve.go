package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/elefante-mem/elefante/internal/app"
	"github.com/elefante-mem/elefante/internal/observe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine's MCP tool surface until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownProvider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "elefante"})
	if err != nil {
		return fmt.Errorf("init observability provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownProvider(shutdownCtx); err != nil {
			slog.Error("observability provider shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("elefante ready", "data_dir", cfg.DataDir, "transport", cfg.MCP.Transport)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return runErr
}
