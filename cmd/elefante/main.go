// Command elefante is the entry point for the elefante memory engine: a
// local, single-user persistent memory store for an AI agent, exposing its
// retrieval/ingestion/consolidation operations as MCP tools.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/elefante-mem/elefante/internal/config"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "elefante",
	Short: "elefante — local hybrid memory engine for AI agents",
	Long: `elefante ingests short text memories into a dual vector+graph index
and answers hybrid queries that fuse both with short-term session context.

Run "elefante serve" to expose the engine's MCP tool surface.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd, statusCmd, consolidateCmd, exportCmd)
}

// loadConfig loads and validates the config at configPath, printing a
// friendly message when the file is simply missing.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found — copy configs/example.yaml to get started", configPath)
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
