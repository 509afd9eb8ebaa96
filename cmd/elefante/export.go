package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/elefante-mem/elefante/internal/app"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full graph snapshot to a JSON file under data_dir/snapshots",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: data_dir/snapshots/<timestamp>.json)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown(ctx)

	snapshot, err := application.Graph().ExportSnapshot(ctx)
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" {
		snapDir := filepath.Join(cfg.DataDir, "snapshots")
		if err := os.MkdirAll(snapDir, 0o755); err != nil {
			return fmt.Errorf("export: mkdir %q: %w", snapDir, err)
		}
		out = filepath.Join(snapDir, fmt.Sprintf("%d.json", time.Now().UnixMilli()))
	}

	if err := os.WriteFile(out, snapshot, 0o644); err != nil {
		return fmt.Errorf("export: write %q: %w", out, err)
	}
	fmt.Println(out)
	return nil
}
