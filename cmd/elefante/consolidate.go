package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/elefante-mem/elefante/internal/app"
)

var forceConsolidate bool

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run the temporal-decay consolidation pass (§6 memory.consolidate)",
	Long: `consolidate archives memories whose temporal strength has decayed below
the configured threshold, resolves active-title collisions, and reconciles
orphaned dual-writes. Without --force it is a dry run: proposed actions are
printed but nothing is mutated.`,
	RunE: runConsolidate,
}

func init() {
	consolidateCmd.Flags().BoolVar(&forceConsolidate, "force", false, "apply the proposed actions instead of only reporting them")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
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

	report, err := application.Consolidator().Consolidate(ctx, forceConsolidate)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
