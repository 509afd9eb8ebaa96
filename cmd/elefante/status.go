package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elefante-mem/elefante/internal/app"
	"github.com/elefante-mem/elefante/internal/lock"
	"github.com/elefante-mem/elefante/pkg/memory"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print lock and memory-count status (§6 system.status)",
	RunE:  runStatus,
}

const maxStatusScan = 100_000

var statusCountedStatuses = []memory.Status{
	memory.StatusActive, memory.StatusArchived, memory.StatusOrphan,
	memory.StatusRedundant, memory.StatusSuperseded,
}

type statusOutput struct {
	Locked bool           `json:"locked"`
	Holder *lock.Holder   `json:"holder,omitempty"`
	Counts map[string]int `json:"counts"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	locked, holder, _ := application.Locks().Status()

	counts := make(map[string]int, len(statusCountedStatuses)+1)
	for _, st := range statusCountedStatuses {
		rows, err := application.Graph().AllMemories(ctx, 0, maxStatusScan, memory.MemoryFilter{Status: st})
		if err != nil {
			return fmt.Errorf("count %s: %w", st, err)
		}
		counts[string(st)] = len(rows)
	}
	sessions, err := application.Graph().ListSessions(ctx, 0, maxStatusScan)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	counts["sessions"] = len(sessions)

	out := statusOutput{Locked: locked, Counts: counts}
	if locked {
		out.Holder = &holder
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
