package config_test

import (
	"testing"

	"github.com/elefante-mem/elefante/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{LogLevel: "info", RetrievalDefaultLimit: 10, RetrievalMaxLimit: 500}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.RetrievalChanged || d.ConsolidateChanged {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{LogLevel: "info"}
	new := &config.Config{LogLevel: "debug"}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != "debug" {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_RetrievalLimitsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{RetrievalDefaultLimit: 10, RetrievalMaxLimit: 500}
	new := &config.Config{RetrievalDefaultLimit: 20, RetrievalMaxLimit: 500}

	d := config.Diff(old, new)
	if !d.RetrievalChanged {
		t.Error("expected RetrievalChanged=true")
	}
	if d.NewRetrievalLimits.DefaultLimit != 20 {
		t.Errorf("NewRetrievalLimits.DefaultLimit = %d, want 20", d.NewRetrievalLimits.DefaultLimit)
	}
}

func TestDiff_ConsolidateThresholdChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{ConsolidateStrengthThreshold: 0.3}
	new := &config.Config{ConsolidateStrengthThreshold: 0.4}

	d := config.Diff(old, new)
	if !d.ConsolidateChanged {
		t.Error("expected ConsolidateChanged=true")
	}
	if d.NewConsolidateThreshold != 0.4 {
		t.Errorf("NewConsolidateThreshold = %v, want 0.4", d.NewConsolidateThreshold)
	}
}

func TestDiff_DataDirNotTracked(t *testing.T) {
	t.Parallel()
	old := &config.Config{DataDir: "/a"}
	new := &config.Config{DataDir: "/b"}

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.RetrievalChanged || d.ConsolidateChanged {
		t.Errorf("data_dir change should not surface as a hot-reloadable diff, got %+v", d)
	}
}
