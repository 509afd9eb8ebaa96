package consolidate_test

import (
	"context"
	"testing"
	"time"

	"github.com/elefante-mem/elefante/internal/consolidate"
	"github.com/elefante-mem/elefante/pkg/memory"
	"github.com/elefante-mem/elefante/pkg/memory/mock"
)

func seed(t *testing.T, g *mock.GraphStore, m memory.Memory) {
	t.Helper()
	if err := g.UpsertMemory(context.Background(), m); err != nil {
		t.Fatalf("UpsertMemory: %v", err)
	}
}

func TestConsolidate_DryRunDoesNotMutateState(t *testing.T) {
	g := mock.NewGraphStore()
	now := time.Now().UTC()

	seed(t, g, memory.Memory{
		ID: "weak", Title: "weak-memory", Status: memory.StatusActive,
		Importance: 1, DecayRate: 5.0, ReinforcementFactor: 0, CreatedAt: now.Add(-90 * 24 * time.Hour),
		AccessCount: 1, LastAccessedAt: now,
	})

	c := consolidate.New(g)
	report, err := c.Consolidate(context.Background(), false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.Applied {
		t.Error("Applied should be false for a dry run")
	}
	if report.Stats.Archived == 0 {
		t.Fatal("expected the decayed memory to be proposed for archival")
	}

	stored, _ := g.GetMemory(context.Background(), "weak")
	if stored.Status != memory.StatusActive {
		t.Errorf("dry run must not mutate state: status = %q, want active", stored.Status)
	}
}

func TestConsolidate_ArchivesDecayedMemory(t *testing.T) {
	g := mock.NewGraphStore()
	now := time.Now().UTC()

	seed(t, g, memory.Memory{
		ID: "weak", Title: "weak-memory", Status: memory.StatusActive,
		Importance: 1, DecayRate: 5.0, ReinforcementFactor: 0, CreatedAt: now.Add(-90 * 24 * time.Hour),
		AccessCount: 1, LastAccessedAt: now,
	})
	seed(t, g, memory.Memory{
		ID: "strong", Title: "strong-memory", Status: memory.StatusActive,
		Importance: 9, DecayRate: 0.001, ReinforcementFactor: 0.5, CreatedAt: now,
		AccessCount: 10, LastAccessedAt: now,
	})

	c := consolidate.New(g)
	report, err := c.Consolidate(context.Background(), true)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if !report.Applied {
		t.Error("Applied should be true for force=true")
	}

	weak, _ := g.GetMemory(context.Background(), "weak")
	if weak.Status != memory.StatusArchived {
		t.Errorf("weak memory status: got %q, want archived", weak.Status)
	}
	strong, _ := g.GetMemory(context.Background(), "strong")
	if strong.Status != memory.StatusActive {
		t.Errorf("strong memory status: got %q, want active", strong.Status)
	}
}

func TestConsolidate_TitleCollisionResolvesToOneSurvivor(t *testing.T) {
	g := mock.NewGraphStore()
	now := time.Now().UTC()

	// Two groups of 2 colliding titles, one singleton (S6).
	seed(t, g, memory.Memory{ID: "a1", Title: "dup-one", Status: memory.StatusActive, Importance: 5, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})
	seed(t, g, memory.Memory{ID: "a2", Title: "dup-one", Status: memory.StatusActive, Importance: 8, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})
	seed(t, g, memory.Memory{ID: "b1", Title: "dup-two", Status: memory.StatusActive, Importance: 5, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})
	seed(t, g, memory.Memory{ID: "b2", Title: "dup-two", Status: memory.StatusActive, Importance: 5, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now.Add(time.Hour)})
	seed(t, g, memory.Memory{ID: "solo", Title: "unique-one", Status: memory.StatusActive, Importance: 5, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})

	c := consolidate.New(g)
	report, err := c.Consolidate(context.Background(), true)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.Stats.MarkedRedundant != 2 {
		t.Fatalf("MarkedRedundant: got %d, want 2", report.Stats.MarkedRedundant)
	}

	active := 0
	for _, id := range []string{"a1", "a2", "b1", "b2", "solo"} {
		m, _ := g.GetMemory(context.Background(), id)
		if m.Status == memory.StatusActive {
			active++
		}
	}
	if active != 3 {
		t.Errorf("active count: got %d, want 3", active)
	}

	a2, _ := g.GetMemory(context.Background(), "a2")
	if a2.Status != memory.StatusActive {
		t.Error("a2 (higher importance) should survive as active")
	}
	rels, err := g.GetRelationships(context.Background(), "a1", memory.WithRelTypes(memory.RelSimilarTo))
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(rels) != 1 || rels[0].ToID != "a2" {
		t.Errorf("expected a1 similar_to a2, got %+v", rels)
	}
}

func TestConsolidate_IdempotentOnSecondApply(t *testing.T) {
	g := mock.NewGraphStore()
	now := time.Now().UTC()

	seed(t, g, memory.Memory{ID: "a1", Title: "dup", Status: memory.StatusActive, Importance: 5, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})
	seed(t, g, memory.Memory{ID: "a2", Title: "dup", Status: memory.StatusActive, Importance: 8, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})

	c := consolidate.New(g)
	first, err := c.Consolidate(context.Background(), true)
	if err != nil {
		t.Fatalf("first Consolidate: %v", err)
	}
	second, err := c.Consolidate(context.Background(), true)
	if err != nil {
		t.Fatalf("second Consolidate: %v", err)
	}
	if second.Stats.MarkedRedundant != 0 || second.Stats.Archived != 0 {
		t.Errorf("second pass should be a no-op, got stats %+v (first was %+v)", second.Stats, first.Stats)
	}
}

func TestConsolidate_ReconcilesOrphans(t *testing.T) {
	g := mock.NewGraphStore()
	now := time.Now().UTC()

	seed(t, g, memory.Memory{ID: "orphan1", Title: "half-written", Status: memory.StatusOrphan, Importance: 5, DecayRate: 0.001, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})

	c := consolidate.New(g)
	report, err := c.Consolidate(context.Background(), true)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.Stats.OrphansResolved != 1 {
		t.Fatalf("OrphansResolved: got %d, want 1", report.Stats.OrphansResolved)
	}
	m, _ := g.GetMemory(context.Background(), "orphan1")
	if m.Status != memory.StatusActive {
		t.Errorf("orphan should be reconciled to active, got %q", m.Status)
	}
}

func TestConsolidate_CustomStrengthThreshold(t *testing.T) {
	g := mock.NewGraphStore()
	now := time.Now().UTC()

	seed(t, g, memory.Memory{ID: "m1", Title: "borderline", Status: memory.StatusActive, Importance: 5, DecayRate: 0.01, CreatedAt: now, LastAccessedAt: now, AccessCount: 1})

	lenient := consolidate.New(g, consolidate.WithStrengthThreshold(0))
	report, err := lenient.Consolidate(context.Background(), false)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.Stats.Archived != 0 {
		t.Errorf("threshold 0 should archive nothing, got %d", report.Stats.Archived)
	}
}
