package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/elefante-mem/elefante/pkg/memory"
)

func testMemory(id, title string) memory.Memory {
	now := time.Now()
	return memory.Memory{
		ID:                  id,
		Content:             "content for " + title,
		Title:               title,
		ContentHash:         "hash-" + id,
		Layer:               memory.LayerWorld,
		Sublayer:            memory.SublayerFact,
		Kind:                memory.KindFact,
		Importance:          5,
		Confidence:          0.8,
		CreatedAt:           now,
		LastAccessedAt:      now,
		AccessCount:         1,
		DecayRate:           0.01,
		ReinforcementFactor: 0.1,
		Status:              memory.StatusActive,
		Tags:                []string{"alpha", "beta"},
	}
}

func TestGraphStore_MemoryCRUDAndDedupLookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := testMemory("mem-1", "Prefers dark mode editors")
	if err := store.UpsertMemory(ctx, m); err != nil {
		t.Fatalf("UpsertMemory: %v", err)
	}

	got, err := store.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got == nil || got.Title != m.Title {
		t.Fatalf("GetMemory = %+v, want title %q", got, m.Title)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "alpha" {
		t.Errorf("Tags roundtrip = %v, want [alpha beta]", got.Tags)
	}

	byTitle, err := store.FindMemoryByTitle(ctx, m.Title)
	if err != nil {
		t.Fatalf("FindMemoryByTitle: %v", err)
	}
	if byTitle == nil || byTitle.ID != m.ID {
		t.Fatalf("FindMemoryByTitle = %+v, want id %q", byTitle, m.ID)
	}

	byHash, err := store.FindMemoryByContentHash(ctx, m.ContentHash)
	if err != nil {
		t.Fatalf("FindMemoryByContentHash: %v", err)
	}
	if byHash == nil || byHash.ID != m.ID {
		t.Fatalf("FindMemoryByContentHash = %+v, want id %q", byHash, m.ID)
	}

	missing, err := store.GetMemory(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetMemory (missing): %v", err)
	}
	if missing != nil {
		t.Errorf("GetMemory (missing) = %+v, want nil", missing)
	}

	if err := store.UpdateMemoryStatus(ctx, m.ID, memory.StatusArchived); err != nil {
		t.Fatalf("UpdateMemoryStatus: %v", err)
	}
	archived, err := store.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMemory after archive: %v", err)
	}
	if archived.Status != memory.StatusArchived {
		t.Errorf("Status after archive = %q, want %q", archived.Status, memory.StatusArchived)
	}

	// An archived memory no longer satisfies the dedup lookups, which are
	// restricted to active memories (I2).
	if hit, err := store.FindMemoryByTitle(ctx, m.Title); err != nil {
		t.Fatalf("FindMemoryByTitle after archive: %v", err)
	} else if hit != nil {
		t.Errorf("FindMemoryByTitle after archive = %+v, want nil", hit)
	}
}

func TestGraphStore_BumpAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m1, m2 := testMemory("mem-1", "First"), testMemory("mem-2", "Second")
	if err := store.UpsertMemory(ctx, m1); err != nil {
		t.Fatalf("UpsertMemory m1: %v", err)
	}
	if err := store.UpsertMemory(ctx, m2); err != nil {
		t.Fatalf("UpsertMemory m2: %v", err)
	}

	bumpTime := time.Now().Add(time.Hour)
	if err := store.BumpAccess(ctx, []string{"mem-1", "mem-2"}, bumpTime); err != nil {
		t.Fatalf("BumpAccess: %v", err)
	}

	got, err := store.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", got.AccessCount)
	}
	if diff := got.LastAccessedAt.Sub(bumpTime).Abs(); diff > time.Second {
		t.Errorf("LastAccessedAt = %v, want close to %v (diff %v)", got.LastAccessedAt, bumpTime, diff)
	}
}

func TestGraphStore_EntityUpsertMergesByNameAndType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertEntity(ctx, memory.Entity{Name: "Go", EntityType: "language", Props: ""})
	if err != nil {
		t.Fatalf("UpsertEntity (create): %v", err)
	}
	if id1 == "" {
		t.Fatal("expected a generated id")
	}

	id2, err := store.UpsertEntity(ctx, memory.Entity{Name: "Go", EntityType: "language", Props: `{"paradigm":"concurrent"}`})
	if err != nil {
		t.Fatalf("UpsertEntity (merge): %v", err)
	}
	if id2 != id1 {
		t.Fatalf("expected merge to resolve to the same id, got %q and %q", id1, id2)
	}

	got, err := store.GetEntity(ctx, id1)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Props != `{"paradigm":"concurrent"}` {
		t.Errorf("Props after merge = %q, want the updated value", got.Props)
	}
}

func TestGraphStore_FindByLabel_ExactPrefixFuzzy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Golang", "Gopher", "Rust"} {
		if _, err := store.UpsertEntity(ctx, memory.Entity{Name: name, EntityType: "topic"}); err != nil {
			t.Fatalf("UpsertEntity(%s): %v", name, err)
		}
	}

	exact, err := store.FindByLabel(ctx, "Rust", "", 5)
	if err != nil {
		t.Fatalf("FindByLabel (exact): %v", err)
	}
	if len(exact) != 1 || exact[0].Name != "Rust" {
		t.Fatalf("FindByLabel (exact) = %+v, want [Rust]", exact)
	}

	prefix, err := store.FindByLabel(ctx, "Go", "", 5)
	if err != nil {
		t.Fatalf("FindByLabel (prefix): %v", err)
	}
	if len(prefix) != 2 {
		t.Fatalf("FindByLabel (prefix) = %+v, want 2 matches", prefix)
	}

	fuzzy, err := store.FindByLabel(ctx, "Gplang", "", 5)
	if err != nil {
		t.Fatalf("FindByLabel (fuzzy): %v", err)
	}
	if len(fuzzy) == 0 {
		t.Fatal("FindByLabel (fuzzy) returned no candidates")
	}
}

func TestGraphStore_UpsertRelationship_RejectsMissingEndpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertEntity(ctx, memory.Entity{Name: "Go", EntityType: "language"})
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}

	err = store.UpsertRelationship(ctx, memory.Relationship{
		FromID: id, ToID: "ghost-entity", RelType: memory.RelRelatesTo,
	})
	if err == nil {
		t.Fatal("expected UpsertRelationship to fail for a missing endpoint")
	}
	if _, ok := err.(*memory.ErrEndpointMissing); !ok {
		t.Fatalf("expected *memory.ErrEndpointMissing, got %T: %v", err, err)
	}
}

func TestGraphStore_RelationshipsAndNeighborhood(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goID, err := store.UpsertEntity(ctx, memory.Entity{Name: "Go", EntityType: "language"})
	if err != nil {
		t.Fatalf("UpsertEntity Go: %v", err)
	}
	sqliteID, err := store.UpsertEntity(ctx, memory.Entity{Name: "SQLite", EntityType: "database"})
	if err != nil {
		t.Fatalf("UpsertEntity SQLite: %v", err)
	}
	modernCID, err := store.UpsertEntity(ctx, memory.Entity{Name: "modernc.org/sqlite", EntityType: "library"})
	if err != nil {
		t.Fatalf("UpsertEntity modernc: %v", err)
	}

	if err := store.UpsertRelationship(ctx, memory.Relationship{FromID: goID, ToID: sqliteID, RelType: memory.RelUses, Weight: 1}); err != nil {
		t.Fatalf("UpsertRelationship Go->SQLite: %v", err)
	}
	if err := store.UpsertRelationship(ctx, memory.Relationship{FromID: sqliteID, ToID: modernCID, RelType: memory.RelImplements, Weight: 1}); err != nil {
		t.Fatalf("UpsertRelationship SQLite->modernc: %v", err)
	}

	rels, err := store.GetRelationships(ctx, goID)
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(rels) != 1 || rels[0].ToID != sqliteID {
		t.Fatalf("GetRelationships(goID) = %+v, want one edge to SQLite", rels)
	}

	depth1, err := store.Neighborhood(ctx, goID, 1, memory.NeighborhoodFilter{})
	if err != nil {
		t.Fatalf("Neighborhood depth=1: %v", err)
	}
	if len(depth1) != 1 || depth1[0].ID != sqliteID {
		t.Fatalf("Neighborhood depth=1 = %+v, want [SQLite]", depth1)
	}

	depth2, err := store.Neighborhood(ctx, goID, 2, memory.NeighborhoodFilter{})
	if err != nil {
		t.Fatalf("Neighborhood depth=2: %v", err)
	}
	if len(depth2) != 2 {
		t.Fatalf("Neighborhood depth=2 = %+v, want 2 reachable entities", depth2)
	}

	if err := store.DeleteRelationship(ctx, goID, sqliteID, memory.RelUses); err != nil {
		t.Fatalf("DeleteRelationship: %v", err)
	}
	afterDelete, err := store.GetRelationships(ctx, goID)
	if err != nil {
		t.Fatalf("GetRelationships after delete: %v", err)
	}
	if len(afterDelete) != 0 {
		t.Errorf("GetRelationships after delete = %+v, want none", afterDelete)
	}
}

func TestGraphStore_SessionsAndMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	msgs := []memory.Message{
		{SessionID: "s1", Role: memory.RoleUser, Text: "hello", Timestamp: base},
		{SessionID: "s1", Role: memory.RoleAssistant, Text: "hi there", Timestamp: base.Add(time.Second)},
		{SessionID: "s1", Role: memory.RoleUser, Text: "how are you", Timestamp: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		if err := store.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	recent, err := store.RecentMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentMessages = %d messages, want 2", len(recent))
	}
	if recent[0].Text != "hi there" || recent[1].Text != "how are you" {
		t.Errorf("RecentMessages order = %+v, want chronological last-2", recent)
	}

	sessions, err := store.ListSessions(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("ListSessions = %+v, want one session s1", sessions)
	}
}

func TestGraphStore_QueryNamedPatterns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goID, err := store.UpsertEntity(ctx, memory.Entity{Name: "Go", EntityType: "language"})
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	m := testMemory("mem-1", "Learned about goroutines")
	if err := store.UpsertMemory(ctx, m); err != nil {
		t.Fatalf("UpsertMemory: %v", err)
	}
	if err := store.UpsertRelationship(ctx, memory.Relationship{FromID: goID, ToID: m.ID, RelType: memory.RelAbout}); err != nil {
		t.Fatalf("UpsertRelationship: %v", err)
	}

	rows, err := store.Query(ctx, "related_memories", map[string]any{"entity_id": goID})
	if err != nil {
		t.Fatalf("Query(related_memories): %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != m.ID {
		t.Fatalf("Query(related_memories) = %+v, want one row for mem-1", rows)
	}

	if _, err := store.Query(ctx, "nonexistent_pattern", nil); err == nil {
		t.Fatal("expected an error for an unrecognized pattern")
	}
}

func TestGraphStore_ExportSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMemory(ctx, testMemory("mem-1", "Snapshot me")); err != nil {
		t.Fatalf("UpsertMemory: %v", err)
	}
	if _, err := store.UpsertEntity(ctx, memory.Entity{Name: "Go", EntityType: "language"}); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}

	snap, err := store.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	if len(snap) == 0 {
		t.Fatal("ExportSnapshot returned empty output")
	}
}
