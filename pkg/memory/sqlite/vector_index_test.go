package sqlite_test

import (
	"context"
	"testing"

	"github.com/elefante-mem/elefante/pkg/memory"
)

func TestVectorIndex_UpsertQueryDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vecs := map[string][]float32{
		"a": {1, 0, 0, 0},
		"b": {0.9, 0.1, 0, 0},
		"c": {0, 1, 0, 0},
	}
	for id, v := range vecs {
		if err := store.Upsert(ctx, id, v, "content-"+id, map[string]string{"kind": "fact"}); err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
	}

	matches, err := store.Query(ctx, []float32{1, 0, 0, 0}, 2, memory.VectorFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("expected closest match to be %q, got %q", "a", matches[0].ID)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Errorf("expected descending similarity order, got %v then %v", matches[0].Similarity, matches[1].Similarity)
	}

	filtered, err := store.Query(ctx, []float32{0, 1, 0, 0}, 10, memory.VectorFilter{Metadata: map[string]string{"kind": "fact"}})
	if err != nil {
		t.Fatalf("Query with filter: %v", err)
	}
	if len(filtered) != 3 {
		t.Fatalf("expected filter to keep all 3 matching-metadata rows, got %d", len(filtered))
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	after, err := store.Query(ctx, []float32{1, 0, 0, 0}, 10, memory.VectorFilter{})
	if err != nil {
		t.Fatalf("Query after delete: %v", err)
	}
	for _, m := range after {
		if m.ID == "b" {
			t.Fatal("deleted id still present in query results")
		}
	}
}

func TestVectorIndex_GetAll_Unranked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := []string{"z", "a", "m"}
	for _, id := range ids {
		if err := store.Upsert(ctx, id, []float32{1, 2, 3}, "c", nil); err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
	}

	all, err := store.GetAll(ctx, 0, 10)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// Ordered by id, not by any relevance ranking.
	want := []string{"a", "m", "z"}
	for i, rec := range all {
		if rec.ID != want[i] {
			t.Errorf("GetAll[%d] = %q, want %q", i, rec.ID, want[i])
		}
	}
}

func TestVectorIndex_Delete_NonExistentIsNotError(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete(context.Background(), "does-not-exist"); err != nil {
		t.Fatalf("Delete of missing id returned error: %v", err)
	}
}
