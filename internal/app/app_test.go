package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/elefante-mem/elefante/internal/app"
	"github.com/elefante-mem/elefante/internal/config"
	"github.com/elefante-mem/elefante/pkg/memory/mock"
)

// testConfig returns a minimal config suitable for wiring an App over mock
// backends.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:                      t.TempDir(),
		EmbeddingDim:                 8,
		LockStaleMS:                  30000,
		LockAcquireTimeoutMS:         5000,
		RetrievalDefaultLimit:        10,
		RetrievalMaxLimit:            500,
		MinSimilarityDefault:         0.3,
		ConversationHalfLifeMinutes:  60,
		ConversationWindow:           20,
		ConsolidateStrengthThreshold: 0.3,
		MCP:                          config.MCPConfig{Transport: "stdio"},
	}
}

func testOptions() []app.Option {
	embed := &mock.Embedder{DimensionsValue: 8, ModelIDValue: "test", EmbedResult: []float32{1, 0, 0, 0, 0, 0, 0, 0}}
	return []app.Option{
		app.WithVectorIndex(mock.NewVectorIndex()),
		app.WithGraphStore(mock.NewGraphStore()),
		app.WithEmbedder(embed),
	}
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), testOptions()...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if a == nil {
		t.Fatal("New() returned nil app")
	}
	if a.Pipeline() == nil {
		t.Error("expected a non-nil ingestion pipeline")
	}
	if a.Orchestrator() == nil {
		t.Error("expected a non-nil retrieval orchestrator")
	}
	if a.Consolidator() == nil {
		t.Error("expected a non-nil consolidator")
	}
}

func TestNew_RejectsUnknownEmbedderKind(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Embedder.Kind = "not-a-real-embedder"

	_, err := app.New(context.Background(), cfg,
		app.WithVectorIndex(mock.NewVectorIndex()),
		app.WithGraphStore(mock.NewGraphStore()),
	)
	if err == nil {
		t.Fatal("expected an error for an unknown embedder kind")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), testOptions()...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// Shutdown is idempotent: a second call must not block or error.
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_RunServesUntilCancelled(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), testOptions()...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	// stdio transport blocks on stdin; give it a moment to start, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
