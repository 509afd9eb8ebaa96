// Package app wires all elefante subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems (the data store, the embedder, the ingestion pipeline, the
// retrieval orchestrator, the consolidator, and the MCP tool server), Run
// serves the MCP tool surface until its context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithGraphStore, WithVectorIndex, WithEmbedder). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elefante-mem/elefante/internal/config"
	"github.com/elefante-mem/elefante/internal/consolidate"
	"github.com/elefante-mem/elefante/internal/embedder"
	"github.com/elefante-mem/elefante/internal/ingest"
	"github.com/elefante-mem/elefante/internal/lock"
	"github.com/elefante-mem/elefante/internal/mcpserver"
	"github.com/elefante-mem/elefante/internal/retrieval"
	"github.com/elefante-mem/elefante/pkg/memory"
	"github.com/elefante-mem/elefante/pkg/memory/sqlite"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// App owns all subsystem lifetimes and serves the engine's MCP tool surface.
type App struct {
	cfg *config.Config

	vector memory.VectorIndex
	graph  memory.GraphStore
	embed  memory.Embedder
	locks  *lock.Manager

	pipeline     *ingest.Pipeline
	orchestrator *retrieval.Orchestrator
	consolidator *consolidate.Consolidator
	mcpServer    *mcpsdk.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithGraphStore injects a graph store instead of opening one from config.
func WithGraphStore(g memory.GraphStore) Option {
	return func(a *App) { a.graph = g }
}

// WithVectorIndex injects a vector index instead of opening one from config.
func WithVectorIndex(v memory.VectorIndex) Option {
	return func(a *App) { a.vector = v }
}

// WithEmbedder injects an embedder instead of constructing one from config.
func WithEmbedder(e memory.Embedder) Option {
	return func(a *App) { a.embed = e }
}

// New creates an App by wiring all subsystems together: the data store (a
// single [sqlite.Store] serving both [memory.VectorIndex] and
// [memory.GraphStore] unless injected), the embedder (per
// cfg.Embedder.Kind), the write lock, the ingestion pipeline, the retrieval
// orchestrator, the consolidator, and the MCP tool server.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initEmbedder(); err != nil {
		return nil, fmt.Errorf("app: init embedder: %w", err)
	}

	a.locks = lock.New(cfg.DataDir)

	a.pipeline = ingest.New(a.vector, a.graph, a.embed, a.locks, ingest.WithDeadline(ingestDeadline))
	a.orchestrator = retrieval.New(a.vector, a.graph, a.embed)
	a.consolidator = consolidate.New(a.graph, consolidate.WithStrengthThreshold(cfg.ConsolidateStrengthThreshold))

	a.mcpServer = mcpserver.New(mcpserver.Deps{
		Pipeline:     a.pipeline,
		Orchestrator: a.orchestrator,
		Consolidator: a.consolidator,
		Graph:        a.graph,
		Locks:        a.locks,
	})

	return a, nil
}

// ingestDeadline is the per-call ingestion operation deadline.
const ingestDeadline = 30 * time.Second

// initStore opens the SQLite-backed store unless both backends were injected.
func (a *App) initStore(ctx context.Context) error {
	if a.vector != nil && a.graph != nil {
		return nil
	}
	store, err := sqlite.Open(ctx, a.cfg.DataDir)
	if err != nil {
		return err
	}
	if a.vector == nil {
		a.vector = store
	}
	if a.graph == nil {
		a.graph = store
	}
	a.closers = append(a.closers, store.Close)
	return nil
}

// initEmbedder constructs the configured embedder unless one was injected.
func (a *App) initEmbedder() error {
	if a.embed != nil {
		return nil
	}

	switch a.cfg.Embedder.Kind {
	case "ollama":
		o, err := embedder.NewOllama(a.cfg.Embedder.BaseURL, a.cfg.Embedder.Model,
			embedder.WithDimensions(a.cfg.EmbeddingDim))
		if err != nil {
			return err
		}
		a.embed = embedder.Serialize(o)
	case "hash", "":
		a.embed = embedder.NewDeterministic(a.cfg.EmbeddingDim)
	default:
		return fmt.Errorf("unknown embedder kind %q", a.cfg.Embedder.Kind)
	}
	return nil
}

// Graph returns the graph store backend. Exposed for CLI subcommands that
// need direct access (export, status) without going through MCP tools.
func (a *App) Graph() memory.GraphStore { return a.graph }

// Vector returns the vector index backend.
func (a *App) Vector() memory.VectorIndex { return a.vector }

// Locks returns the write lock manager.
func (a *App) Locks() *lock.Manager { return a.locks }

// Pipeline returns the ingestion pipeline.
func (a *App) Pipeline() *ingest.Pipeline { return a.pipeline }

// Orchestrator returns the retrieval orchestrator.
func (a *App) Orchestrator() *retrieval.Orchestrator { return a.orchestrator }

// Consolidator returns the consolidator.
func (a *App) Consolidator() *consolidate.Consolidator { return a.consolidator }

// Run serves the MCP tool surface over the configured transport until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "transport", a.cfg.MCP.Transport, "data_dir", a.cfg.DataDir)
	return mcpserver.Serve(ctx, a.mcpServer, a.cfg.MCP.Transport, a.cfg.MCP.ListenAddr, a.graph)
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
