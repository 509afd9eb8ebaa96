package memory

import (
	"context"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Shared filter / result types
// ─────────────────────────────────────────────────────────────────────────────

// MemoryFilter narrows a memory lookup to a subset of stored records (§4.1
// filters, §6 memory.list_all). All non-zero fields are applied as AND
// conditions. An empty Status defaults to [StatusActive] at the call site.
type MemoryFilter struct {
	Kind          Kind
	Layer         Layer
	Sublayer      Sublayer
	MinImportance int
	Tags          []string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Status        Status
}

// VectorFilter narrows a [VectorIndex.Query] to a subset of indexed records.
// Keys are matched against the flat metadata map stored alongside each
// embedding (§4.3 — metadata is flat scalar only).
type VectorFilter struct {
	Metadata map[string]string
}

// VectorMatch is one hit from [VectorIndex.Query].
type VectorMatch struct {
	ID         string
	Similarity float64 // cosine similarity, [0,1]
	Content    string
	Metadata   map[string]string
}

// VectorRecord is one row of the unfiltered enumeration returned by
// [VectorIndex.GetAll].
type VectorRecord struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  map[string]string
}

// NeighborhoodFilter restricts a [GraphStore.Neighborhood] traversal.
type NeighborhoodFilter struct {
	RelTypes   []RelType
	EntityType string
}

// ─────────────────────────────────────────────────────────────────────────────
// Vector Index Adapter (§4.3)
// ─────────────────────────────────────────────────────────────────────────────

// VectorIndex is the contract over an ANN + metadata store (§4.3). It is not
// an implementation mandate: similarity must be cosine in [0,1], metadata
// keys must be flat scalars (lists/sets comma-encoded by the caller), and
// GetAll must be the exact unfiltered enumeration used by export/consolidation
// — it must never rank by relevance.
//
// An adapter is single-writer per process; the engine serializes writes via
// the Lock Manager (§4.5), not the adapter itself.
type VectorIndex interface {
	// Upsert stores or replaces the embedding, content, and metadata for id.
	Upsert(ctx context.Context, id string, embedding []float32, content string, metadata map[string]string) error

	// Delete removes id. Deleting a non-existent id is not an error.
	Delete(ctx context.Context, id string) error

	// Query returns the k nearest neighbors of embedding by cosine similarity,
	// restricted to rows matching filter. Results are ordered by descending
	// similarity. Returns an empty (non-nil) slice when no rows match.
	Query(ctx context.Context, embedding []float32, k int, filter VectorFilter) ([]VectorMatch, error)

	// GetAll returns the unfiltered, unranked enumeration of all stored
	// records, paginated by offset/limit.
	GetAll(ctx context.Context, offset, limit int) ([]VectorRecord, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Graph Store Adapter (§4.4)
// ─────────────────────────────────────────────────────────────────────────────

// GraphStore is the contract over a labeled property graph with a
// single-writer file lock (§4.4). Node kinds are Memory, Entity and Session;
// relationships are directed edges keyed by (FromID, ToID, [RelType]). Property names
// `properties`, `type`, `label` are reserved at the data-manipulation layer
// — implementations must reject them at schema-creation time and never
// accept them as keys in a props map; callers use Props/EntityType fields on
// [Entity]/[Relationship] instead.
//
// GraphStore also owns the append-only session message log (§3: "Sessions
// are first-class graph nodes").
type GraphStore interface {
	// UpsertMemory inserts or completely replaces the Memory node m.
	UpsertMemory(ctx context.Context, m Memory) error

	// GetMemory retrieves a Memory by id. Returns (nil, nil) when absent.
	GetMemory(ctx context.Context, id string) (*Memory, error)

	// FindMemoryByTitle looks up the active memory with the exact title,
	// the primary deduplication key (I2). Returns (nil, nil) when absent.
	FindMemoryByTitle(ctx context.Context, title string) (*Memory, error)

	// FindMemoryByContentHash looks up an active memory by its secondary
	// dedup key. Returns (nil, nil) when absent.
	FindMemoryByContentHash(ctx context.Context, hash string) (*Memory, error)

	// FindSimilarTitles returns up to k active memory titles similar to
	// query within the same (layer, sublayer) partition, used by the
	// ingestion dedup probe to decide whether to link a similar_to edge.
	FindSimilarTitles(ctx context.Context, query string, layer Layer, sublayer Sublayer, k int) ([]Memory, error)

	// AllMemories returns memories matching filter, paginated by
	// offset/limit, in a stable (created_at, id) order. Used by
	// memory.list_all and consolidate. Returns an empty (non-nil) slice
	// when nothing matches.
	AllMemories(ctx context.Context, offset, limit int, filter MemoryFilter) ([]Memory, error)

	// BumpAccess atomically increments access_count and sets
	// last_accessed_at=at for every id in ids, in one batched write (§5).
	BumpAccess(ctx context.Context, ids []string, at time.Time) error

	// UpdateMemoryStatus transitions a memory to status. Used by
	// reinforcement, supersession, and consolidate.
	UpdateMemoryStatus(ctx context.Context, id string, status Status) error

	// UpsertEntity merges by (Name, EntityType): if a matching entity
	// exists its id is returned and its Props is replaced by e.Props; otherwise a new
	// entity is created. The resolved id is always returned.
	UpsertEntity(ctx context.Context, e Entity) (string, error)

	// GetEntity retrieves an entity by id. Returns (nil, nil) when absent.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// FindByLabel returns up to k entities (of entityType, when non-empty)
	// whose name matches match: exact/prefix SQL match first, falling back to
	// fuzzy matching when neither yields hits (§4.4). Memory titles are not
	// searched.
	FindByLabel(ctx context.Context, match string, entityType string, k int) ([]Entity, error)

	// UpsertRelationship inserts or replaces the edge identified by
	// (FromID, ToID, RelType). Returns [ErrEndpointMissing] if either
	// endpoint does not exist (I3).
	UpsertRelationship(ctx context.Context, r Relationship) error

	// GetRelationships returns relationships touching entityID.
	GetRelationships(ctx context.Context, entityID string, opts ...RelQueryOpt) ([]Relationship, error)

	// DeleteRelationship removes the edge. Deleting a non-existent edge is
	// not an error.
	DeleteRelationship(ctx context.Context, fromID, toID string, relType RelType) error

	// Neighborhood performs a bounded breadth-first traversal from id up to
	// depth hops (the start node excluded), restricted by filter.
	Neighborhood(ctx context.Context, id string, depth int, filter NeighborhoodFilter) ([]Entity, error)

	// Query runs a caller-supplied parameterized traversal expressed as a
	// small, fixed set of named graph patterns (graph.query, §6); params
	// are bound positionally by name. Returns result rows as string-keyed
	// maps.
	Query(ctx context.Context, pattern string, params map[string]any) ([]map[string]any, error)

	// ExportSnapshot serializes the entire graph (nodes + edges) as JSON.
	ExportSnapshot(ctx context.Context) ([]byte, error)

	// AppendMessage appends msg to its session's log, creating the Session
	// node on first use.
	AppendMessage(ctx context.Context, msg Message) error

	// RecentMessages returns the last n messages of sessionID in
	// chronological order.
	RecentMessages(ctx context.Context, sessionID string, n int) ([]Message, error)

	// ListSessions returns known sessions, paginated by offset/limit, most
	// recently created first.
	ListSessions(ctx context.Context, offset, limit int) ([]Session, error)

	// Close releases the adapter's resources and directory lock.
	Close() error
}

// relQueryOptions accumulates options for [GraphStore.GetRelationships].
// Unexported — callers configure it via [RelQueryOpt] functional options.
type relQueryOptions struct {
	relTypes     []RelType
	directionIn  bool
	directionOut bool
	limit        int
}

// RelQueryOpt is a functional option for [GraphStore.GetRelationships].
type RelQueryOpt func(*relQueryOptions)

// WithRelTypes restricts the returned relationships to the given types. An
// empty list (the default) returns all types.
func WithRelTypes(types ...RelType) RelQueryOpt {
	return func(o *relQueryOptions) { o.relTypes = append(o.relTypes, types...) }
}

// WithIncoming includes inbound edges (entityID is the target). With no
// direction option the default is outbound-only; WithIncoming alone selects
// inbound edges only.
func WithIncoming() RelQueryOpt { return func(o *relQueryOptions) { o.directionIn = true } }

// WithOutgoing includes outbound edges. Outbound-only is already the default
// when no direction option is given; combined with [WithIncoming] it selects
// both directions.
func WithOutgoing() RelQueryOpt { return func(o *relQueryOptions) { o.directionOut = true } }

// WithRelLimit caps the number of relationships returned. 0 means the
// implementation's own default.
func WithRelLimit(n int) RelQueryOpt { return func(o *relQueryOptions) { o.limit = n } }

// ApplyRelQueryOpts resolves a slice of [RelQueryOpt] so storage backends can
// read the option values without importing the unexported type.
func ApplyRelQueryOpts(opts []RelQueryOpt) (types []RelType, dirIn, dirOut bool, limit int) {
	o := &relQueryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if !o.directionIn && !o.directionOut {
		o.directionOut = true
	}
	return o.relTypes, o.directionIn, o.directionOut, o.limit
}

// ─────────────────────────────────────────────────────────────────────────────
// Embedder contract (§6)
// ─────────────────────────────────────────────────────────────────────────────

// Embedder turns text into a fixed-dimension vector. Embed must be pure and
// deterministic per (model, text); failures are returned as plain errors,
// which the ingestion pipeline reports under the EmbedderFailed error kind.
// Implementations need not be safe for concurrent use — the engine wraps any
// embedder with a serializing decorator when required (§5).
type Embedder interface {
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed dimension D of vectors this embedder
	// produces.
	Dimensions() int

	// ModelID identifies the embedding model, used for cache keys and
	// diagnostics.
	ModelID() string
}
