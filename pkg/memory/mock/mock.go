// Package mock provides in-memory fakes of the [memory.VectorIndex],
// [memory.GraphStore], and [memory.Embedder] contracts for use in unit tests
// of higher-level packages (ingestion, retrieval, session context) that
// would otherwise require a real SQLite-backed store.
//
// Unlike a canned-response test double, these fakes hold real state in Go
// maps and implement the contracts' actual semantics (dedup lookups,
// upserts, neighborhood traversal) well enough to drive the packages under
// test; they are not a substitute for the sqlite-backed integration tests.
package mock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/elefante-mem/elefante/pkg/memory"
)

var _ memory.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory fake of [memory.VectorIndex].
type VectorIndex struct {
	mu   sync.Mutex
	rows map[string]memory.VectorRecord
}

// NewVectorIndex returns an empty VectorIndex fake.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{rows: make(map[string]memory.VectorRecord)}
}

func (v *VectorIndex) Upsert(_ context.Context, id string, embedding []float32, content string, metadata map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows[id] = memory.VectorRecord{ID: id, Embedding: embedding, Content: content, Metadata: metadata}
	return nil
}

func (v *VectorIndex) Delete(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.rows, id)
	return nil
}

func (v *VectorIndex) Query(_ context.Context, embedding []float32, k int, filter memory.VectorFilter) ([]memory.VectorMatch, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	matches := make([]memory.VectorMatch, 0, len(v.rows))
	for _, row := range v.rows {
		if !matchesMetadata(row.Metadata, filter.Metadata) {
			continue
		}
		matches = append(matches, memory.VectorMatch{
			ID:         row.ID,
			Similarity: cosine(embedding, row.Embedding),
			Content:    row.Content,
			Metadata:   row.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (v *VectorIndex) GetAll(_ context.Context, offset, limit int) ([]memory.VectorRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ids := make([]string, 0, len(v.rows))
	for id := range v.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return []memory.VectorRecord{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(ids) {
		end = len(ids)
	}

	out := make([]memory.VectorRecord, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, v.rows[id])
	}
	return out, nil
}

func matchesMetadata(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ memory.Embedder = (*Embedder)(nil)

// Embedder is a canned-response fake of [memory.Embedder], in the teacher's
// mock.Provider call-recording style (this contract has no state worth
// faking, unlike VectorIndex/GraphStore).
type Embedder struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed when EmbedFunc is nil.
	EmbedResult []float32
	// EmbedErr, if non-nil, is returned as Embed's error.
	EmbedErr error
	// EmbedFunc, if set, computes Embed's result from its input text.
	EmbedFunc func(text string) []float32

	DimensionsValue int
	ModelIDValue    string

	EmbedCalls []string
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EmbedCalls = append(e.EmbedCalls, text)
	if e.EmbedErr != nil {
		return nil, e.EmbedErr
	}
	if e.EmbedFunc != nil {
		return e.EmbedFunc(text), nil
	}
	return e.EmbedResult, nil
}

func (e *Embedder) Dimensions() int { return e.DimensionsValue }
func (e *Embedder) ModelID() string { return e.ModelIDValue }

var _ memory.GraphStore = (*GraphStore)(nil)

// GraphStore is an in-memory fake of [memory.GraphStore].
type GraphStore struct {
	mu            sync.Mutex
	memories      map[string]memory.Memory
	entities      map[string]memory.Entity
	relationships []memory.Relationship
	sessions      map[string]memory.Session
	messages      map[string][]memory.Message
	nextEntityID  int
}

// NewGraphStore returns an empty GraphStore fake.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		memories: make(map[string]memory.Memory),
		entities: make(map[string]memory.Entity),
		sessions: make(map[string]memory.Session),
		messages: make(map[string][]memory.Message),
	}
}

func (g *GraphStore) UpsertMemory(_ context.Context, m memory.Memory) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memories[m.ID] = m
	return nil
}

func (g *GraphStore) GetMemory(_ context.Context, id string) (*memory.Memory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.memories[id]; ok {
		cp := m
		return &cp, nil
	}
	return nil, nil
}

func (g *GraphStore) FindMemoryByTitle(_ context.Context, title string) (*memory.Memory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.memories {
		if m.Status == memory.StatusActive && m.Title == title {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *GraphStore) FindMemoryByContentHash(_ context.Context, hash string) (*memory.Memory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.memories {
		if m.Status == memory.StatusActive && m.ContentHash == hash {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *GraphStore) FindSimilarTitles(_ context.Context, query string, layer memory.Layer, sublayer memory.Sublayer, k int) ([]memory.Memory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []memory.Memory
	for _, m := range g.memories {
		if m.Status != memory.StatusActive || m.Layer != layer || m.Sublayer != sublayer {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (g *GraphStore) AllMemories(_ context.Context, offset, limit int, filter memory.MemoryFilter) ([]memory.Memory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := filter.Status
	if status == "" {
		status = memory.StatusActive
	}

	var matched []memory.Memory
	for _, m := range g.memories {
		if m.Status != status {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if filter.Layer != "" && m.Layer != filter.Layer {
			continue
		}
		if filter.Sublayer != "" && m.Sublayer != filter.Sublayer {
			continue
		}
		if filter.MinImportance > 0 && m.Importance < filter.MinImportance {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []memory.Memory{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (g *GraphStore) BumpAccess(_ context.Context, ids []string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if m, ok := g.memories[id]; ok {
			m.AccessCount++
			m.LastAccessedAt = at
			g.memories[id] = m
		}
	}
	return nil
}

func (g *GraphStore) UpdateMemoryStatus(_ context.Context, id string, status memory.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.memories[id]; ok {
		m.Status = status
		g.memories[id] = m
	}
	return nil
}

func (g *GraphStore) UpsertEntity(_ context.Context, e memory.Entity) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, existing := range g.entities {
		if existing.Name == e.Name && existing.EntityType == e.EntityType {
			existing.Props = e.Props
			g.entities[id] = existing
			return id, nil
		}
	}
	g.nextEntityID++
	id := fmt.Sprintf("entity-%d", g.nextEntityID)
	e.ID = id
	g.entities[id] = e
	return id, nil
}

func (g *GraphStore) GetEntity(_ context.Context, id string) (*memory.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entities[id]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (g *GraphStore) FindByLabel(_ context.Context, match string, entityType string, k int) ([]memory.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []memory.Entity
	for _, e := range g.entities {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if e.Name == match {
			out = append(out, e)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (g *GraphStore) nodeExists(id string) bool {
	if _, ok := g.memories[id]; ok {
		return true
	}
	_, ok := g.entities[id]
	return ok
}

func (g *GraphStore) UpsertRelationship(_ context.Context, r memory.Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.nodeExists(r.FromID) {
		return &memory.ErrEndpointMissing{ID: r.FromID}
	}
	if !g.nodeExists(r.ToID) {
		return &memory.ErrEndpointMissing{ID: r.ToID}
	}
	for i, existing := range g.relationships {
		if existing.FromID == r.FromID && existing.ToID == r.ToID && existing.RelType == r.RelType {
			g.relationships[i] = r
			return nil
		}
	}
	g.relationships = append(g.relationships, r)
	return nil
}

func (g *GraphStore) GetRelationships(_ context.Context, entityID string, opts ...memory.RelQueryOpt) ([]memory.Relationship, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	types, dirIn, dirOut, limit := memory.ApplyRelQueryOpts(opts)

	var out []memory.Relationship
	for _, r := range g.relationships {
		if len(types) > 0 && !containsRelType(types, r.RelType) {
			continue
		}
		if dirOut && r.FromID == entityID {
			out = append(out, r)
		} else if dirIn && r.ToID == entityID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsRelType(types []memory.RelType, t memory.RelType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (g *GraphStore) DeleteRelationship(_ context.Context, fromID, toID string, relType memory.RelType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.relationships[:0]
	for _, r := range g.relationships {
		if r.FromID == fromID && r.ToID == toID && r.RelType == relType {
			continue
		}
		out = append(out, r)
	}
	g.relationships = out
	return nil
}

func (g *GraphStore) Neighborhood(_ context.Context, id string, depth int, filter memory.NeighborhoodFilter) ([]memory.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []memory.Entity

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, from := range frontier {
			for _, r := range g.relationships {
				if r.FromID != from || visited[r.ToID] {
					continue
				}
				if len(filter.RelTypes) > 0 && !containsRelType(filter.RelTypes, r.RelType) {
					continue
				}
				e, ok := g.entities[r.ToID]
				if !ok {
					continue
				}
				if filter.EntityType != "" && e.EntityType != filter.EntityType {
					continue
				}
				visited[r.ToID] = true
				next = append(next, r.ToID)
				out = append(out, e)
			}
		}
		frontier = next
	}
	return out, nil
}

func (g *GraphStore) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, fmt.Errorf("mock: Query not implemented")
}

func (g *GraphStore) ExportSnapshot(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("mock: ExportSnapshot not implemented")
}

func (g *GraphStore) AppendMessage(_ context.Context, msg memory.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[msg.SessionID]; !ok {
		g.sessions[msg.SessionID] = memory.Session{ID: msg.SessionID, CreatedAt: msg.Timestamp}
	}
	g.messages[msg.SessionID] = append(g.messages[msg.SessionID], msg)
	return nil
}

func (g *GraphStore) RecentMessages(_ context.Context, sessionID string, n int) ([]memory.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := g.messages[sessionID]
	if len(msgs) <= n {
		return append([]memory.Message{}, msgs...), nil
	}
	return append([]memory.Message{}, msgs[len(msgs)-n:]...), nil
}

func (g *GraphStore) ListSessions(_ context.Context, offset, limit int) ([]memory.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []memory.Session
	for _, s := range g.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []memory.Session{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (g *GraphStore) Close() error { return nil }
