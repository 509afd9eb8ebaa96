package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/elefante-mem/elefante/pkg/memory"
)

const timeLayout = time.RFC3339Nano

// UpsertMemory implements [memory.GraphStore]. It inserts the Memory node m,
// or replaces every field of the existing node with the same id except
// created_at, which keeps its first-written value.
func (s *Store) UpsertMemory(ctx context.Context, m memory.Memory) error {
	const q = `
		INSERT INTO memories
		    (id, content, title, content_hash, layer, sublayer, kind, importance,
		     confidence, created_at, last_accessed_at, access_count, decay_rate,
		     reinforcement_factor, status, session_id, tags, supersedes, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    content = excluded.content, title = excluded.title,
		    content_hash = excluded.content_hash, layer = excluded.layer,
		    sublayer = excluded.sublayer, kind = excluded.kind,
		    importance = excluded.importance, confidence = excluded.confidence,
		    last_accessed_at = excluded.last_accessed_at,
		    access_count = excluded.access_count, decay_rate = excluded.decay_rate,
		    reinforcement_factor = excluded.reinforcement_factor,
		    status = excluded.status, session_id = excluded.session_id,
		    tags = excluded.tags, supersedes = excluded.supersedes,
		    superseded_by = excluded.superseded_by`

	_, err := s.db.ExecContext(ctx, q,
		m.ID, m.Content, m.Title, m.ContentHash, string(m.Layer), string(m.Sublayer),
		string(m.Kind), m.Importance, m.Confidence,
		m.CreatedAt.UTC().Format(timeLayout), m.LastAccessedAt.UTC().Format(timeLayout),
		m.AccessCount, m.DecayRate, m.ReinforcementFactor, string(m.Status),
		m.SessionID, encodeList(m.Tags), m.Supersedes, m.SupersededBy,
	)
	if err != nil {
		return fmt.Errorf("graph store: upsert memory: %w", err)
	}
	return nil
}

const selectMemoryCols = `id, content, title, content_hash, layer, sublayer, kind, importance,
		confidence, created_at, last_accessed_at, access_count, decay_rate,
		reinforcement_factor, status, session_id, tags, supersedes, superseded_by`

// qualifiedMemoryCols renders selectMemoryCols with every column prefixed by
// alias, for use in joins.
func qualifiedMemoryCols(alias string) string {
	cols := strings.Split(selectMemoryCols, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func scanMemory(row interface{ Scan(...any) error }) (memory.Memory, error) {
	var m memory.Memory
	var layer, sublayer, kind, status, createdAt, lastAccessed, tags string
	err := row.Scan(
		&m.ID, &m.Content, &m.Title, &m.ContentHash, &layer, &sublayer, &kind,
		&m.Importance, &m.Confidence, &createdAt, &lastAccessed, &m.AccessCount,
		&m.DecayRate, &m.ReinforcementFactor, &status, &m.SessionID, &tags,
		&m.Supersedes, &m.SupersededBy,
	)
	if err != nil {
		return memory.Memory{}, err
	}
	m.Layer, m.Sublayer, m.Kind, m.Status = memory.Layer(layer), memory.Sublayer(sublayer), memory.Kind(kind), memory.Status(status)
	m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	m.LastAccessedAt, _ = time.Parse(timeLayout, lastAccessed)
	m.Tags = decodeList(tags)
	return m, nil
}

// GetMemory implements [memory.GraphStore].
func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectMemoryCols+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph store: get memory: %w", err)
	}
	return &m, nil
}

// FindMemoryByTitle implements [memory.GraphStore]. It is the primary
// deduplication lookup (I2), restricted to active memories.
func (s *Store) FindMemoryByTitle(ctx context.Context, title string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectMemoryCols+` FROM memories WHERE title = ? AND status = ? LIMIT 1`,
		title, string(memory.StatusActive))
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph store: find memory by title: %w", err)
	}
	return &m, nil
}

// FindMemoryByContentHash implements [memory.GraphStore] (secondary dedup key).
func (s *Store) FindMemoryByContentHash(ctx context.Context, hash string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectMemoryCols+` FROM memories WHERE content_hash = ? AND status = ? LIMIT 1`,
		hash, string(memory.StatusActive))
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph store: find memory by content hash: %w", err)
	}
	return &m, nil
}

// FindSimilarTitles implements [memory.GraphStore]. It ranks existing active
// titles in the same (layer, sublayer) partition by Jaro-Winkler similarity
// to query, the same fuzzy-matching library the teacher uses for spoken-name
// correction (internal/transcript/phonetic), repurposed here for
// near-duplicate title detection ahead of the §4.2 dedup probe's
// similar_to-edge decision.
func (s *Store) FindSimilarTitles(ctx context.Context, query string, layer memory.Layer, sublayer memory.Sublayer, k int) ([]memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectMemoryCols+` FROM memories WHERE layer = ? AND sublayer = ? AND status = ?`,
		string(layer), string(sublayer), string(memory.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("graph store: find similar titles: %w", err)
	}
	defer rows.Close()

	type scored struct {
		memory.Memory
		score float64
	}
	var candidates []scored
	ql := strings.ToLower(query)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("graph store: find similar titles: scan: %w", err)
		}
		score := matchr.JaroWinkler(ql, strings.ToLower(m.Title), false)
		candidates = append(candidates, scored{m, score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Simple selection sort by descending score — candidate sets are small
	// (bounded by one layer/sublayer partition).
	for i := range candidates {
		best := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[best].score {
				best = j
			}
		}
		candidates[i], candidates[best] = candidates[best], candidates[i]
	}
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]memory.Memory, len(candidates))
	for i, c := range candidates {
		out[i] = c.Memory
	}
	return out, nil
}

// AllMemories implements [memory.GraphStore].
func (s *Store) AllMemories(ctx context.Context, offset, limit int, filter memory.MemoryFilter) ([]memory.Memory, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "?"
	}

	var conditions []string
	status := filter.Status
	if status == "" {
		status = memory.StatusActive
	}
	conditions = append(conditions, "status = "+next(string(status)))
	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+next(string(filter.Kind)))
	}
	if filter.Layer != "" {
		conditions = append(conditions, "layer = "+next(string(filter.Layer)))
	}
	if filter.Sublayer != "" {
		conditions = append(conditions, "sublayer = "+next(string(filter.Sublayer)))
	}
	if filter.MinImportance > 0 {
		conditions = append(conditions, "importance >= "+next(filter.MinImportance))
	}
	if !filter.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at > "+next(filter.CreatedAfter.UTC().Format(timeLayout)))
	}
	if !filter.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < "+next(filter.CreatedBefore.UTC().Format(timeLayout)))
	}
	for _, tag := range filter.Tags {
		conditions = append(conditions, "(',' || tags || ',') LIKE "+next("%,"+tag+",%"))
	}

	q := "SELECT " + selectMemoryCols + " FROM memories"
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}
	q += " ORDER BY created_at, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: all memories: %w", err)
	}
	defer rows.Close()

	out := []memory.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("graph store: all memories: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BumpAccess implements [memory.GraphStore]: the batched access-bump side
// effect of a search call (§5).
func (s *Store) BumpAccess(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph store: bump access: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("graph store: bump access: prepare: %w", err)
	}
	defer stmt.Close()

	ts := at.UTC().Format(timeLayout)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, ts, id); err != nil {
			return fmt.Errorf("graph store: bump access: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateMemoryStatus implements [memory.GraphStore].
func (s *Store) UpdateMemoryStatus(ctx context.Context, id string, status memory.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("graph store: update memory status: %w", err)
	}
	return nil
}

// memoryExists reports whether id names a Memory node, used by relationship
// endpoint validation (I3).
func (s *Store) memoryExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "memories", id)
}

func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
