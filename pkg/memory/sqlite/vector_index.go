package sqlite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// Upsert implements [memory.VectorIndex]. It stores or replaces the
// embedding, content, and metadata for id.
func (s *Store) Upsert(ctx context.Context, id string, embedding []float32, content string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("vector index: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO vectors (id, embedding, content, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    embedding = excluded.embedding,
		    content   = excluded.content,
		    metadata  = excluded.metadata`

	if _, err := s.db.ExecContext(ctx, q, id, encodeEmbedding(embedding), content, string(metaJSON)); err != nil {
		return fmt.Errorf("vector index: upsert: %w", err)
	}
	return nil
}

// Delete implements [memory.VectorIndex]. Deleting a non-existent id is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("vector index: delete: %w", err)
	}
	return nil
}

// Query implements [memory.VectorIndex]. It loads every row, applies the
// metadata filter in Go, computes cosine similarity against embedding, and
// returns the top-k by descending similarity — a brute-force ANN, legitimate
// at the single-user data scale the engine targets (§4.3, SPEC_FULL.md
// DOMAIN STACK).
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter memory.VectorFilter) ([]memory.VectorMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, content, metadata FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("vector index: query: %w", err)
	}
	defer rows.Close()

	type scored struct {
		memory.VectorMatch
		sim float64
	}
	var candidates []scored

	for rows.Next() {
		var id, content, metaJSON string
		var embBytes []byte
		if err := rows.Scan(&id, &embBytes, &content, &metaJSON); err != nil {
			return nil, fmt.Errorf("vector index: scan: %w", err)
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vector index: unmarshal metadata: %w", err)
		}
		if !matchesMetadata(meta, filter.Metadata) {
			continue
		}
		vec := decodeEmbedding(embBytes)
		candidates = append(candidates, scored{
			VectorMatch: memory.VectorMatch{ID: id, Content: content, Metadata: meta},
			sim:         cosineSimilarity(embedding, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector index: rows: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]memory.VectorMatch, len(candidates))
	for i, c := range candidates {
		c.VectorMatch.Similarity = c.sim
		out[i] = c.VectorMatch
	}
	return out, nil
}

// GetAll implements [memory.VectorIndex]. It is the exact unfiltered
// enumeration used by export/consolidation and must not rank by relevance
// (§4.3).
func (s *Store) GetAll(ctx context.Context, offset, limit int) ([]memory.VectorRecord, error) {
	const q = `SELECT id, embedding, content, metadata FROM vectors ORDER BY id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("vector index: get all: %w", err)
	}
	defer rows.Close()

	out := []memory.VectorRecord{}
	for rows.Next() {
		var id, content, metaJSON string
		var embBytes []byte
		if err := rows.Scan(&id, &embBytes, &content, &metaJSON); err != nil {
			return nil, fmt.Errorf("vector index: get all: scan: %w", err)
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vector index: get all: unmarshal metadata: %w", err)
		}
		out = append(out, memory.VectorRecord{
			ID: id, Embedding: decodeEmbedding(embBytes), Content: content, Metadata: meta,
		})
	}
	return out, rows.Err()
}

func matchesMetadata(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// encodeList comma-encodes a string slice for storage in a flat metadata
// value (§4.3: "Lists and sets must be encoded as comma-separated strings").
func encodeList(items []string) string { return strings.Join(items, ",") }

func decodeList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
