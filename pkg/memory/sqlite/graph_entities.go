package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/elefante-mem/elefante/pkg/memory"
)

func nowStamp() string { return nowUTC().Format(timeLayout) }

// UpsertEntity implements [memory.GraphStore]. It merges by (Name,
// EntityType): an existing match is updated in place and its id returned;
// otherwise a new entity is created.
func (s *Store) UpsertEntity(ctx context.Context, e memory.Entity) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE name = ? AND entity_type = ?`, e.Name, e.EntityType)
	var existing string
	err := row.Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO entities (id, name, entity_type, props, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, e.Name, e.EntityType, e.Props, nowStamp(), nowStamp())
		if err != nil {
			return "", fmt.Errorf("graph store: upsert entity: insert: %w", err)
		}
		return id, nil
	case err != nil:
		return "", fmt.Errorf("graph store: upsert entity: lookup: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE entities SET props = ?, updated_at = ? WHERE id = ?`,
		e.Props, nowStamp(), existing); err != nil {
		return "", fmt.Errorf("graph store: upsert entity: update: %w", err)
	}
	return existing, nil
}

// GetEntity implements [memory.GraphStore].
func (s *Store) GetEntity(ctx context.Context, id string) (*memory.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, entity_type, props FROM entities WHERE id = ?`, id)
	var e memory.Entity
	err := row.Scan(&e.ID, &e.Name, &e.EntityType, &e.Props)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph store: get entity: %w", err)
	}
	return &e, nil
}

// FindByLabel implements [memory.GraphStore]. It tries an exact match, then a
// prefix match, and finally falls back to Jaro-Winkler fuzzy matching over
// every candidate when neither SQL match produces hits — the same fallback
// shape as [Store.FindSimilarTitles], grounded on the teacher's phonetic
// matching package.
func (s *Store) FindByLabel(ctx context.Context, match string, entityType string, k int) ([]memory.Entity, error) {
	args := []any{match}
	q := `SELECT id, name, entity_type, props FROM entities WHERE name = ?`
	if entityType != "" {
		q += " AND entity_type = ?"
		args = append(args, entityType)
	}
	exact, err := s.queryEntities(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: find by label: exact: %w", err)
	}
	if len(exact) > 0 {
		return limitEntities(exact, k), nil
	}

	args = []any{match + "%"}
	q = `SELECT id, name, entity_type, props FROM entities WHERE name LIKE ?`
	if entityType != "" {
		q += " AND entity_type = ?"
		args = append(args, entityType)
	}
	prefix, err := s.queryEntities(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: find by label: prefix: %w", err)
	}
	if len(prefix) > 0 {
		return limitEntities(prefix, k), nil
	}

	q = `SELECT id, name, entity_type, props FROM entities`
	args = nil
	if entityType != "" {
		q += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	all, err := s.queryEntities(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: find by label: fuzzy: %w", err)
	}

	type scored struct {
		memory.Entity
		score float64
	}
	ql := strings.ToLower(match)
	fuzzy := make([]scored, 0, len(all))
	for _, e := range all {
		fuzzy = append(fuzzy, scored{e, matchr.JaroWinkler(ql, strings.ToLower(e.Name), false)})
	}
	for i := range fuzzy {
		best := i
		for j := i + 1; j < len(fuzzy); j++ {
			if fuzzy[j].score > fuzzy[best].score {
				best = j
			}
		}
		fuzzy[i], fuzzy[best] = fuzzy[best], fuzzy[i]
	}
	out := make([]memory.Entity, len(fuzzy))
	for i, f := range fuzzy {
		out[i] = f.Entity
	}
	return limitEntities(out, k), nil
}

func (s *Store) queryEntities(ctx context.Context, q string, args ...any) ([]memory.Entity, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Entity
	for rows.Next() {
		var e memory.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.Props); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func limitEntities(es []memory.Entity, k int) []memory.Entity {
	if k > 0 && len(es) > k {
		return es[:k]
	}
	return es
}
