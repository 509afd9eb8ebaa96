package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// UpsertRelationship implements [memory.GraphStore]. Both endpoints must
// already exist as a Memory or Entity node (I3); if either is missing the
// edge is not written and [memory.ErrEndpointMissing] names the absent one.
func (s *Store) UpsertRelationship(ctx context.Context, r memory.Relationship) error {
	for _, id := range []string{r.FromID, r.ToID} {
		ok, err := s.nodeExists(ctx, id)
		if err != nil {
			return fmt.Errorf("graph store: upsert relationship: %w", err)
		}
		if !ok {
			return &memory.ErrEndpointMissing{ID: id}
		}
	}

	const q = `
		INSERT INTO relationships (from_id, to_id, rel_type, weight, props, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (from_id, to_id, rel_type) DO UPDATE SET
		    weight = excluded.weight,
		    props  = excluded.props`

	if _, err := s.db.ExecContext(ctx, q, r.FromID, r.ToID, string(r.RelType), r.Weight, r.Props, nowStamp()); err != nil {
		return fmt.Errorf("graph store: upsert relationship: %w", err)
	}
	return nil
}

// nodeExists reports whether id names a Memory or an Entity — either may be
// a relationship endpoint (§3).
func (s *Store) nodeExists(ctx context.Context, id string) (bool, error) {
	ok, err := s.memoryExists(ctx, id)
	if err != nil || ok {
		return ok, err
	}
	return s.exists(ctx, "entities", id)
}

// GetRelationships implements [memory.GraphStore].
func (s *Store) GetRelationships(ctx context.Context, entityID string, opts ...memory.RelQueryOpt) ([]memory.Relationship, error) {
	relTypes, dirIn, dirOut, limit := memory.ApplyRelQueryOpts(opts)

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "?"
	}

	var dirParts []string
	if dirOut {
		dirParts = append(dirParts, "from_id = "+next(entityID))
	}
	if dirIn {
		dirParts = append(dirParts, "to_id = "+next(entityID))
	}
	conditions := []string{"(" + strings.Join(dirParts, " OR ") + ")"}

	if len(relTypes) > 0 {
		placeholders := make([]string, len(relTypes))
		for i, t := range relTypes {
			placeholders[i] = next(string(t))
		}
		conditions = append(conditions, "rel_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	q := `SELECT from_id, to_id, rel_type, weight, props FROM relationships WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at`
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph store: get relationships: %w", err)
	}
	defer rows.Close()

	out := []memory.Relationship{}
	for rows.Next() {
		var r memory.Relationship
		var relType string
		if err := rows.Scan(&r.FromID, &r.ToID, &relType, &r.Weight, &r.Props); err != nil {
			return nil, fmt.Errorf("graph store: get relationships: scan: %w", err)
		}
		r.RelType = memory.RelType(relType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRelationship implements [memory.GraphStore].
func (s *Store) DeleteRelationship(ctx context.Context, fromID, toID string, relType memory.RelType) error {
	const q = `DELETE FROM relationships WHERE from_id = ? AND to_id = ? AND rel_type = ?`
	if _, err := s.db.ExecContext(ctx, q, fromID, toID, string(relType)); err != nil {
		return fmt.Errorf("graph store: delete relationship: %w", err)
	}
	return nil
}

// Neighborhood implements [memory.GraphStore]. It performs a bounded
// breadth-first traversal using a SQLite recursive CTE, tracking visited
// node IDs as a JSON array via the JSON1 extension bundled with
// modernc.org/sqlite — the dialect port of the teacher's PostgreSQL
// TEXT[]-visited traversal.
func (s *Store) Neighborhood(ctx context.Context, id string, depth int, filter memory.NeighborhoodFilter) ([]memory.Entity, error) {
	var relTypeArgs []any
	relFilter := ""
	if len(filter.RelTypes) > 0 {
		placeholders := make([]string, len(filter.RelTypes))
		for i, t := range filter.RelTypes {
			placeholders[i] = "?"
			relTypeArgs = append(relTypeArgs, string(t))
		}
		relFilter = " AND rel.rel_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	q := fmt.Sprintf(`
		WITH RECURSIVE reachable(id, visited, depth) AS (
		    SELECT ?, json_array(?), 0
		    UNION ALL
		    SELECT rel.to_id, json_insert(r.visited, '$[#]', rel.to_id), r.depth + 1
		    FROM reachable r
		    JOIN relationships rel ON rel.from_id = r.id
		    WHERE r.depth < ?
		      AND NOT EXISTS (
		          SELECT 1 FROM json_each(r.visited) je WHERE je.value = rel.to_id
		      )%s
		)
		SELECT DISTINCT e.id, e.name, e.entity_type, e.props
		FROM reachable rc
		JOIN entities e ON e.id = rc.id
		WHERE rc.id != ?`, relFilter)

	callArgs := []any{id, id, depth}
	callArgs = append(callArgs, relTypeArgs...)
	callArgs = append(callArgs, id)

	if filter.EntityType != "" {
		q += " AND e.entity_type = ?"
		callArgs = append(callArgs, filter.EntityType)
	}
	q += " ORDER BY e.id"

	rows, err := s.db.QueryContext(ctx, q, callArgs...)
	if err != nil {
		return nil, fmt.Errorf("graph store: neighborhood: %w", err)
	}
	defer rows.Close()

	out := []memory.Entity{}
	for rows.Next() {
		var e memory.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.Props); err != nil {
			return nil, fmt.Errorf("graph store: neighborhood: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
