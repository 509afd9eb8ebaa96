package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// Query implements [memory.GraphStore]. graph.query (§6) is deliberately not
// a full Cypher interpreter: pattern names one of a small fixed set of
// named traversals, and params supplies their positional arguments. This
// keeps the tool surface queryable without embedding a general graph query
// language in a single-user local engine.
//
// Recognized patterns:
//
//	"neighbors"         params: {id, depth?, entity_type?}
//	"related_memories"  params: {entity_id, limit?}
//	"entities_by_type"  params: {entity_type, limit?}
//	"relationship_types" params: {}
func (s *Store) Query(ctx context.Context, pattern string, params map[string]any) ([]map[string]any, error) {
	switch pattern {
	case "neighbors":
		return s.queryNeighbors(ctx, params)
	case "related_memories":
		return s.queryRelatedMemories(ctx, params)
	case "entities_by_type":
		return s.queryEntitiesByType(ctx, params)
	case "relationship_types":
		return s.queryRelationshipTypes(ctx)
	default:
		return nil, fmt.Errorf("graph store: query: unrecognized pattern %q", pattern)
	}
}

func (s *Store) queryNeighbors(ctx context.Context, params map[string]any) ([]map[string]any, error) {
	id, _ := params["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("graph store: query neighbors: missing id")
	}
	depth := 1
	if d, ok := params["depth"].(int); ok && d > 0 {
		depth = d
	}
	var entityType string
	if t, ok := params["entity_type"].(string); ok {
		entityType = t
	}

	entities, err := s.Neighborhood(ctx, id, depth, memory.NeighborhoodFilter{EntityType: entityType})
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(entities))
	for i, e := range entities {
		rows[i] = map[string]any{"id": e.ID, "name": e.Name, "entity_type": e.EntityType, "props": e.Props}
	}
	return rows, nil
}

func (s *Store) queryRelatedMemories(ctx context.Context, params map[string]any) ([]map[string]any, error) {
	entityID, _ := params["entity_id"].(string)
	if entityID == "" {
		return nil, fmt.Errorf("graph store: query related memories: missing entity_id")
	}
	cols := qualifiedMemoryCols("m")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cols+`
		 FROM relationships r
		 JOIN memories m ON m.id = r.to_id
		 WHERE r.from_id = ?
		 UNION
		 SELECT `+cols+`
		 FROM relationships r
		 JOIN memories m ON m.id = r.from_id
		 WHERE r.to_id = ?`,
		entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("graph store: query related memories: %w", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("graph store: query related memories: scan: %w", err)
		}
		out = append(out, map[string]any{"id": m.ID, "title": m.Title, "kind": string(m.Kind), "importance": m.Importance})
	}
	if l, ok := params["limit"].(int); ok && l > 0 && len(out) > l {
		out = out[:l]
	}
	return out, rows.Err()
}

func (s *Store) queryEntitiesByType(ctx context.Context, params map[string]any) ([]map[string]any, error) {
	entityType, _ := params["entity_type"].(string)
	entities, err := s.queryEntities(ctx, `SELECT id, name, entity_type, props FROM entities WHERE entity_type = ?`, entityType)
	if err != nil {
		return nil, fmt.Errorf("graph store: query entities by type: %w", err)
	}
	if l, ok := params["limit"].(int); ok {
		entities = limitEntities(entities, l)
	}
	out := make([]map[string]any, len(entities))
	for i, e := range entities {
		out[i] = map[string]any{"id": e.ID, "name": e.Name, "entity_type": e.EntityType}
	}
	return out, nil
}

func (s *Store) queryRelationshipTypes(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT rel_type, COUNT(*) FROM relationships GROUP BY rel_type`)
	if err != nil {
		return nil, fmt.Errorf("graph store: query relationship types: %w", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		var relType string
		var count int
		if err := rows.Scan(&relType, &count); err != nil {
			return nil, fmt.Errorf("graph store: query relationship types: scan: %w", err)
		}
		out = append(out, map[string]any{"rel_type": relType, "count": count})
	}
	return out, rows.Err()
}

// exportSnapshot is the JSON shape written by [Store.ExportSnapshot].
type exportSnapshot struct {
	Memories      []map[string]any `json:"memories"`
	Entities      []map[string]any `json:"entities"`
	Relationships []map[string]any `json:"relationships"`
	Sessions      []map[string]any `json:"sessions"`
}

// ExportSnapshot implements [memory.GraphStore]. It serializes the full
// graph contents (nodes + edges) for `snapshots/*.json` (§6).
func (s *Store) ExportSnapshot(ctx context.Context) ([]byte, error) {
	var snap exportSnapshot

	memRows, err := s.db.QueryContext(ctx, `SELECT `+selectMemoryCols+` FROM memories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("graph store: export snapshot: memories: %w", err)
	}
	for memRows.Next() {
		m, err := scanMemory(memRows)
		if err != nil {
			memRows.Close()
			return nil, fmt.Errorf("graph store: export snapshot: scan memory: %w", err)
		}
		snap.Memories = append(snap.Memories, map[string]any{
			"id": m.ID, "title": m.Title, "content": m.Content, "layer": string(m.Layer),
			"sublayer": string(m.Sublayer), "kind": string(m.Kind), "importance": m.Importance,
			"status": string(m.Status), "tags": m.Tags,
		})
	}
	if err := memRows.Err(); err != nil {
		memRows.Close()
		return nil, err
	}
	memRows.Close()

	entities, err := s.queryEntities(ctx, `SELECT id, name, entity_type, props FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("graph store: export snapshot: entities: %w", err)
	}
	for _, e := range entities {
		snap.Entities = append(snap.Entities, map[string]any{
			"id": e.ID, "name": e.Name, "entity_type": e.EntityType, "props": e.Props,
		})
	}

	relRows, err := s.db.QueryContext(ctx, `SELECT from_id, to_id, rel_type, weight, props FROM relationships ORDER BY from_id, to_id, rel_type`)
	if err != nil {
		return nil, fmt.Errorf("graph store: export snapshot: relationships: %w", err)
	}
	for relRows.Next() {
		var fromID, toID, relType, props string
		var weight float64
		if err := relRows.Scan(&fromID, &toID, &relType, &weight, &props); err != nil {
			relRows.Close()
			return nil, fmt.Errorf("graph store: export snapshot: scan relationship: %w", err)
		}
		snap.Relationships = append(snap.Relationships, map[string]any{
			"from_id": fromID, "to_id": toID, "rel_type": relType, "weight": weight, "props": props,
		})
	}
	if err := relRows.Err(); err != nil {
		relRows.Close()
		return nil, err
	}
	relRows.Close()

	sessions, err := s.ListSessions(ctx, 0, 1<<30)
	if err != nil {
		return nil, fmt.Errorf("graph store: export snapshot: sessions: %w", err)
	}
	for _, sess := range sessions {
		snap.Sessions = append(snap.Sessions, map[string]any{
			"id": sess.ID, "created_at": sess.CreatedAt.UTC().Format(timeLayout),
		})
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("graph store: export snapshot: marshal: %w", err)
	}
	return out, nil
}
