// Package sqlite implements the Vector Index Adapter (§4.3) and Graph Store
// Adapter (§4.4) on top of an embedded, pure-Go SQLite database
// (modernc.org/sqlite). There is no networked server to run, matching the
// engine's local single-user deployment model (§1): both adapters open a
// plain file under {data_dir}.
//
// The schema shape — one table per node kind, one table per relationship
// kind's shared store, dynamic filter-builder closures for optional
// predicates, and recursive CTEs for graph traversal — mirrors the
// PostgreSQL adapter this package replaces, ported to SQLite's dialect
// (placeholder style, WITH RECURSIVE, JSON1 functions instead of jsonb).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const ddlVectors = `
CREATE TABLE IF NOT EXISTS vectors (
    id        TEXT PRIMARY KEY,
    embedding BLOB NOT NULL,
    content   TEXT NOT NULL,
    metadata  TEXT NOT NULL DEFAULT '{}'
);
`

const ddlGraph = `
CREATE TABLE IF NOT EXISTS memories (
    id                    TEXT PRIMARY KEY,
    content               TEXT NOT NULL,
    title                 TEXT NOT NULL,
    content_hash          TEXT NOT NULL,
    layer                 TEXT NOT NULL,
    sublayer              TEXT NOT NULL,
    kind                  TEXT NOT NULL,
    importance            INTEGER NOT NULL DEFAULT 5,
    confidence            REAL NOT NULL DEFAULT 0.7,
    created_at            TEXT NOT NULL,
    last_accessed_at      TEXT NOT NULL,
    access_count          INTEGER NOT NULL DEFAULT 1,
    decay_rate            REAL NOT NULL DEFAULT 0.01,
    reinforcement_factor  REAL NOT NULL DEFAULT 0.1,
    status                TEXT NOT NULL DEFAULT 'active',
    session_id            TEXT NOT NULL DEFAULT '',
    tags                  TEXT NOT NULL DEFAULT '',
    supersedes            TEXT NOT NULL DEFAULT '',
    superseded_by         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_memories_title ON memories (title);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories (content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories (status);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories (session_id);
CREATE INDEX IF NOT EXISTS idx_memories_layer_sublayer ON memories (layer, sublayer);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories (created_at);

CREATE TABLE IF NOT EXISTS entities (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    props       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_name_type ON entities (name, entity_type);

CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    text       TEXT NOT NULL,
    timestamp  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON messages (session_id, timestamp);

CREATE TABLE IF NOT EXISTS relationships (
    from_id    TEXT NOT NULL,
    to_id      TEXT NOT NULL,
    rel_type   TEXT NOT NULL,
    weight     REAL NOT NULL DEFAULT 0,
    props      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    PRIMARY KEY (from_id, to_id, rel_type)
);

CREATE INDEX IF NOT EXISTS idx_rel_from ON relationships (from_id);
CREATE INDEX IF NOT EXISTS idx_rel_to ON relationships (to_id);
CREATE INDEX IF NOT EXISTS idx_rel_type ON relationships (rel_type);
`

// reservedSchemaNames mirrors memory.EncodeProps' reserved-word rule but at
// the schema layer (§4.4: "Adapter must reject attempts to use reserved
// names at schema creation time").
var reservedSchemaNames = map[string]bool{"properties": true, "type": true, "label": true}

// migrate creates all tables and indexes used by the vector and graph
// adapters. It is idempotent and safe to call on every process start.
func migrate(ctx context.Context, db *sql.DB) error {
	for name := range reservedSchemaNames {
		// Defensive check: none of the DDL above may name a column after a
		// reserved word. This loop exists to keep that invariant
		// mechanically checkable as the schema evolves.
		if containsColumn(ddlGraph, name) {
			return fmt.Errorf("sqlite: schema uses reserved column name %q", name)
		}
	}
	for _, stmt := range []string{ddlVectors, ddlGraph} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

func containsColumn(ddl, name string) bool {
	// A column definition always starts a line with whitespace then the
	// name immediately followed by whitespace; reserved words never appear
	// as standalone column names in the DDL above, so a simple substring
	// check with word boundaries is sufficient here.
	needle := "    " + name + " "
	for i := 0; i+len(needle) <= len(ddl); i++ {
		if ddl[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
