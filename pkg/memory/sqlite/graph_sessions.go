package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// AppendMessage implements [memory.GraphStore]. It creates the Session node
// on first use, then appends msg to its log (§4.6: "Sessions are first-class
// graph nodes").
func (s *Store) AppendMessage(ctx context.Context, msg memory.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph store: append message: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, msg.SessionID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO sessions (id, created_at) VALUES (?, ?)`,
			msg.SessionID, nowStamp()); err != nil {
			return fmt.Errorf("graph store: append message: create session: %w", err)
		}
	case err != nil:
		return fmt.Errorf("graph store: append message: lookup session: %w", err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, text, timestamp) VALUES (?, ?, ?, ?)`,
		msg.SessionID, string(msg.Role), msg.Text, ts.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("graph store: append message: insert: %w", err)
	}
	return tx.Commit()
}

// RecentMessages implements [memory.GraphStore]. It returns the last n
// messages of sessionID, oldest first.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, n int) ([]memory.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, text, timestamp FROM messages
		 WHERE session_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("graph store: recent messages: %w", err)
	}
	defer rows.Close()

	var reversed []memory.Message
	for rows.Next() {
		var m memory.Message
		var role, ts string
		if err := rows.Scan(&m.SessionID, &role, &m.Text, &ts); err != nil {
			return nil, fmt.Errorf("graph store: recent messages: scan: %w", err)
		}
		m.Role = memory.MessageRole(role)
		m.Timestamp, _ = time.Parse(timeLayout, ts)
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]memory.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

// ListSessions implements [memory.GraphStore].
func (s *Store) ListSessions(ctx context.Context, offset, limit int) ([]memory.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at FROM sessions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("graph store: list sessions: %w", err)
	}
	defer rows.Close()

	out := []memory.Session{}
	for rows.Next() {
		var sess memory.Session
		var createdAt string
		if err := rows.Scan(&sess.ID, &createdAt); err != nil {
			return nil, fmt.Errorf("graph store: list sessions: scan: %w", err)
		}
		sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, sess)
	}
	return out, rows.Err()
}
