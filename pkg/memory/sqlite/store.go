package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// nowUTC is the adapter's wall-clock source, factored out so timestamp
// formatting stays consistent across the package.
func nowUTC() time.Time { return time.Now().UTC() }

// Store implements both [memory.VectorIndex] and [memory.GraphStore] over a
// single modernc.org/sqlite database directory, mirroring the teacher's
// pattern of one Store type composing all memory layers behind a shared
// connection.
//
// Compile-time interface assertions, as in the teacher's postgres.Store.
var (
	_ memory.VectorIndex = (*Store)(nil)
	_ memory.GraphStore  = (*Store)(nil)
)

// Store is a directory-backed, single-writer SQLite store.
type Store struct {
	db       *sql.DB
	dir      string
	lockPath string
	lockFile *os.File
}

// Open opens (creating if necessary) the graph+vector store rooted at dir.
// It takes dir's exclusive directory lock (§4.4 "Single-writer lock") and
// runs [migrate]. The returned Store must be closed with [Store.Close] to
// release the lock.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: open: mkdir %q: %w", dir, err)
	}

	lockPath := filepath.Join(dir, ".lock")
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			pid, ts := readLockHolder(lockPath)
			return nil, &memory.ErrLockHeld{PID: pid, Timestamp: ts}
		}
		return nil, fmt.Errorf("sqlite: open: acquire directory lock: %w", err)
	}
	fmt.Fprintf(lf, "%d\n", os.Getpid())

	dsn := "file:" + filepath.Join(dir, "elefante.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lf.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer adapter per process (§4.3 concurrency note)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		lf.Close()
		os.Remove(lockPath)
		return nil, err
	}

	return &Store{db: db, dir: dir, lockPath: lockPath, lockFile: lf}, nil
}

// Close closes the database handle and releases the directory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	s.lockFile.Close()
	os.Remove(s.lockPath)
	return err
}

func readLockHolder(path string) (pid int, ts int64) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0
	}
	fmt.Sscanf(string(data), "%d", &pid)
	info, err := os.Stat(path)
	if err == nil {
		ts = info.ModTime().UnixMilli()
	}
	return pid, ts
}
