// Package lock implements the transaction-scoped write lock (§4.5): a single
// lock file at {data_dir}/write.lock that serializes ingestion across
// cooperating processes while the graph store keeps its own, coarser
// directory-level lock.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elefante-mem/elefante/internal/errs"
	"github.com/elefante-mem/elefante/internal/observe"
)

// StaleAfter is the age past which a lock holder's timestamp is considered
// stale regardless of liveness (§4.5 step 2).
const StaleAfter = 30 * time.Second

// DefaultAcquireDeadline is used when a caller passes a zero deadline to
// [Manager.Acquire] (§4.5 "Cancellation").
const DefaultAcquireDeadline = 5 * time.Second

// retryBackoff is the pause between failed steal attempts racing another
// process (§4.5: "races lose gracefully and back off").
const retryBackoff = 20 * time.Millisecond

// Holder is the on-disk contents of write.lock.
type Holder struct {
	PID       int    `json:"pid"`
	Host      string `json:"host"`
	TimestampMS int64 `json:"ts_epoch_ms"`
	Token     string `json:"token"`
}

func (h Holder) fresh(now time.Time) bool {
	age := now.UnixMilli() - h.TimestampMS
	return age >= 0 && time.Duration(age)*time.Millisecond < StaleAfter
}

// ErrLockUnavailable is returned by [Manager.Acquire] when the lock is held
// by a live, fresh holder, or the caller's deadline expires first. Holder is
// the record observed at the time of failure.
type ErrLockUnavailable struct {
	Holder Holder
}

func (e *ErrLockUnavailable) Error() string {
	return fmt.Sprintf("lock: held by pid %d on %s (age-checked at %d)", e.Holder.PID, e.Holder.Host, e.Holder.TimestampMS)
}

// Manager coordinates a single write.lock file.
type Manager struct {
	path     string
	hostname string
	liveness func(pid int) bool
}

// New returns a Manager for the write lock under dataDir.
func New(dataDir string) *Manager {
	host, _ := os.Hostname()
	return &Manager{
		path:     filepath.Join(dataDir, "write.lock"),
		hostname: host,
		liveness: processAlive,
	}
}

// Lease represents a held write lock. It must be released exactly once.
type Lease struct {
	mgr        *Manager
	token      string
	acquiredAt time.Time
}

// Acquire implements the §4.5 acquisition algorithm: create-if-absent,
// stale/liveness check, steal-if-dead, deadline-bound retry. A zero deadline
// uses [DefaultAcquireDeadline].
func (m *Manager) Acquire(ctx context.Context, deadline time.Duration) (*Lease, error) {
	if deadline <= 0 {
		deadline = DefaultAcquireDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	metrics := observe.DefaultMetrics()
	self := Holder{PID: os.Getpid(), Host: m.hostname, Token: newToken()}

	for {
		lease, holder, stole, err := m.tryAcquire(self)
		if err == nil {
			metrics.LockWaitDuration.Record(ctx, time.Since(start).Seconds())
			if stole {
				metrics.LockStealsTotal.Add(ctx, 1)
			}
			metrics.ActiveLockHolders.Add(ctx, 1)
			lease.acquiredAt = time.Now()
			return lease, nil
		}
		var unavailable *ErrLockUnavailable
		if !errors.As(err, &unavailable) {
			return nil, errs.New(errs.BackendUnavailable, "lock", err)
		}

		select {
		case <-ctx.Done():
			return nil, errs.New(errs.LockUnavailable, "lock", &ErrLockUnavailable{Holder: holder})
		case <-time.After(retryBackoff):
		}
	}
}

// tryAcquire performs one attempt: create if absent, else inspect and
// possibly steal. It returns ErrLockUnavailable (not wrapped) when the lock
// is live and fresh, so callers can retry.
func (m *Manager) tryAcquire(self Holder) (*Lease, Holder, bool, error) {
	self.TimestampMS = time.Now().UnixMilli()

	if lease, err := m.createExclusive(self); err == nil {
		return lease, Holder{}, false, nil
	} else if !os.IsExist(err) {
		return nil, Holder{}, false, fmt.Errorf("lock: create: %w", err)
	}

	existing, raw, err := m.readHolder()
	if err != nil {
		// Malformed lock file: treat as stale (§4.5 step 2).
		lease, holder, err := m.steal(self, raw)
		return lease, holder, lease != nil, err
	}

	now := time.Now()
	if existing.fresh(now) && m.liveness(existing.PID) {
		return nil, existing, false, &ErrLockUnavailable{Holder: existing}
	}
	lease, holder, err := m.steal(self, raw)
	return lease, holder, lease != nil, err
}

// createExclusive attempts the fast path: the lock file does not exist yet.
func (m *Manager) createExclusive(self Holder) (*Lease, error) {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(self); err != nil {
		os.Remove(m.path)
		return nil, fmt.Errorf("lock: encode: %w", err)
	}
	return &Lease{mgr: m, token: self.Token}, nil
}

// steal atomically replaces a stale lock file with our own identity via a
// temp-file-then-rename, the filesystem's exclusive-create-equivalent for
// replacement (§4.5: "serialized via the underlying filesystem's exclusive
// create primitive; races lose gracefully and back off").
func (m *Manager) steal(self Holder, prevRaw []byte) (*Lease, Holder, error) {
	tmp := m.path + ".tmp-" + self.Token
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, Holder{}, fmt.Errorf("lock: steal: create temp: %w", err)
	}
	if err := json.NewEncoder(f).Encode(self); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, Holder{}, fmt.Errorf("lock: steal: encode: %w", err)
	}
	f.Close()

	// Re-check the current contents haven't changed since we read them,
	// to avoid stealing from a holder that refreshed its heartbeat between
	// our read and our rename.
	_, currentRaw, readErr := m.readHolder()
	if readErr == nil && prevRaw != nil && string(currentRaw) != string(prevRaw) {
		os.Remove(tmp)
		var existing Holder
		json.Unmarshal(currentRaw, &existing)
		return nil, existing, &ErrLockUnavailable{Holder: existing}
	}

	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return nil, Holder{}, fmt.Errorf("lock: steal: rename: %w", err)
	}

	// A concurrent stealer may have renamed its own file over ours; only
	// the stealer whose token is on disk holds the lock, the other backs off.
	if current, _, err := m.readHolder(); err != nil || current.Token != self.Token {
		return nil, current, &ErrLockUnavailable{Holder: current}
	}
	return &Lease{mgr: m, token: self.Token}, Holder{}, nil
}

func (m *Manager) readHolder() (Holder, []byte, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return Holder{}, nil, err
	}
	var h Holder
	if err := json.Unmarshal(raw, &h); err != nil {
		return Holder{}, raw, err
	}
	return h, raw, nil
}

// Status reports the current on-disk lock state without acquiring it.
// locked is false when no lock file exists. fresh reports whether the
// observed holder is still within [StaleAfter] and its process is alive;
// callers use it to distinguish "healthy lock" from "stale, steal-eligible".
func (m *Manager) Status() (locked bool, holder Holder, fresh bool) {
	h, _, err := m.readHolder()
	if err != nil {
		return false, Holder{}, false
	}
	return true, h, h.fresh(time.Now()) && m.liveness(h.PID)
}

// Refresh updates the lease's timestamp in place, extending its freshness
// window (§4.5 "Heartbeat"). Heartbeats are optional; most transactions
// finish well under [StaleAfter] and never call this.
func (l *Lease) Refresh() error {
	h := Holder{PID: os.Getpid(), Host: l.mgr.hostname, Token: l.token, TimestampMS: time.Now().UnixMilli()}
	f, err := os.OpenFile(l.mgr.path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("lock: refresh: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(h)
}

// Release deletes the lock file. If it was stolen from us in the meantime
// (token mismatch), releasing is a no-op: the new holder is authoritative
// (§4.5 "Release").
func (l *Lease) Release() error {
	metrics := observe.DefaultMetrics()
	defer func() {
		metrics.LockHoldDuration.Record(context.Background(), time.Since(l.acquiredAt).Seconds())
		metrics.ActiveLockHolders.Add(context.Background(), -1)
	}()

	existing, _, err := l.mgr.readHolder()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("lock: release: %w", err)
	}
	if existing.Token != l.token {
		return nil
	}
	if err := os.Remove(l.mgr.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken;
		// fall back to a timestamp-derived token rather than panic.
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
