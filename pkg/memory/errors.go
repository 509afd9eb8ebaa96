package memory

import "fmt"

// ErrLockHeld is returned when a write-mode open of the graph store directory
// cannot acquire the store's own file lock (§4.4, distinct from the
// engine-wide §4.5 write.lock).
type ErrLockHeld struct {
	PID       int
	Timestamp int64
}

func (e *ErrLockHeld) Error() string {
	return fmt.Sprintf("memory: graph store locked by pid %d at %d", e.PID, e.Timestamp)
}

// ErrEndpointMissing is returned by UpsertRelationship when either endpoint
// does not exist at commit time (I3).
type ErrEndpointMissing struct{ ID string }

func (e *ErrEndpointMissing) Error() string {
	return fmt.Sprintf("memory: relationship endpoint %q does not exist", e.ID)
}

// ErrSchemaMismatch is returned when a store is opened against data created
// by an incompatible schema version.
type ErrSchemaMismatch struct{ Detail string }

func (e *ErrSchemaMismatch) Error() string {
	return "memory: schema mismatch: " + e.Detail
}
