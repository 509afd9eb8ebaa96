package embedder

import (
	"context"
	"sync"

	"github.com/elefante-mem/elefante/pkg/memory"
)

var _ memory.Embedder = (*Serialized)(nil)

// Serialized wraps a [memory.Embedder] that is not safe for concurrent use
// and forces its Embed calls through an internal mutex, per §5: an embedder
// that does not document thread-safety is serialized rather than trusted.
type Serialized struct {
	mu   sync.Mutex
	next memory.Embedder
}

// Serialize wraps next so its Embed calls never overlap. Dimensions and
// ModelID are assumed safe to call concurrently and pass through directly.
func Serialize(next memory.Embedder) *Serialized {
	return &Serialized{next: next}
}

// Embed implements [memory.Embedder], serializing access to the wrapped
// embedder.
func (s *Serialized) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Embed(ctx, text)
}

// Dimensions implements [memory.Embedder].
func (s *Serialized) Dimensions() int { return s.next.Dimensions() }

// ModelID implements [memory.Embedder].
func (s *Serialized) ModelID() string { return s.next.ModelID() }
