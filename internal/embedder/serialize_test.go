package embedder_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elefante-mem/elefante/internal/embedder"
)

// racyEmbedder is not safe for concurrent use: concurrent Embed calls mutate
// shared state without synchronization. Serialize must prevent overlap.
type racyEmbedder struct {
	inFlight int32
	maxSeen  int32
}

func (r *racyEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	n := atomic.AddInt32(&r.inFlight, 1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(&r.inFlight, -1)
	return []float32{1, 2, 3}, nil
}

func (r *racyEmbedder) Dimensions() int  { return 3 }
func (r *racyEmbedder) ModelID() string { return "racy" }

func TestSerialize_PreventsOverlap(t *testing.T) {
	raw := &racyEmbedder{}
	s := embedder.Serialize(raw)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Embed(context.Background(), "x"); err != nil {
				t.Errorf("Embed: %v", err)
			}
		}()
	}
	wg.Wait()

	if raw.maxSeen > 1 {
		t.Errorf("observed %d concurrent Embed calls, want at most 1", raw.maxSeen)
	}
}

func TestSerialize_PassesThroughDimensionsAndModelID(t *testing.T) {
	raw := &racyEmbedder{}
	s := embedder.Serialize(raw)
	if s.Dimensions() != 3 {
		t.Errorf("Dimensions(): got %d, want 3", s.Dimensions())
	}
	if s.ModelID() != "racy" {
		t.Errorf("ModelID(): got %q, want %q", s.ModelID(), "racy")
	}
}
