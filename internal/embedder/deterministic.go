package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/elefante-mem/elefante/pkg/memory"
)

var _ memory.Embedder = (*Deterministic)(nil)

// Deterministic is a dependency-free [memory.Embedder] that derives a unit
// vector from the SHA-256 hash of its input text. It produces no semantic
// structure — identical text always yields identical vectors, and no two
// unrelated texts are expected to land near each other — but it is stable,
// requires no external model, and is suitable for tests and offline use
// where retrieval recall quality is not under test.
type Deterministic struct {
	dims  int
	model string
}

// NewDeterministic returns a [Deterministic] embedder producing vectors of
// the given dimensionality. A non-positive dims falls back to 32.
func NewDeterministic(dims int) *Deterministic {
	if dims <= 0 {
		dims = 32
	}
	return &Deterministic{dims: dims, model: "deterministic-hash-v1"}
}

// Embed implements [memory.Embedder]. It ignores ctx; hashing never blocks.
func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, d.dims)
	block := []byte(text)
	var sum float64
	for i := 0; i < d.dims; i++ {
		h := sha256.Sum256(append(block, byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint32(h[:4])
		// Map to [-1, 1].
		v := float32(bits)/float32(math.MaxUint32)*2 - 1
		vec[i] = v
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Dimensions implements [memory.Embedder].
func (d *Deterministic) Dimensions() int { return d.dims }

// ModelID implements [memory.Embedder].
func (d *Deterministic) ModelID() string { return d.model }
