// Package embedder provides [memory.Embedder] implementations: an Ollama
// HTTP client for real embedding models, and a deterministic hash-based
// embedder for tests and offline operation.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// DefaultBaseURL is the default base URL for a locally running Ollama
// instance.
const DefaultBaseURL = "http://localhost:11434"

var _ memory.Embedder = (*Ollama)(nil)

// Ollama implements [memory.Embedder] over a local Ollama server's
// /api/embed endpoint. Only net/http and encoding/json are used — no
// additional dependency is required to talk to Ollama's REST API.
//
// Ollama is safe for concurrent use.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dimensions int
	detectOnce sync.Once
}

// OllamaOption configures [NewOllama].
type OllamaOption func(*Ollama)

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OllamaOption {
	return func(o *Ollama) { o.httpClient.Timeout = d }
}

// WithDimensions pre-sets the embedding dimension, skipping both the
// known-model table and the probe request Dimensions would otherwise issue.
func WithDimensions(dims int) OllamaOption {
	return func(o *Ollama) { o.dimensions = dims }
}

// NewOllama constructs an [Ollama] embedder. baseURL defaults to
// [DefaultBaseURL] when empty; model must not be empty.
func NewOllama(baseURL, model string, opts ...OllamaOption) (*Ollama, error) {
	if model == "" {
		return nil, fmt.Errorf("embedder: ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	o := &Ollama{baseURL: baseURL, model: model, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.dimensions == 0 {
		o.dimensions = knownDimensions(model)
	}
	return o, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements [memory.Embedder].
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.callEmbed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder: ollama: embed: empty response")
	}
	return vecs[0], nil
}

// Dimensions implements [memory.Embedder]. Resolution order: explicit
// configuration, the known-model table, then a one-time probe request
// against the live server.
func (o *Ollama) Dimensions() int {
	if o.dimensions != 0 {
		return o.dimensions
	}
	o.detectOnce.Do(func() {
		vecs, err := o.callEmbed(context.Background(), []string{"probe"})
		if err == nil && len(vecs) > 0 {
			o.dimensions = len(vecs[0])
		}
	})
	return o.dimensions
}

// ModelID implements [memory.Embedder].
func (o *Ollama) ModelID() string { return o.model }

func (o *Ollama) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embeddings in response")
	}
	return result.Embeddings, nil
}

func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	default:
		return 0
	}
}
