package config_test

import (
	"strings"
	"testing"

	"github.com/elefante-mem/elefante/internal/config"
)

const sampleYAML = `
data_dir: /tmp/elefante-data
embedding_dim: 384
lock_stale_ms: 30000
lock_acquire_timeout_ms: 5000
retrieval_default_limit: 10
retrieval_max_limit: 500
min_similarity_default: 0.3
conversation_half_life_minutes: 60
conversation_window: 20
consolidate_strength_threshold: 0.3
log_level: info
embedder:
  kind: ollama
  model: nomic-embed-text
  base_url: http://localhost:11434
mcp:
  transport: stdio
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.DataDir != "/tmp/elefante-data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.EmbeddingDim != 384 {
		t.Errorf("EmbeddingDim = %d", cfg.EmbeddingDim)
	}
	if cfg.Embedder.Kind != "ollama" || cfg.Embedder.Model != "nomic-embed-text" {
		t.Errorf("Embedder = %+v", cfg.Embedder)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("data_dir: /tmp/x\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.EmbeddingDim != 384 {
		t.Errorf("EmbeddingDim default = %d, want 384", cfg.EmbeddingDim)
	}
	if cfg.LockStaleMS != 30_000 {
		t.Errorf("LockStaleMS default = %d, want 30000", cfg.LockStaleMS)
	}
	if cfg.RetrievalDefaultLimit != 10 {
		t.Errorf("RetrievalDefaultLimit default = %d, want 10", cfg.RetrievalDefaultLimit)
	}
	if cfg.RetrievalMaxLimit != 500 {
		t.Errorf("RetrievalMaxLimit default = %d, want 500", cfg.RetrievalMaxLimit)
	}
	if cfg.Embedder.Kind != "hash" {
		t.Errorf("Embedder.Kind default = %q, want hash", cfg.Embedder.Kind)
	}
	if cfg.MCP.Transport != "stdio" {
		t.Errorf("MCP.Transport default = %q, want stdio", cfg.MCP.Transport)
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("data_dir: /tmp/x\nlog_level: bananas\n"))
	if err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestLoadFromReader_OllamaRequiresModel(t *testing.T) {
	yaml := "data_dir: /tmp/x\nembedder:\n  kind: ollama\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error: embedder.model required for ollama")
	}
}

func TestLoadFromReader_StreamableHTTPRequiresListenAddr(t *testing.T) {
	yaml := "data_dir: /tmp/x\nmcp:\n  transport: streamable-http\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error: mcp.listen_addr required for streamable-http")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("data_dir: /tmp/x\nnonsense_field: 1\n"))
	if err == nil {
		t.Fatal("expected strict-decode error for unknown field")
	}
}

func TestLoadFromReader_RetrievalDefaultExceedsMax(t *testing.T) {
	yaml := "data_dir: /tmp/x\nretrieval_default_limit: 600\nretrieval_max_limit: 500\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error: retrieval_default_limit exceeds retrieval_max_limit")
	}
}
