package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config]. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Defaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values (§6 recognized
// configuration keys). It returns a joined error listing all hard failures
// found; soft/informational issues are logged via slog.Warn rather than
// failing the load.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if cfg.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding_dim must be positive, got %d", cfg.EmbeddingDim))
	}
	if cfg.LockStaleMS <= 0 {
		errs = append(errs, fmt.Errorf("lock_stale_ms must be positive, got %d", cfg.LockStaleMS))
	}
	if cfg.LockAcquireTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("lock_acquire_timeout_ms must be positive, got %d", cfg.LockAcquireTimeoutMS))
	}
	if cfg.RetrievalDefaultLimit <= 0 || cfg.RetrievalDefaultLimit > cfg.RetrievalMaxLimit {
		errs = append(errs, fmt.Errorf("retrieval_default_limit (%d) must be in (0, retrieval_max_limit=%d]", cfg.RetrievalDefaultLimit, cfg.RetrievalMaxLimit))
	}
	if cfg.RetrievalMaxLimit <= 0 {
		errs = append(errs, fmt.Errorf("retrieval_max_limit must be positive, got %d", cfg.RetrievalMaxLimit))
	}
	if cfg.MinSimilarityDefault < 0 || cfg.MinSimilarityDefault > 1 {
		errs = append(errs, fmt.Errorf("min_similarity_default (%.2f) must be in [0, 1]", cfg.MinSimilarityDefault))
	}
	if cfg.ConversationWindow <= 0 {
		errs = append(errs, fmt.Errorf("conversation_window must be positive, got %d", cfg.ConversationWindow))
	}
	if cfg.ConsolidateStrengthThreshold < 0 {
		errs = append(errs, fmt.Errorf("consolidate_strength_threshold must be non-negative, got %.2f", cfg.ConsolidateStrengthThreshold))
	}
	if !validEmbedderKinds[cfg.Embedder.Kind] {
		errs = append(errs, fmt.Errorf("embedder.kind %q is invalid; valid values: hash, ollama", cfg.Embedder.Kind))
	}
	if cfg.Embedder.Kind == "ollama" && cfg.Embedder.Model == "" {
		errs = append(errs, errors.New("embedder.model is required when embedder.kind is \"ollama\""))
	}
	if !validMCPTransports[cfg.MCP.Transport] {
		errs = append(errs, fmt.Errorf("mcp.transport %q is invalid; valid values: stdio, streamable-http", cfg.MCP.Transport))
	}
	if cfg.MCP.Transport == "streamable-http" && cfg.MCP.ListenAddr == "" {
		errs = append(errs, errors.New("mcp.listen_addr is required when mcp.transport is \"streamable-http\""))
	}

	if cfg.Embedder.Kind == "hash" && cfg.Embedder.Model != "" {
		slog.Warn("embedder.model is ignored for the deterministic hash embedder", "model", cfg.Embedder.Model)
	}

	return errors.Join(errs...)
}
