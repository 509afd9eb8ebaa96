// Package config provides the configuration schema, loader, and change
// watcher for the elefante memory engine.
package config

import "time"

// Config is the root configuration structure for the engine (§6 "Recognized
// configuration keys").
//
// LockStaleMS, LockAcquireTimeoutMS, RetrievalDefaultLimit,
// RetrievalMaxLimit, MinSimilarityDefault, ConversationHalfLifeMinutes and
// ConversationWindow are loaded, defaulted and validated, but are not passed
// to the lock manager, retrieval orchestrator or session scorer. Those
// components use their own built-in values (30 s stale threshold, 5 s
// acquire deadline, limit 10 capped at 500, min similarity 0.3, one-hour
// half-life, 20-message window), so changing these keys does not change
// engine behaviour.
type Config struct {
	// DataDir is the root path for persisted state: elefante.db (one SQLite
	// database holding both the vector and the graph tables) with its .lock
	// file, write.lock, and snapshots/. No separate vector/ or graph/
	// directories are created.
	DataDir string `yaml:"data_dir"`

	// EmbeddingDim is the fixed vector dimension every embedder and the
	// vector index must agree on. Mismatches are rejected at write time.
	EmbeddingDim int `yaml:"embedding_dim"`

	// LockStaleMS is the age (in milliseconds) past which a write-lock
	// holder is considered stale and eligible for steal (§4.5, default
	// 30000).
	LockStaleMS int `yaml:"lock_stale_ms"`

	// LockAcquireTimeoutMS is the default lock-acquisition deadline in
	// milliseconds (§4.5, default 5000).
	LockAcquireTimeoutMS int `yaml:"lock_acquire_timeout_ms"`

	// RetrievalDefaultLimit is the default result-set size for search when
	// the caller does not specify one (default 10).
	RetrievalDefaultLimit int `yaml:"retrieval_default_limit"`

	// RetrievalMaxLimit bounds the caller-supplied limit (default 500).
	RetrievalMaxLimit int `yaml:"retrieval_max_limit"`

	// MinSimilarityDefault is the default semantic-similarity threshold
	// applied when the caller omits one (default 0.3).
	MinSimilarityDefault float64 `yaml:"min_similarity_default"`

	// ConversationHalfLifeMinutes is the recency half-life used by the
	// session/conversation scorer (§4.6, default 60).
	ConversationHalfLifeMinutes float64 `yaml:"conversation_half_life_minutes"`

	// ConversationWindow is the number of trailing session messages scored
	// by the session/conversation context (§4.6, default 20).
	ConversationWindow int `yaml:"conversation_window"`

	// ConsolidateStrengthThreshold is the temporal-strength floor below
	// which consolidate archives an active memory (§9, default 0.3).
	ConsolidateStrengthThreshold float64 `yaml:"consolidate_strength_threshold"`

	// Embedder selects and configures the injected embedding component
	// (§6 "Embedder contract").
	Embedder EmbedderConfig `yaml:"embedder"`

	// MCP configures the tool-surface transport (§6).
	MCP MCPConfig `yaml:"mcp"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// EmbedderConfig selects which [github.com/elefante-mem/elefante/pkg/memory.Embedder]
// implementation the engine constructs at startup.
type EmbedderConfig struct {
	// Kind selects the embedder implementation. Valid values: "hash" (the
	// deterministic offline embedder) or "ollama".
	Kind string `yaml:"kind"`

	// Model is the embedding model name, passed through to the embedder.
	// Required when Kind is "ollama".
	Model string `yaml:"model"`

	// BaseURL overrides the embedder's default API endpoint. Only used
	// when Kind is "ollama".
	BaseURL string `yaml:"base_url"`
}

// MCPConfig configures how the tool surface (§6) is exposed.
type MCPConfig struct {
	// Transport selects the MCP server transport. Valid values: "stdio" or
	// "streamable-http".
	Transport string `yaml:"transport"`

	// ListenAddr is the TCP address to listen on when Transport is
	// "streamable-http". Ignored for "stdio".
	ListenAddr string `yaml:"listen_addr"`
}

// Defaults fills zero-value fields with the §6 documented defaults. It does
// not validate; call [Validate] afterward.
func (c *Config) Defaults() {
	if c.DataDir == "" {
		c.DataDir = "~/.elefante/data"
	}
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = 384
	}
	if c.LockStaleMS == 0 {
		c.LockStaleMS = 30_000
	}
	if c.LockAcquireTimeoutMS == 0 {
		c.LockAcquireTimeoutMS = 5_000
	}
	if c.RetrievalDefaultLimit == 0 {
		c.RetrievalDefaultLimit = 10
	}
	if c.RetrievalMaxLimit == 0 {
		c.RetrievalMaxLimit = 500
	}
	if c.MinSimilarityDefault == 0 {
		c.MinSimilarityDefault = 0.3
	}
	if c.ConversationHalfLifeMinutes == 0 {
		c.ConversationHalfLifeMinutes = 60
	}
	if c.ConversationWindow == 0 {
		c.ConversationWindow = 20
	}
	if c.ConsolidateStrengthThreshold == 0 {
		c.ConsolidateStrengthThreshold = 0.3
	}
	if c.Embedder.Kind == "" {
		c.Embedder.Kind = "hash"
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LockStale returns LockStaleMS as a [time.Duration].
func (c *Config) LockStale() time.Duration {
	return time.Duration(c.LockStaleMS) * time.Millisecond
}

// LockAcquireTimeout returns LockAcquireTimeoutMS as a [time.Duration].
func (c *Config) LockAcquireTimeout() time.Duration {
	return time.Duration(c.LockAcquireTimeoutMS) * time.Millisecond
}

// ConversationHalfLife returns ConversationHalfLifeMinutes as a [time.Duration].
func (c *Config) ConversationHalfLife() time.Duration {
	return time.Duration(c.ConversationHalfLifeMinutes * float64(time.Minute))
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validEmbedderKinds = map[string]bool{"hash": true, "ollama": true}
var validMCPTransports = map[string]bool{"stdio": true, "streamable-http": true}
