package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked — data_dir, embedding_dim, and the
// embedder/mcp blocks require a process restart to take effect safely, so
// they are deliberately excluded.
type ConfigDiff struct {
	LogLevelChanged    bool
	NewLogLevel        string
	RetrievalChanged   bool
	NewRetrievalLimits RetrievalLimits
	ConsolidateChanged bool
	NewConsolidateThreshold float64
}

// RetrievalLimits groups the hot-reloadable search tuning fields.
type RetrievalLimits struct {
	DefaultLimit                int
	MaxLimit                    int
	MinSimilarityDefault        float64
	ConversationHalfLifeMinutes float64
	ConversationWindow          int
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	oldLimits := RetrievalLimits{
		DefaultLimit:                old.RetrievalDefaultLimit,
		MaxLimit:                    old.RetrievalMaxLimit,
		MinSimilarityDefault:        old.MinSimilarityDefault,
		ConversationHalfLifeMinutes: old.ConversationHalfLifeMinutes,
		ConversationWindow:          old.ConversationWindow,
	}
	newLimits := RetrievalLimits{
		DefaultLimit:                new.RetrievalDefaultLimit,
		MaxLimit:                    new.RetrievalMaxLimit,
		MinSimilarityDefault:        new.MinSimilarityDefault,
		ConversationHalfLifeMinutes: new.ConversationHalfLifeMinutes,
		ConversationWindow:          new.ConversationWindow,
	}
	if oldLimits != newLimits {
		d.RetrievalChanged = true
		d.NewRetrievalLimits = newLimits
	}

	if old.ConsolidateStrengthThreshold != new.ConsolidateStrengthThreshold {
		d.ConsolidateChanged = true
		d.NewConsolidateThreshold = new.ConsolidateStrengthThreshold
	}

	return d
}
