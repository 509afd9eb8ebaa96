// Package sessionctx scores candidate memories against a session's recent
// conversation (§4.6): a short-term relevance contribution folded into the
// Hybrid Retrieval Orchestrator's conversation source.
package sessionctx

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// RecentWindow is the number of trailing session messages considered (§4.6).
const RecentWindow = 20

// halfLife is the recency half-life in hours (§4.6).
const halfLife = 1.0

// roleWeight assigns each speaker role its contribution weight (§4.6).
var roleWeight = map[memory.MessageRole]float64{
	memory.RoleUser:      1.0,
	memory.RoleAssistant: 0.6,
	memory.RoleSystem:    0.3,
}

// stopwords is a small fixed English stop-word set for Jaccard overlap. This
// is intentionally stdlib-only text processing; no NLP dependency is wired
// for it (see DESIGN.md).
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "from": true, "are": true, "was": true, "were": true,
	"been": true, "have": true, "has": true, "had": true, "will": true,
	"a": true, "an": true, "of": true, "to": true, "in": true, "on": true,
	"is": true, "it": true, "its": true, "be": true, "or": true, "as": true,
	"at": true, "by": true, "not": true, "but": true,
}

// Scorer produces the §4.6 session-context contribution for a set of
// candidate memories.
type Scorer struct {
	graph memory.GraphStore
}

// New constructs a Scorer backed by the graph store's session message log.
func New(graph memory.GraphStore) *Scorer {
	return &Scorer{graph: graph}
}

// Score returns, for each candidate memory, the normalized-to-[0,1]
// contribution of sessionID's recent conversation (§4.6). Candidates absent
// from the returned map contributed zero.
func (s *Scorer) Score(ctx context.Context, sessionID string, candidates []memory.Memory) (map[string]float64, error) {
	if sessionID == "" || len(candidates) == 0 {
		return map[string]float64{}, nil
	}

	messages, err := s.graph.RecentMessages(ctx, sessionID, RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("sessionctx: recent messages: %w", err)
	}
	if len(messages) == 0 {
		return map[string]float64{}, nil
	}

	now := time.Now().UTC()
	raw := make(map[string]float64, len(candidates))

	for _, msg := range messages {
		weight := roleWeight[msg.Role]
		if weight == 0 {
			weight = roleWeight[memory.RoleSystem]
		}
		ageHours := now.Sub(msg.Timestamp).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		recency := math.Exp(-math.Ln2 * ageHours / halfLife)
		msgTokens := tokenize(msg.Text)

		for _, cand := range candidates {
			if !referencesCandidate(msg, cand, msgTokens) {
				continue
			}
			overlap := jaccard(msgTokens, tokenize(cand.Title))
			if contrib := recency * weight * overlap; contrib > 0 {
				raw[cand.ID] += contrib
			}
		}
	}

	return normalize(raw), nil
}

// referencesCandidate reports whether msg is relevant to cand: either its
// text explicitly names cand's id, or cand's title tokens overlap msg's
// tokens at all (a necessary precondition — the Jaccard score itself governs
// how strongly).
func referencesCandidate(msg memory.Message, cand memory.Memory, msgTokens map[string]bool) bool {
	if strings.Contains(msg.Text, cand.ID) {
		return true
	}
	for tok := range tokenize(cand.Title) {
		if msgTokens[tok] {
			return true
		}
	}
	return false
}

// tokenize lowercases and splits s into a stop-filtered word set.
func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		f = strings.ToLower(strings.Trim(f, ".,!?;:\"'()"))
		if f == "" || stopwords[f] {
			continue
		}
		out[f] = true
	}
	return out
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets score 0 (no signal, rather
// than a vacuous 1).
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// normalize min-max scales raw contributions to [0,1]. A singleton or
// all-equal set normalizes to 1.0 for every non-zero entry.
func normalize(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return raw
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make(map[string]float64, len(raw))
	if max == min {
		for k := range raw {
			out[k] = 1.0
		}
		return out
	}
	for k, v := range raw {
		out[k] = (v - min) / (max - min)
	}
	return out
}
