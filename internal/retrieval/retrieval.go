// Package retrieval implements the Hybrid Retrieval Orchestrator (§4.1):
// query classification, parallel multi-source dispatch, temporal
// re-weighting, fusion, and deterministic ranking.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"

	"github.com/elefante-mem/elefante/internal/errs"
	"github.com/elefante-mem/elefante/internal/observe"
	"github.com/elefante-mem/elefante/internal/resilience"
	"github.com/elefante-mem/elefante/internal/sessionctx"
	"github.com/elefante-mem/elefante/pkg/memory"
)

const component = "retrieval"

const defaultDeadline = 10 * time.Second

// Mode constrains which backends a call dispatches to.
type Mode = memory.SearchMode

const (
	ModeSemantic   = memory.ModeSemantic
	ModeStructured = memory.ModeStructured
	ModeHybrid     = memory.ModeHybrid
)

// Options configures a Search call (§4.1 inputs).
type Options struct {
	Limit         int
	Mode          Mode
	MinSimilarity float64
	SessionID     string

	// IncludeConversation defaults to true; pass a false pointer to disable
	// the conversation source explicitly. nil and omitted are equivalent.
	IncludeConversation *bool
}

// includeConversation resolves the default-true IncludeConversation option.
func (o Options) includeConversation() bool {
	return o.IncludeConversation == nil || *o.IncludeConversation
}

// withDefaults fills the zero-value fields of o with their spec defaults.
func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if !o.Mode.IsValid() {
		o.Mode = ModeHybrid
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = 0.3
	}
	return o
}

// Result is one ranked hit from Search (§4.1 result fields).
type Result struct {
	Memory    memory.Memory
	Score     float64
	Source    memory.Source
	SubScores map[memory.Source]float64
}

// QueryPlan is the per-source weighting a query classifies into (§4.1 step 1).
type QueryPlan struct {
	VectorWeight       float64
	GraphWeight        float64
	ConversationWeight float64
}

// Orchestrator is the Hybrid Retrieval Orchestrator (§4.1).
type Orchestrator struct {
	vector  memory.VectorIndex
	graph   memory.GraphStore
	embed   memory.Embedder
	session *sessionctx.Scorer
}

// New constructs an Orchestrator over the given backends.
func New(vector memory.VectorIndex, graph memory.GraphStore, embed memory.Embedder) *Orchestrator {
	return &Orchestrator{vector: vector, graph: graph, embed: embed, session: sessionctx.New(graph)}
}

// SearchOutcome wraps a result set with the partial flag cancellation/
// degrade semantics require (§5).
type SearchOutcome struct {
	Results []Result
	Partial bool
}

// Search runs the full eight-step algorithm (§4.1) and returns a ranked,
// deduplicated, limit-trimmed result set.
func (o *Orchestrator) Search(ctx context.Context, query string, filter memory.MemoryFilter, opts Options) (SearchOutcome, error) {
	start := time.Now()
	metrics := observe.DefaultMetrics()

	query = strings.TrimSpace(query)
	if query == "" {
		return SearchOutcome{}, errs.Newf(errs.InvalidInput, component, "query: empty after trim")
	}
	opts = opts.withDefaults()
	if filter.Status == "" {
		filter.Status = memory.StatusActive
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	plan := classify(query, opts)
	kPrime := opts.Limit * 2
	if kPrime > 50 {
		kPrime = 50
	}

	vecHits, graphHits, convHits, partial, err := o.dispatch(ctx, query, filter, opts, kPrime)
	if err != nil {
		return SearchOutcome{}, err
	}

	merged, err := o.scoreCandidates(ctx, vecHits, graphHits, convHits, plan, opts, filter)
	if err != nil {
		return SearchOutcome{}, err
	}

	results := rank(merged, opts.Limit)

	if len(results) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Memory.ID
		}
		if err := o.graph.BumpAccess(ctx, ids, time.Now().UTC()); err != nil {
			return SearchOutcome{}, errs.New(errs.BackendUnavailable, component, fmt.Errorf("bump access: %w", err))
		}
	}

	metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
	metrics.RecordSearch(ctx, string(opts.Mode), partial)
	return SearchOutcome{Results: results, Partial: partial}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Step 1: classification
// ─────────────────────────────────────────────────────────────────────────────

var (
	pronounRe    = regexp.MustCompile(`(?i)\b(it|that|this|he|she|they|them)\b`)
	identifierRe = regexp.MustCompile(`(?i)\b(uuid|id|named|who|when)\b|[0-9a-f]{8}-[0-9a-f]{4}-`)
	conceptRe    = regexp.MustCompile(`(?i)\b(what|how|why|about|like|similar|related)\b`)
	hybridPhrase = regexp.MustCompile(`(?i)(everything about|full context|all information)`)
)

// classify derives a QueryPlan from query's lexical signals (§4.1 step 1).
func classify(query string, opts Options) QueryPlan {
	var plan QueryPlan

	switch {
	case opts.Mode == ModeSemantic:
		plan = QueryPlan{VectorWeight: 1, GraphWeight: 0, ConversationWeight: 0}
	case opts.Mode == ModeStructured:
		plan = QueryPlan{VectorWeight: 0, GraphWeight: 1, ConversationWeight: 0}
	case hybridPhrase.MatchString(query):
		plan = QueryPlan{VectorWeight: 0.5, GraphWeight: 0.4, ConversationWeight: 0.1}
	case pronounRe.MatchString(query):
		conv := 0.5
		rest := 1 - conv
		plan = QueryPlan{VectorWeight: rest * (0.5 / 0.9), GraphWeight: rest * (0.4 / 0.9), ConversationWeight: conv}
	case identifierRe.MatchString(query):
		plan = QueryPlan{VectorWeight: 0.15, GraphWeight: 0.7, ConversationWeight: 0.15}
	case conceptRe.MatchString(query):
		plan = QueryPlan{VectorWeight: 0.7, GraphWeight: 0.15, ConversationWeight: 0.15}
	default:
		plan = QueryPlan{VectorWeight: 0.5, GraphWeight: 0.4, ConversationWeight: 0.1}
	}

	if !opts.includeConversation() {
		plan.ConversationWeight = 0
	}
	return normalizePlan(plan)
}

func normalizePlan(p QueryPlan) QueryPlan {
	total := p.VectorWeight + p.GraphWeight + p.ConversationWeight
	if total == 0 {
		return QueryPlan{}
	}
	return QueryPlan{
		VectorWeight:       p.VectorWeight / total,
		GraphWeight:        p.GraphWeight / total,
		ConversationWeight: p.ConversationWeight / total,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Step 2: parallel dispatch
// ─────────────────────────────────────────────────────────────────────────────

// rawHit is one candidate's unnormalized score from a single source.
type rawHit struct {
	id    string
	score float64
}

// dispatch fans out the vector, graph, and conversation retrievals
// concurrently. Each backend's failure is captured independently so a
// hybrid-mode call can degrade rather than fail outright (§5 propagation).
func (o *Orchestrator) dispatch(ctx context.Context, query string, filter memory.MemoryFilter, opts Options, kPrime int) (vec, graph, conv []rawHit, partial bool, err error) {
	var (
		mu         sync.Mutex
		vecErr     error
		graphErr   error
		wantVector = opts.Mode == ModeSemantic || opts.Mode == ModeHybrid
		wantGraph  = opts.Mode == ModeStructured || opts.Mode == ModeHybrid
		wantConv   = opts.includeConversation() && opts.SessionID != "" && opts.Mode == ModeHybrid
	)

	eg, egCtx := errgroup.WithContext(ctx)

	if wantVector {
		eg.Go(func() error {
			hits, e := o.dispatchVector(egCtx, query, kPrime)
			mu.Lock()
			defer mu.Unlock()
			if e != nil {
				vecErr = e
				return nil
			}
			vec = hits
			return nil
		})
	}

	if wantGraph {
		eg.Go(func() error {
			hits, e := o.dispatchGraph(egCtx, query, filter, kPrime)
			mu.Lock()
			defer mu.Unlock()
			if e != nil {
				graphErr = e
				return nil
			}
			graph = hits
			return nil
		})
	}

	if wantConv {
		eg.Go(func() error {
			hits, e := o.dispatchConversation(egCtx, opts.SessionID, kPrime)
			if e != nil {
				// Conversation scoring failure degrades silently: it is an
				// enrichment source, not a hard backend dependency.
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			conv = hits
			return nil
		})
	}

	if werr := eg.Wait(); werr != nil {
		return nil, nil, nil, false, errs.New(errs.BackendUnavailable, component, werr)
	}

	if opts.Mode == ModeSemantic && vecErr != nil {
		return nil, nil, nil, false, errs.New(errs.BackendUnavailable, component, fmt.Errorf("vector: %w", vecErr))
	}
	if opts.Mode == ModeStructured && graphErr != nil {
		return nil, nil, nil, false, errs.New(errs.BackendUnavailable, component, fmt.Errorf("graph: %w", graphErr))
	}
	if opts.Mode == ModeHybrid {
		if graphErr != nil {
			graph, partial = nil, true
		}
		if vecErr != nil {
			vec, partial = nil, true
		}
		if graphErr != nil && vecErr != nil {
			return nil, nil, nil, false, errs.Newf(errs.BackendUnavailable, component, "both vector and graph backends failed")
		}
	}

	return vec, graph, conv, partial, nil
}

func (o *Orchestrator) dispatchVector(ctx context.Context, query string, kPrime int) ([]rawHit, error) {
	var embedding []float32
	err := resilience.Retry(ctx, component+".embed", resilience.DefaultBackoff, func() error {
		v, embedErr := o.embed.Embed(ctx, query)
		embedding = v
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var matches []memory.VectorMatch
	err = resilience.Retry(ctx, component+".vector", resilience.DefaultBackoff, func() error {
		m, queryErr := o.vector.Query(ctx, embedding, kPrime, memory.VectorFilter{})
		matches = m
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	hits := make([]rawHit, len(matches))
	for i, m := range matches {
		hits[i] = rawHit{id: m.ID, score: m.Similarity}
	}
	return hits, nil
}

// dispatchGraph performs the structured lookup (§4.1 step 2): exact/prefix
// entity-name and memory-title matches, weighted by edge agreement.
func (o *Orchestrator) dispatchGraph(ctx context.Context, query string, filter memory.MemoryFilter, kPrime int) ([]rawHit, error) {
	scores := make(map[string]float64)

	entities, err := o.graph.FindByLabel(ctx, query, "", kPrime)
	if err != nil {
		return nil, fmt.Errorf("find by label: %w", err)
	}
	ql := strings.ToLower(query)
	for _, e := range entities {
		labelScore := matchr.JaroWinkler(ql, strings.ToLower(e.Name), false)
		rels, err := o.graph.GetRelationships(ctx, e.ID, memory.WithIncoming(), memory.WithRelTypes(memory.RelMentions, memory.RelAbout))
		if err != nil {
			continue
		}
		for _, r := range rels {
			weight := r.Weight
			if weight == 0 {
				weight = 1
			}
			score := labelScore * weight
			if score > scores[r.FromID] {
				scores[r.FromID] = score
			}
		}
	}

	layers := []memory.Layer{memory.LayerSelf, memory.LayerWorld, memory.LayerIntent}
	if filter.Layer != "" {
		layers = []memory.Layer{filter.Layer}
	}
	for _, layer := range layers {
		sublayers := memory.SublayersFor(layer)
		if filter.Sublayer != "" {
			sublayers = []memory.Sublayer{filter.Sublayer}
		}
		for _, sub := range sublayers {
			titled, err := o.graph.FindSimilarTitles(ctx, query, layer, sub, kPrime)
			if err != nil {
				continue
			}
			for _, m := range titled {
				score := matchr.JaroWinkler(ql, strings.ToLower(m.Title), false)
				if score > scores[m.ID] {
					scores[m.ID] = score
				}
			}
		}
	}

	hits := make([]rawHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, rawHit{id: id, score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > kPrime {
		hits = hits[:kPrime]
	}
	return hits, nil
}

func (o *Orchestrator) dispatchConversation(ctx context.Context, sessionID string, kPrime int) ([]rawHit, error) {
	candidates, err := o.graph.AllMemories(ctx, 0, kPrime, memory.MemoryFilter{Status: memory.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("candidates for conversation scoring: %w", err)
	}
	scores, err := o.session.Score(ctx, sessionID, candidates)
	if err != nil {
		return nil, err
	}
	hits := make([]rawHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, rawHit{id: id, score: score})
	}
	return hits, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Steps 3-6: normalize, temporal reweight, fuse, dedup
// ─────────────────────────────────────────────────────────────────────────────

// candidate accumulates a memory's per-source normalized scores until fusion.
type candidate struct {
	id        string
	subScores map[memory.Source]float64
}

// scoreCandidates runs steps 3-6 of the algorithm and returns the fully
// fused, filtered, deduplicated candidate set (unsorted, untrimmed).
func (o *Orchestrator) scoreCandidates(ctx context.Context, vec, graph, conv []rawHit, plan QueryPlan, opts Options, filter memory.MemoryFilter) ([]Result, error) {
	normVec := minMaxNormalize(vec)
	normGraph := minMaxNormalize(graph)
	normConv := minMaxNormalize(conv)

	byID := make(map[string]*candidate)
	touch := func(id string, source memory.Source, score float64) {
		c, ok := byID[id]
		if !ok {
			c = &candidate{id: id, subScores: make(map[memory.Source]float64)}
			byID[id] = c
		}
		if score > c.subScores[source] {
			c.subScores[source] = score
		}
	}
	for id, s := range normVec {
		touch(id, memory.SourceVector, s)
	}
	for id, s := range normGraph {
		touch(id, memory.SourceGraph, s)
	}
	for id, s := range normConv {
		touch(id, memory.SourceConversation, s)
	}

	results := make([]Result, 0, len(byID))
	seenTitle := make(map[string]int) // title -> index in results of the current best
	for id, c := range byID {
		m, err := o.graph.GetMemory(ctx, id)
		if err != nil {
			return nil, errs.New(errs.BackendUnavailable, component, fmt.Errorf("get memory %q: %w", id, err))
		}
		if m == nil || !matchesFilter(*m, filter) {
			continue
		}
		// min_similarity gates only the pure semantic component (step 5); a
		// candidate with no vector contribution at all is unaffected.
		if nv, ok := normVec[id]; ok && plan.VectorWeight > 0 && nv < opts.MinSimilarity {
			continue
		}

		strength := temporalStrength(*m)
		fused := (plan.VectorWeight*c.subScores[memory.SourceVector] +
			plan.GraphWeight*c.subScores[memory.SourceGraph] +
			plan.ConversationWeight*c.subScores[memory.SourceConversation]) * strength

		src := dominantSource(c.subScores)
		res := Result{Memory: *m, Score: fused, Source: src, SubScores: c.subScores}

		if idx, dup := seenTitle[m.Title]; dup {
			if results[idx].Score < fused {
				results[idx] = res
			}
			continue
		}
		seenTitle[m.Title] = len(results)
		results = append(results, res)
	}

	return results, nil
}

// matchesFilter applies the caller-supplied MemoryFilter post-hoc: vector
// and conversation hits bypass the graph dispatch's layer/sublayer scoping,
// so every candidate is re-checked against the full filter before fusion.
func matchesFilter(m memory.Memory, filter memory.MemoryFilter) bool {
	if filter.Status != "" && m.Status != filter.Status {
		return false
	}
	if filter.Kind != "" && m.Kind != filter.Kind {
		return false
	}
	if filter.Layer != "" && m.Layer != filter.Layer {
		return false
	}
	if filter.Sublayer != "" && m.Sublayer != filter.Sublayer {
		return false
	}
	if filter.MinImportance > 0 && m.Importance < filter.MinImportance {
		return false
	}
	if !filter.CreatedAfter.IsZero() && m.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && m.CreatedAt.After(filter.CreatedBefore) {
		return false
	}
	for _, tag := range filter.Tags {
		if !containsTag(m.Tags, tag) {
			return false
		}
	}
	return true
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// minMaxNormalize scales raw scores to [0,1]; a singleton set normalizes to
// 1.0 (§4.1 step 3).
func minMaxNormalize(hits []rawHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		if h.score < min {
			min = h.score
		}
		if h.score > max {
			max = h.score
		}
	}
	for _, h := range hits {
		if max == min {
			out[h.id] = 1.0
			continue
		}
		out[h.id] = (h.score - min) / (max - min)
	}
	return out
}

// temporalStrength computes the decay/reinforcement multiplier (§4.1 step 4).
func temporalStrength(m memory.Memory) float64 {
	now := time.Now().UTC()
	ageDays := now.Sub(m.CreatedAt).Hours() / 24
	daysSinceAccess := now.Sub(m.LastAccessedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if daysSinceAccess < 0 {
		daysSinceAccess = 0
	}
	return (float64(m.Importance) / 10) *
		math.Exp(-m.DecayRate*ageDays) *
		(1 + m.ReinforcementFactor*math.Log(1+float64(m.AccessCount))) *
		math.Exp(-0.1*daysSinceAccess)
}

func dominantSource(sub map[memory.Source]float64) memory.Source {
	count := 0
	var best memory.Source
	var bestScore float64
	for s, v := range sub {
		if v > 0 {
			count++
		}
		if v > bestScore {
			bestScore = v
			best = s
		}
	}
	if count > 1 {
		return memory.SourceMerged
	}
	if best == "" {
		return memory.SourceMerged
	}
	return best
}

// ─────────────────────────────────────────────────────────────────────────────
// Steps 7-8: sort, trim
// ─────────────────────────────────────────────────────────────────────────────

func rank(results []Result, limit int) []Result {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Importance != b.Memory.Importance {
			return a.Memory.Importance > b.Memory.Importance
		}
		if !a.Memory.LastAccessedAt.Equal(b.Memory.LastAccessedAt) {
			return a.Memory.LastAccessedAt.After(b.Memory.LastAccessedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
