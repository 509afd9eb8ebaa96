// Package ingest implements the Intelligent Ingestion Pipeline (§4.2): the
// seven deterministic stages that turn raw content plus caller enrichment
// into a canonical, deduplicated, dual-indexed Memory record.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/elefante-mem/elefante/internal/errs"
	"github.com/elefante-mem/elefante/internal/lock"
	"github.com/elefante-mem/elefante/internal/observe"
	"github.com/elefante-mem/elefante/internal/resilience"
	"github.com/elefante-mem/elefante/pkg/memory"
)

// MaxContentLength bounds a single Memory's content (§3: "1-10,000
// characters"; §8 boundary: 10,000 accepted, 10,001 rejected), measured in
// runes.
const MaxContentLength = 10000

// MaxTitleLength is the SAQ title's hard cap (§4.2 stage 2).
const MaxTitleLength = 30

// component names this pipeline's errors under.
const component = "ingest"

// defaultDeadline bounds one add_memory call end to end (§5).
const defaultDeadline = 30 * time.Second

// similarTitleThreshold is the Jaro-Winkler score above which an existing
// title is considered a near-duplicate of a freshly computed SAQ title,
// warranting a similar_to edge (§4.2 stage 3, I2).
const similarTitleThreshold = 0.92

var bannedFillerWords = map[string]bool{
	"really":   true,
	"very":     true,
	"favorite": true,
	"update":   true,
	"new":      true,
}

// Pipeline wires the Vector Index Adapter, Graph Store Adapter, Embedder, and
// Lock Manager behind the single add_memory entry point. It holds no
// retrieval responsibility — that is the Hybrid Retrieval Orchestrator's.
type Pipeline struct {
	vector   memory.VectorIndex
	graph    memory.GraphStore
	embed    memory.Embedder
	locks    *lock.Manager
	deadline time.Duration
}

// Option configures a [Pipeline] at construction.
type Option func(*Pipeline)

// WithDeadline overrides the per-call deadline (default 30s, §5).
func WithDeadline(d time.Duration) Option {
	return func(p *Pipeline) { p.deadline = d }
}

// New constructs a Pipeline over the given backends.
func New(vector memory.VectorIndex, graph memory.GraphStore, embed memory.Embedder, locks *lock.Manager, opts ...Option) *Pipeline {
	p := &Pipeline{vector: vector, graph: graph, embed: embed, locks: locks, deadline: defaultDeadline}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add runs the full pipeline for input and returns the committed record's
// id, the action taken, and any non-fatal warnings (§4.2).
func (p *Pipeline) Add(ctx context.Context, input memory.MemoryInput) (*memory.IngestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	start := time.Now()
	metrics := observe.DefaultMetrics()
	defer func() {
		metrics.IngestDuration.Record(ctx, time.Since(start).Seconds())
	}()

	in, warnings, err := parseAndValidate(input)
	if err != nil {
		return nil, err
	}

	title := canonicalTitle(in)

	existing, action, mergeWarnings, err := p.dedupProbe(ctx, in, title)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, mergeWarnings...)
	if existing != nil {
		metrics.MemoriesReinforced.Add(ctx, 1)
		return &memory.IngestResult{ID: existing.ID, Action: action, Warnings: warnings}, nil
	}

	similarToID, similarWarning := "", ""
	if !in.ForceNew {
		similarToID, similarWarning, err = p.findSimilarTitle(ctx, in, title)
		if err != nil {
			return nil, err
		}
		if similarWarning != "" {
			warnings = append(warnings, similarWarning)
		}
	}

	m := classifyAndDefaults(in, title)

	var vec []float32
	err = resilience.Retry(ctx, component+".embed", resilience.DefaultBackoff, func() error {
		v, embedErr := p.embed.Embed(ctx, m.Content)
		vec = v
		return embedErr
	})
	if err != nil {
		metrics.RecordBackendError(ctx, "embedder", string(errs.EmbedderFailed))
		return nil, errs.New(errs.EmbedderFailed, component, fmt.Errorf("embed: %w", err))
	}
	if len(vec) != p.embed.Dimensions() {
		return nil, errs.New(errs.InvalidInput, component, fmt.Errorf("embedding_dim: got %d, want %d", len(vec), p.embed.Dimensions()))
	}
	m.Embedding = vec

	if err := p.dualWrite(ctx, &m, in, similarToID); err != nil {
		return nil, err
	}

	metrics.MemoriesAdded.Add(ctx, 1)
	return &memory.IngestResult{ID: m.ID, Action: memory.ActionCreated, Warnings: warnings}, nil
}

// parsedInput is input after stage 1 normalization.
type parsedInput struct {
	memory.MemoryInput
}

// parseAndValidate implements stage 1: trim, reject empty, normalize tags,
// validate layer/sublayer, default to world.fact when omitted.
func parseAndValidate(input memory.MemoryInput) (parsedInput, []string, error) {
	var warnings []string

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return parsedInput{}, nil, errs.Newf(errs.InvalidInput, component, "content: must not be empty")
	}
	if len([]rune(content)) > MaxContentLength {
		return parsedInput{}, nil, errs.Newf(errs.InvalidInput, component, "content: exceeds %d characters", MaxContentLength)
	}
	input.Content = content
	input.Title = strings.TrimSpace(input.Title)

	if input.Layer == "" && input.Sublayer == "" {
		input.Layer = memory.LayerWorld
		input.Sublayer = memory.SublayerFact
		warnings = append(warnings, "layer/sublayer not supplied, defaulted to world.fact")
	}
	if !input.Layer.IsValid() {
		return parsedInput{}, nil, errs.Newf(errs.InvalidInput, component, "layer: %q is not recognized", input.Layer)
	}
	if !memory.ValidPair(input.Layer, input.Sublayer) {
		return parsedInput{}, nil, errs.Newf(errs.InvalidInput, component, "classification_conflict: sublayer %q is not valid for layer %q", input.Sublayer, input.Layer)
	}

	input.Tags = normalizeTags(input.Tags)

	if len(input.Entities) == 0 && len(input.Relationships) == 0 {
		warnings = append(warnings, "no enrichment supplied: entities/relationships left empty")
	}

	return parsedInput{input}, warnings, nil
}

// normalizeTags lowercases, dedups, and orders tags (stage 1).
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// canonicalTitle implements stage 2: construct the Subject-Aspect-Qualifier
// title. Caller-supplied titles are preferred verbatim (after filler-word
// stripping and the length cap); otherwise one is derived from the most
// salient tag or entity, then from the leading content tokens, falling back
// to a hash-suffixed sublayer name.
func canonicalTitle(in parsedInput) string {
	title := in.Title
	if title == "" {
		title = deriveTitle(in)
	}
	title = stripFillerWords(title)
	if len([]rune(title)) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
		title = strings.TrimSpace(title)
	}
	return title
}

// deriveTitle builds a fallback title from the most salient tag or entity
// name, or the first noun-like token cluster of the content; if none is
// available it falls back to "{sublayer}-{first 8 hex chars of content hash}".
func deriveTitle(in parsedInput) string {
	if len(in.Tags) > 0 {
		return fmt.Sprintf("%s-%s", in.Sublayer, in.Tags[0])
	}
	if len(in.Entities) > 0 && in.Entities[0].Name != "" {
		return fmt.Sprintf("%s-%s", in.Sublayer, strings.ToLower(in.Entities[0].Name))
	}
	if cluster := firstTokenCluster(in.Content); cluster != "" {
		return fmt.Sprintf("%s-%s", in.Sublayer, cluster)
	}
	hash := contentHash(in.Content)
	return fmt.Sprintf("%s-%s", in.Sublayer, hash[:8])
}

// firstTokenCluster returns the first 1-3 word-like tokens of s, joined by a
// hyphen, as a crude stand-in for noun-phrase extraction (no NLP dependency
// is wired for this).
func firstTokenCluster(s string) string {
	fields := strings.Fields(s)
	n := len(fields)
	if n > 3 {
		n = 3
	}
	if n == 0 {
		return ""
	}
	cluster := make([]string, 0, n)
	for _, f := range fields[:n] {
		f = strings.ToLower(strings.Trim(f, ".,!?;:\"'()"))
		if f != "" {
			cluster = append(cluster, f)
		}
	}
	return strings.Join(cluster, "-")
}

// stripFillerWords removes banned filler words (§4.2 stage 2) from title,
// word by word, preserving the remaining word order.
func stripFillerWords(title string) string {
	fields := strings.Fields(title)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if bannedFillerWords[strings.ToLower(f)] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// contentHash returns the stable hex-encoded hash of normalized content
// (§3 content_hash).
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// dedupProbe implements stage 3's primary checks: exact-title lookup, then
// content_hash, applying reinforcement semantics on either hit. Returns a
// non-nil memory only when an existing record was reinforced; a nil memory
// signals the caller to proceed to the similar-title check and then create.
func (p *Pipeline) dedupProbe(ctx context.Context, in parsedInput, title string) (*memory.Memory, memory.IngestAction, []string, error) {
	if in.ForceNew {
		return nil, "", nil, nil
	}

	if existing, err := p.graph.FindMemoryByTitle(ctx, title); err != nil {
		return nil, "", nil, errs.New(errs.BackendUnavailable, component, fmt.Errorf("find by title: %w", err))
	} else if existing != nil {
		if err := p.reinforce(ctx, existing, in); err != nil {
			return nil, "", nil, err
		}
		return existing, memory.ActionReinforced, nil, nil
	}

	hash := contentHash(in.Content)
	existing, err := p.graph.FindMemoryByContentHash(ctx, hash)
	if err != nil {
		return nil, "", nil, errs.New(errs.BackendUnavailable, component, fmt.Errorf("find by content hash: %w", err))
	}
	if existing == nil {
		return nil, "", nil, nil
	}
	if err := p.reinforce(ctx, existing, in); err != nil {
		return nil, "", nil, err
	}

	var warnings []string
	if existing.Title != title {
		warnings = append(warnings, fmt.Sprintf("content matched existing memory %q under a different title %q", existing.Title, title))
	}
	return existing, memory.ActionReinforced, warnings, nil
}

// findSimilarTitle implements stage 3's secondary check: when no exact or
// content-hash match exists, a genuinely new record is about to be created,
// but if its SAQ title is a near-duplicate of one already active in the same
// (layer, sublayer) partition, link them with a similar_to edge (I2) so the
// graph captures the relationship instead of silently allowing look-alike
// titles to coexist unconnected.
func (p *Pipeline) findSimilarTitle(ctx context.Context, in parsedInput, title string) (similarToID string, warning string, err error) {
	candidates, err := p.graph.FindSimilarTitles(ctx, title, in.Layer, in.Sublayer, 5)
	if err != nil {
		return "", "", errs.New(errs.BackendUnavailable, component, fmt.Errorf("find similar titles: %w", err))
	}
	match, ok := findSimilarExisting(title, candidates)
	if !ok {
		return "", "", nil
	}
	return match.ID, fmt.Sprintf("title %q is similar to existing memory %q; linked via similar_to", title, match.Title), nil
}

// reinforce applies the idempotent reinforcement update (§4.2 stage 3):
// bump access_count, refresh last_accessed_at, union tags, keep the older
// created_at, and raise importance to the max of old and new.
func (p *Pipeline) reinforce(ctx context.Context, existing *memory.Memory, in parsedInput) error {
	existing.Tags = unionTags(existing.Tags, in.Tags)
	if in.Importance > existing.Importance {
		existing.Importance = in.Importance
	}
	existing.AccessCount++
	existing.LastAccessedAt = time.Now().UTC()

	if err := p.graph.UpsertMemory(ctx, *existing); err != nil {
		return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("reinforce: %w", err))
	}
	return nil
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// findSimilarExisting uses Jaro-Winkler similarity (the same library and
// idiom as the graph store's fuzzy FindByLabel fallback) to decide whether
// title is a near-duplicate of any active title already stored.
func findSimilarExisting(title string, candidates []memory.Memory) (*memory.Memory, bool) {
	var best *memory.Memory
	var bestScore float64
	for i := range candidates {
		score := matchr.JaroWinkler(title, candidates[i].Title, true)
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	if best != nil && bestScore >= similarTitleThreshold {
		return best, true
	}
	return nil, false
}

// classifyAndDefaults implements stage 4: fill in the defaulted fields and
// construct the Memory record that will be dual-written.
func classifyAndDefaults(in parsedInput, title string) memory.Memory {
	kind := in.Kind
	if kind == "" {
		kind = memory.KindNote
	}
	importance := in.Importance
	if importance == 0 {
		importance = 5
	}
	confidence := in.Confidence
	if confidence == 0 {
		confidence = 0.7
	}

	now := time.Now().UTC()
	return memory.Memory{
		ID:                  newMemoryID(in.Content, title, now),
		Content:             in.Content,
		Title:               title,
		ContentHash:         contentHash(in.Content),
		Layer:               in.Layer,
		Sublayer:            in.Sublayer,
		Kind:                kind,
		Importance:          importance,
		Confidence:          confidence,
		CreatedAt:           now,
		LastAccessedAt:      now,
		AccessCount:         1,
		DecayRate:           0.01,
		ReinforcementFactor: 0.1,
		Status:              memory.StatusActive,
		SessionID:           in.SessionID,
		Tags:                in.Tags,
	}
}

func newMemoryID(content, title string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", title, content, at.UnixNano())))
	return hex.EncodeToString(sum[:])[:32]
}

// dualWrite implements stage 6: acquire the write lock, write the vector
// record, write the graph Memory node plus any supplied enrichment, attach
// the session edge, and commit. On any failure it attempts best-effort
// compensation (§7) before returning.
func (p *Pipeline) dualWrite(ctx context.Context, m *memory.Memory, in parsedInput, similarToID string) error {
	lease, err := p.locks.Acquire(ctx, 0)
	if err != nil {
		return err
	}
	defer lease.Release()

	metadata := map[string]string{
		"layer":    string(m.Layer),
		"sublayer": string(m.Sublayer),
		"kind":     string(m.Kind),
		"status":   string(m.Status),
	}
	if err := p.vector.Upsert(ctx, m.ID, m.Embedding, m.Content, metadata); err != nil {
		return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("vector upsert: %w", err))
	}

	if err := p.graph.UpsertMemory(ctx, *m); err != nil {
		p.compensateVector(ctx, m.ID)
		return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("graph upsert: %w", err))
	}

	if similarToID != "" {
		rel := memory.Relationship{FromID: m.ID, ToID: similarToID, RelType: memory.RelSimilarTo}
		if err := p.graph.UpsertRelationship(ctx, rel); err != nil {
			p.compensateMemory(ctx, m.ID)
			return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("link similar_to: %w", err))
		}
	}

	entityIDs := make(map[string]string, len(in.Entities))
	for _, e := range in.Entities {
		id, err := p.graph.UpsertEntity(ctx, memory.Entity{Name: e.Name, EntityType: e.EntityType, Props: e.Props})
		if err != nil {
			p.compensateMemory(ctx, m.ID)
			return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("upsert entity %q: %w", e.Name, err))
		}
		entityIDs[e.Name] = id
		rel := memory.Relationship{FromID: m.ID, ToID: id, RelType: memory.RelMentions}
		if err := p.graph.UpsertRelationship(ctx, rel); err != nil {
			p.compensateMemory(ctx, m.ID)
			return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("link entity %q: %w", e.Name, err))
		}
	}

	for _, r := range in.Relationships {
		fromID := resolveRef(r.FromRef, m.ID, entityIDs)
		toID := resolveRef(r.ToRef, m.ID, entityIDs)
		rel := memory.Relationship{FromID: fromID, ToID: toID, RelType: r.RelType, Props: r.Props}
		if err := p.graph.UpsertRelationship(ctx, rel); err != nil {
			p.compensateMemory(ctx, m.ID)
			return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("upsert relationship %s->%s: %w", r.FromRef, r.ToRef, err))
		}
	}

	if in.SessionID != "" {
		msg := memory.Message{SessionID: in.SessionID, Role: memory.RoleSystem, Text: "memory:" + m.ID, Timestamp: time.Now().UTC()}
		if err := p.graph.AppendMessage(ctx, msg); err != nil {
			p.compensateMemory(ctx, m.ID)
			return errs.New(errs.BackendWriteFailed, component, fmt.Errorf("append session message: %w", err))
		}
	}

	return nil
}

// resolveRef resolves a caller-supplied from_ref/to_ref: the memory being
// ingested (by exact ID or empty-string self-reference) or a previously
// upserted entity by name.
func resolveRef(ref, selfID string, entityIDs map[string]string) string {
	if ref == "" || ref == selfID {
		return selfID
	}
	if id, ok := entityIDs[ref]; ok {
		return id
	}
	return ref
}

// compensateVector implements best-effort compensation (§7) when the graph
// write fails after the vector write succeeded: delete the orphaned vector
// record so the two indices don't drift.
func (p *Pipeline) compensateVector(ctx context.Context, id string) {
	_ = p.vector.Delete(ctx, id)
}

// compensateMemory implements best-effort compensation when enrichment
// writes fail after the Memory node itself committed: mark it orphan rather
// than delete, so the content and embedding are not silently lost; consolidate
// later reconciles orphans.
func (p *Pipeline) compensateMemory(ctx context.Context, id string) {
	_ = p.graph.UpdateMemoryStatus(ctx, id, memory.StatusOrphan)
}
