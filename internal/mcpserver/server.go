// Package mcpserver exposes the engine's ten tools (§6) over the official
// Model Context Protocol SDK. The teacher only ever uses this SDK as a
// client dialing out to external tool servers (internal/mcp/mcphost); here
// the role is inverted — this process registers its own tools with
// mcp.NewServer/mcp.AddTool and serves them, grounded on the teacher's
// memorytool handler-constructor pattern (one makeXHandler per tool,
// wrapped errors of the shape "elefante: tool <name>: %w").
package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/elefante-mem/elefante/internal/consolidate"
	"github.com/elefante-mem/elefante/internal/ingest"
	"github.com/elefante-mem/elefante/internal/lock"
	"github.com/elefante-mem/elefante/internal/retrieval"
	"github.com/elefante-mem/elefante/internal/sessionctx"
	"github.com/elefante-mem/elefante/pkg/memory"
)

const (
	serverName    = "elefante"
	serverVersion = "0.1.0"
)

// maxStatusScan bounds the full-table scans system.status and context.get
// perform when counting records; the engine targets single-user, local-scale
// data, so an unindexed scan of this size is cheap.
const maxStatusScan = 10000

// Deps wires the tool handlers to the engine's subsystems. All fields are
// required.
type Deps struct {
	Pipeline     *ingest.Pipeline
	Orchestrator *retrieval.Orchestrator
	Consolidator *consolidate.Consolidator
	Graph        memory.GraphStore
	Locks        *lock.Manager
}

// New constructs the MCP server and registers all ten tools against deps.
func New(deps Deps) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "memory.add",
		Description: "Ingest a new memory or reinforce an existing one, deduplicating on title and content hash.",
	}, makeMemoryAddHandler(deps.Pipeline))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "memory.search",
		Description: "Run the hybrid vector+graph+conversation retrieval search and return ranked memories.",
	}, makeMemorySearchHandler(deps.Orchestrator))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "memory.list_all",
		Description: "Enumerate stored memories unranked, optionally filtered, paginated by offset/limit.",
	}, makeMemoryListAllHandler(deps.Graph))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "memory.consolidate",
		Description: "Archive decayed memories, reconcile orphaned dual-writes, and dedup title collisions. Dry-run unless force=true.",
	}, makeMemoryConsolidateHandler(deps.Consolidator))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "graph.query",
		Description: "Run a named graph traversal pattern against the knowledge graph.",
	}, makeGraphQueryHandler(deps.Graph))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "graph.entity.create",
		Description: "Create or merge an entity node, matched by (name, entity_type).",
	}, makeGraphEntityCreateHandler(deps.Graph))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "graph.relationship.create",
		Description: "Create or replace a directed relationship edge between two existing nodes.",
	}, makeGraphRelationshipCreateHandler(deps.Graph))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "context.get",
		Description: "Return the memories most relevant to a session's recent conversation, plus the graph neighborhood of the top-ranked one.",
	}, makeContextGetHandler(deps.Graph))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "sessions.list",
		Description: "List known conversation sessions, most recently created first.",
	}, makeSessionsListHandler(deps.Graph))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "system.status",
		Description: "Report write-lock state and memory/session counts.",
	}, makeSystemStatusHandler(deps.Graph, deps.Locks))

	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared argument/result shapes
// ─────────────────────────────────────────────────────────────────────────────

type entityRefArgs struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type,omitempty"`
	Props      string `json:"props,omitempty"`
}

type relationshipRefArgs struct {
	FromRef string `json:"from_ref"`
	ToRef   string `json:"to_ref"`
	RelType string `json:"rel_type"`
	Props   string `json:"props,omitempty"`
}

// memoryFilterArgs is the JSON-decoded shape of memory.MemoryFilter accepted
// as the `filters` argument of memory.search/memory.list_all.
type memoryFilterArgs struct {
	Kind          string   `json:"kind,omitempty"`
	Layer         string   `json:"layer,omitempty"`
	Sublayer      string   `json:"sublayer,omitempty"`
	MinImportance int      `json:"min_importance,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CreatedAfter  string   `json:"created_after,omitempty"`
	CreatedBefore string   `json:"created_before,omitempty"`
	Status        string   `json:"status,omitempty"`
}

func (f memoryFilterArgs) toFilter() (memory.MemoryFilter, error) {
	mf := memory.MemoryFilter{
		Kind:          memory.Kind(f.Kind),
		Layer:         memory.Layer(f.Layer),
		Sublayer:      memory.Sublayer(f.Sublayer),
		MinImportance: f.MinImportance,
		Tags:          f.Tags,
		Status:        memory.Status(f.Status),
	}
	if f.CreatedAfter != "" {
		t, err := time.Parse(time.RFC3339, f.CreatedAfter)
		if err != nil {
			return mf, fmt.Errorf("created_after: %w", err)
		}
		mf.CreatedAfter = t
	}
	if f.CreatedBefore != "" {
		t, err := time.Parse(time.RFC3339, f.CreatedBefore)
		if err != nil {
			return mf, fmt.Errorf("created_before: %w", err)
		}
		mf.CreatedBefore = t
	}
	return mf, nil
}

// memorySummary is the JSON-encoded shape of a memory.Memory returned to
// callers.
type memorySummary struct {
	ID                  string   `json:"id"`
	Content             string   `json:"content"`
	Title               string   `json:"title"`
	Layer               string   `json:"layer"`
	Sublayer            string   `json:"sublayer"`
	Kind                string   `json:"kind"`
	Importance          int      `json:"importance"`
	Confidence          float64  `json:"confidence"`
	CreatedAt           string   `json:"created_at"`
	LastAccessedAt      string   `json:"last_accessed_at"`
	AccessCount         int      `json:"access_count"`
	Status              string   `json:"status"`
	SessionID           string   `json:"session_id,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	Supersedes          string   `json:"supersedes,omitempty"`
	SupersededBy        string   `json:"superseded_by,omitempty"`
}

func toMemorySummary(m memory.Memory) memorySummary {
	return memorySummary{
		ID:             m.ID,
		Content:        m.Content,
		Title:          m.Title,
		Layer:          string(m.Layer),
		Sublayer:       string(m.Sublayer),
		Kind:           string(m.Kind),
		Importance:     m.Importance,
		Confidence:     m.Confidence,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
		LastAccessedAt: m.LastAccessedAt.UTC().Format(time.RFC3339),
		AccessCount:    m.AccessCount,
		Status:         string(m.Status),
		SessionID:      m.SessionID,
		Tags:           m.Tags,
		Supersedes:     m.Supersedes,
		SupersededBy:   m.SupersededBy,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// memory.add
// ─────────────────────────────────────────────────────────────────────────────

type memoryAddArgs struct {
	Content       string                `json:"content"`
	Title         string                `json:"title,omitempty"`
	Layer         string                `json:"layer,omitempty"`
	Sublayer      string                `json:"sublayer,omitempty"`
	Kind          string                `json:"kind,omitempty"`
	Importance    int                   `json:"importance,omitempty"`
	Confidence    float64               `json:"confidence,omitempty"`
	Tags          []string              `json:"tags,omitempty"`
	Entities      []entityRefArgs       `json:"entities,omitempty"`
	Relationships []relationshipRefArgs `json:"relationships,omitempty"`
	Metadata      map[string]string     `json:"metadata,omitempty"`
	ForceNew      bool                  `json:"force_new,omitempty"`
	SessionID     string                `json:"session_id,omitempty"`
}

type memoryAddResult struct {
	ID       string   `json:"id"`
	Action   string   `json:"action"`
	Warnings []string `json:"warnings"`
}

func makeMemoryAddHandler(p *ingest.Pipeline) mcpsdk.ToolHandlerFor[memoryAddArgs, memoryAddResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a memoryAddArgs) (*mcpsdk.CallToolResult, memoryAddResult, error) {
		input := memory.MemoryInput{
			Content:    a.Content,
			Title:      a.Title,
			Layer:      memory.Layer(a.Layer),
			Sublayer:   memory.Sublayer(a.Sublayer),
			Kind:       memory.Kind(a.Kind),
			Importance: a.Importance,
			Confidence: a.Confidence,
			Tags:       a.Tags,
			Metadata:   a.Metadata,
			ForceNew:   a.ForceNew,
			SessionID:  a.SessionID,
		}
		for _, e := range a.Entities {
			input.Entities = append(input.Entities, memory.EntityRef{Name: e.Name, EntityType: e.EntityType, Props: e.Props})
		}
		for _, r := range a.Relationships {
			input.Relationships = append(input.Relationships, memory.RelationshipRef{
				FromRef: r.FromRef, ToRef: r.ToRef, RelType: memory.RelType(r.RelType), Props: r.Props,
			})
		}

		result, err := p.Add(ctx, input)
		if err != nil {
			return nil, memoryAddResult{}, fmt.Errorf("elefante: tool memory.add: %w", err)
		}
		return nil, memoryAddResult{ID: result.ID, Action: string(result.Action), Warnings: result.Warnings}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// memory.search
// ─────────────────────────────────────────────────────────────────────────────

type memorySearchArgs struct {
	Query               string           `json:"query"`
	Mode                string           `json:"mode,omitempty"`
	Limit               int              `json:"limit,omitempty"`
	Filters             memoryFilterArgs `json:"filters,omitempty"`
	MinSimilarity       float64          `json:"min_similarity,omitempty"`
	IncludeConversation *bool            `json:"include_conversation,omitempty"`
	SessionID           string           `json:"session_id,omitempty"`
}

type searchHitResult struct {
	ID        string             `json:"id"`
	Score     float64            `json:"score"`
	Source    string             `json:"source"`
	SubScores map[string]float64 `json:"sub_scores"`
	Memory    memorySummary      `json:"memory"`
}

type memorySearchResult struct {
	Results []searchHitResult `json:"results"`
	Partial bool              `json:"partial"`
}

func makeMemorySearchHandler(o *retrieval.Orchestrator) mcpsdk.ToolHandlerFor[memorySearchArgs, memorySearchResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a memorySearchArgs) (*mcpsdk.CallToolResult, memorySearchResult, error) {
		filter, err := a.Filters.toFilter()
		if err != nil {
			return nil, memorySearchResult{}, fmt.Errorf("elefante: tool memory.search: %w", err)
		}

		opts := retrieval.Options{
			Limit:               a.Limit,
			Mode:                retrieval.Mode(a.Mode),
			MinSimilarity:       a.MinSimilarity,
			SessionID:           a.SessionID,
			IncludeConversation: a.IncludeConversation,
		}

		outcome, err := o.Search(ctx, a.Query, filter, opts)
		if err != nil {
			return nil, memorySearchResult{}, fmt.Errorf("elefante: tool memory.search: %w", err)
		}

		results := make([]searchHitResult, len(outcome.Results))
		for i, r := range outcome.Results {
			sub := make(map[string]float64, len(r.SubScores))
			for src, v := range r.SubScores {
				sub[string(src)] = v
			}
			results[i] = searchHitResult{
				ID:        r.Memory.ID,
				Score:     r.Score,
				Source:    string(r.Source),
				SubScores: sub,
				Memory:    toMemorySummary(r.Memory),
			}
		}

		return nil, memorySearchResult{Results: results, Partial: outcome.Partial}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// memory.list_all
// ─────────────────────────────────────────────────────────────────────────────

const defaultListAllLimit = 50

type memoryListAllArgs struct {
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
	Filters memoryFilterArgs `json:"filters,omitempty"`
}

type memoryListAllResult struct {
	Memories []memorySummary `json:"memories"`
}

func makeMemoryListAllHandler(graph memory.GraphStore) mcpsdk.ToolHandlerFor[memoryListAllArgs, memoryListAllResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a memoryListAllArgs) (*mcpsdk.CallToolResult, memoryListAllResult, error) {
		filter, err := a.Filters.toFilter()
		if err != nil {
			return nil, memoryListAllResult{}, fmt.Errorf("elefante: tool memory.list_all: %w", err)
		}
		limit := a.Limit
		if limit <= 0 {
			limit = defaultListAllLimit
		}

		rows, err := graph.AllMemories(ctx, a.Offset, limit, filter)
		if err != nil {
			return nil, memoryListAllResult{}, fmt.Errorf("elefante: tool memory.list_all: %w", err)
		}

		out := make([]memorySummary, len(rows))
		for i, m := range rows {
			out[i] = toMemorySummary(m)
		}
		return nil, memoryListAllResult{Memories: out}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// memory.consolidate
// ─────────────────────────────────────────────────────────────────────────────

type memoryConsolidateArgs struct {
	Force bool `json:"force,omitempty"`
}

type consolidateActionResult struct {
	Type     string `json:"type"`
	MemoryID string `json:"memory_id"`
	Reason   string `json:"reason"`
	LinkedTo string `json:"linked_to,omitempty"`
}

type consolidateStatsResult struct {
	Scanned         int `json:"scanned"`
	Archived        int `json:"archived"`
	MarkedRedundant int `json:"marked_redundant"`
	OrphansResolved int `json:"orphans_resolved"`
}

type memoryConsolidateResult struct {
	Applied bool                       `json:"applied"`
	Stats   consolidateStatsResult     `json:"stats"`
	Actions []consolidateActionResult  `json:"actions"`
}

func makeMemoryConsolidateHandler(c *consolidate.Consolidator) mcpsdk.ToolHandlerFor[memoryConsolidateArgs, memoryConsolidateResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a memoryConsolidateArgs) (*mcpsdk.CallToolResult, memoryConsolidateResult, error) {
		report, err := c.Consolidate(ctx, a.Force)
		if err != nil {
			return nil, memoryConsolidateResult{}, fmt.Errorf("elefante: tool memory.consolidate: %w", err)
		}

		actions := make([]consolidateActionResult, len(report.Actions))
		for i, a := range report.Actions {
			actions[i] = consolidateActionResult{
				Type:     string(a.Type),
				MemoryID: a.MemoryID,
				Reason:   a.Reason,
				LinkedTo: a.LinkedTo,
			}
		}

		return nil, memoryConsolidateResult{
			Applied: report.Applied,
			Stats: consolidateStatsResult{
				Scanned:         report.Stats.Scanned,
				Archived:        report.Stats.Archived,
				MarkedRedundant: report.Stats.MarkedRedundant,
				OrphansResolved: report.Stats.OrphansResolved,
			},
			Actions: actions,
		}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// graph.query
// ─────────────────────────────────────────────────────────────────────────────

type graphQueryArgs struct {
	CypherLike string         `json:"cypher_like"`
	Params     map[string]any `json:"params,omitempty"`
}

type graphQueryResult struct {
	Rows []map[string]any `json:"rows"`
}

func makeGraphQueryHandler(graph memory.GraphStore) mcpsdk.ToolHandlerFor[graphQueryArgs, graphQueryResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a graphQueryArgs) (*mcpsdk.CallToolResult, graphQueryResult, error) {
		if a.CypherLike == "" {
			return nil, graphQueryResult{}, fmt.Errorf("elefante: tool graph.query: cypher_like must not be empty")
		}
		rows, err := graph.Query(ctx, a.CypherLike, a.Params)
		if err != nil {
			return nil, graphQueryResult{}, fmt.Errorf("elefante: tool graph.query: %w", err)
		}
		return nil, graphQueryResult{Rows: rows}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// graph.entity.create
// ─────────────────────────────────────────────────────────────────────────────

type graphEntityCreateArgs struct {
	Name       string            `json:"name"`
	EntityType string            `json:"entity_type"`
	Props      map[string]string `json:"props,omitempty"`
}

type graphEntityCreateResult struct {
	ID string `json:"id"`
}

func makeGraphEntityCreateHandler(graph memory.GraphStore) mcpsdk.ToolHandlerFor[graphEntityCreateArgs, graphEntityCreateResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a graphEntityCreateArgs) (*mcpsdk.CallToolResult, graphEntityCreateResult, error) {
		if a.Name == "" {
			return nil, graphEntityCreateResult{}, fmt.Errorf("elefante: tool graph.entity.create: name must not be empty")
		}
		props, err := memory.EncodeProps(a.Props)
		if err != nil {
			return nil, graphEntityCreateResult{}, fmt.Errorf("elefante: tool graph.entity.create: %w", err)
		}
		id, err := graph.UpsertEntity(ctx, memory.Entity{Name: a.Name, EntityType: a.EntityType, Props: props})
		if err != nil {
			return nil, graphEntityCreateResult{}, fmt.Errorf("elefante: tool graph.entity.create: %w", err)
		}
		return nil, graphEntityCreateResult{ID: id}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// graph.relationship.create
// ─────────────────────────────────────────────────────────────────────────────

type graphRelationshipCreateArgs struct {
	FromID  string            `json:"from_id"`
	ToID    string            `json:"to_id"`
	RelType string            `json:"rel_type"`
	Props   map[string]string `json:"props,omitempty"`
	Weight  float64           `json:"weight,omitempty"`
}

type graphRelationshipCreateResult struct{}

func makeGraphRelationshipCreateHandler(graph memory.GraphStore) mcpsdk.ToolHandlerFor[graphRelationshipCreateArgs, graphRelationshipCreateResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a graphRelationshipCreateArgs) (*mcpsdk.CallToolResult, graphRelationshipCreateResult, error) {
		if a.FromID == "" || a.ToID == "" {
			return nil, graphRelationshipCreateResult{}, fmt.Errorf("elefante: tool graph.relationship.create: from_id and to_id must not be empty")
		}
		props, err := memory.EncodeProps(a.Props)
		if err != nil {
			return nil, graphRelationshipCreateResult{}, fmt.Errorf("elefante: tool graph.relationship.create: %w", err)
		}
		err = graph.UpsertRelationship(ctx, memory.Relationship{
			FromID: a.FromID, ToID: a.ToID, RelType: memory.RelType(a.RelType), Props: props, Weight: a.Weight,
		})
		if err != nil {
			return nil, graphRelationshipCreateResult{}, fmt.Errorf("elefante: tool graph.relationship.create: %w", err)
		}
		return nil, graphRelationshipCreateResult{}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// context.get
// ─────────────────────────────────────────────────────────────────────────────

const (
	defaultContextLimit = 10
	defaultContextDepth = 1
)

type contextGetArgs struct {
	SessionID string `json:"session_id,omitempty"`
	Depth     int    `json:"depth,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type entitySummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	Props      string `json:"props,omitempty"`
}

type contextGetResult struct {
	Memories     []memorySummary `json:"memories"`
	Neighborhood []entitySummary `json:"neighborhood"`
}

func makeContextGetHandler(graph memory.GraphStore) mcpsdk.ToolHandlerFor[contextGetArgs, contextGetResult] {
	scorer := sessionctx.New(graph)
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a contextGetArgs) (*mcpsdk.CallToolResult, contextGetResult, error) {
		limit := a.Limit
		if limit <= 0 {
			limit = defaultContextLimit
		}
		depth := a.Depth
		if depth <= 0 {
			depth = defaultContextDepth
		}

		candidates, err := graph.AllMemories(ctx, 0, maxStatusScan, memory.MemoryFilter{Status: memory.StatusActive})
		if err != nil {
			return nil, contextGetResult{}, fmt.Errorf("elefante: tool context.get: %w", err)
		}

		var ranked []memory.Memory
		if a.SessionID == "" {
			ranked = candidates
		} else {
			scores, err := scorer.Score(ctx, a.SessionID, candidates)
			if err != nil {
				return nil, contextGetResult{}, fmt.Errorf("elefante: tool context.get: %w", err)
			}
			ranked = make([]memory.Memory, 0, len(scores))
			for _, m := range candidates {
				if _, ok := scores[m.ID]; ok {
					ranked = append(ranked, m)
				}
			}
			sort.Slice(ranked, func(i, j int) bool { return scores[ranked[i].ID] > scores[ranked[j].ID] })
		}
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}

		memories := make([]memorySummary, len(ranked))
		for i, m := range ranked {
			memories[i] = toMemorySummary(m)
		}

		var neighborhood []entitySummary
		if len(ranked) > 0 {
			entities, err := graph.Neighborhood(ctx, ranked[0].ID, depth, memory.NeighborhoodFilter{})
			if err != nil {
				return nil, contextGetResult{}, fmt.Errorf("elefante: tool context.get: %w", err)
			}
			neighborhood = make([]entitySummary, len(entities))
			for i, e := range entities {
				neighborhood[i] = entitySummary{ID: e.ID, Name: e.Name, EntityType: e.EntityType, Props: e.Props}
			}
		}

		return nil, contextGetResult{Memories: memories, Neighborhood: neighborhood}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// sessions.list
// ─────────────────────────────────────────────────────────────────────────────

const defaultSessionsLimit = 20

type sessionsListArgs struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type sessionSummary struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

type sessionsListResult struct {
	Sessions []sessionSummary `json:"sessions"`
}

func makeSessionsListHandler(graph memory.GraphStore) mcpsdk.ToolHandlerFor[sessionsListArgs, sessionsListResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a sessionsListArgs) (*mcpsdk.CallToolResult, sessionsListResult, error) {
		limit := a.Limit
		if limit <= 0 {
			limit = defaultSessionsLimit
		}
		rows, err := graph.ListSessions(ctx, a.Offset, limit)
		if err != nil {
			return nil, sessionsListResult{}, fmt.Errorf("elefante: tool sessions.list: %w", err)
		}
		out := make([]sessionSummary, len(rows))
		for i, s := range rows {
			out[i] = sessionSummary{ID: s.ID, CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339)}
		}
		return nil, sessionsListResult{Sessions: out}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// system.status
// ─────────────────────────────────────────────────────────────────────────────

type systemStatusArgs struct{}

type lockHolderSummary struct {
	PID   int    `json:"pid"`
	Host  string `json:"host"`
	Fresh bool   `json:"fresh"`
}

type systemStatusResult struct {
	Locked bool               `json:"locked"`
	Holder *lockHolderSummary `json:"holder,omitempty"`
	Counts map[string]int     `json:"counts"`
}

// statusCountedStatuses are the memory.Status values reported in
// system.status's counts map.
var statusCountedStatuses = []memory.Status{
	memory.StatusActive, memory.StatusArchived, memory.StatusOrphan,
	memory.StatusRedundant, memory.StatusSuperseded,
}

func makeSystemStatusHandler(graph memory.GraphStore, locks *lock.Manager) mcpsdk.ToolHandlerFor[systemStatusArgs, systemStatusResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ systemStatusArgs) (*mcpsdk.CallToolResult, systemStatusResult, error) {
		locked, holder, fresh := locks.Status()

		counts := make(map[string]int, len(statusCountedStatuses)+1)
		for _, st := range statusCountedStatuses {
			rows, err := graph.AllMemories(ctx, 0, maxStatusScan, memory.MemoryFilter{Status: st})
			if err != nil {
				return nil, systemStatusResult{}, fmt.Errorf("elefante: tool system.status: %w", err)
			}
			counts[string(st)] = len(rows)
		}
		sessions, err := graph.ListSessions(ctx, 0, maxStatusScan)
		if err != nil {
			return nil, systemStatusResult{}, fmt.Errorf("elefante: tool system.status: %w", err)
		}
		counts["sessions"] = len(sessions)

		result := systemStatusResult{Locked: locked, Counts: counts}
		if locked {
			result.Holder = &lockHolderSummary{PID: holder.PID, Host: holder.Host, Fresh: fresh}
		}
		return nil, result, nil
	}
}
