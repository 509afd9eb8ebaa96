// Package consolidate implements the consolidate(force) operation (§9):
// archiving memories whose temporal strength has decayed below a threshold,
// reconciling orphaned dual-writes, and resolving title collisions among
// active memories back down to invariant I2.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/elefante-mem/elefante/pkg/memory"
)

// defaultStrengthThreshold is the default archive cutoff (§9).
const defaultStrengthThreshold = 0.3

const pageSize = 200

// ActionType classifies one consolidation action.
type ActionType string

const (
	// ActionArchive marks a decayed active memory archived.
	ActionArchive ActionType = "archive"
	// ActionRedundant marks a title-colliding memory redundant, linked
	// similar_to its surviving counterpart.
	ActionRedundant ActionType = "redundant"
	// ActionReconcileOrphan promotes an orphaned memory back to active.
	ActionReconcileOrphan ActionType = "reconcile_orphan"
)

// Action is one proposed or applied consolidation step.
type Action struct {
	Type     ActionType
	MemoryID string
	Reason   string
	// LinkedTo is the surviving memory id for [ActionRedundant]; empty
	// otherwise.
	LinkedTo string
}

// Report is the result of a Consolidate call (§6 memory.consolidate).
type Report struct {
	Applied bool
	Actions []Action
	Stats   Stats
}

// Stats summarizes a consolidation pass.
type Stats struct {
	Scanned         int
	Archived        int
	MarkedRedundant int
	OrphansResolved int
}

// Consolidator runs the consolidate operation against a GraphStore.
type Consolidator struct {
	graph     memory.GraphStore
	threshold float64
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithStrengthThreshold overrides the default archive cutoff of 0.3 (§9).
func WithStrengthThreshold(t float64) Option {
	return func(c *Consolidator) { c.threshold = t }
}

// New constructs a Consolidator over graph.
func New(graph memory.GraphStore, opts ...Option) *Consolidator {
	c := &Consolidator{graph: graph, threshold: defaultStrengthThreshold}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Consolidate runs the full pass. With force=false it is a pure inspection:
// it computes and returns proposed actions without mutating state. With
// force=true it applies them; applying the same state twice in a row is a
// no-op the second time (idempotent closure, §8).
func (c *Consolidator) Consolidate(ctx context.Context, force bool) (*Report, error) {
	orphanActions, err := c.planOrphanReconciliation(ctx)
	if err != nil {
		return nil, fmt.Errorf("consolidate: plan orphans: %w", err)
	}

	active, err := c.allActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("consolidate: list active: %w", err)
	}

	archiveActions := planArchival(active, c.threshold)
	archivedIDs := make(map[string]bool, len(archiveActions))
	for _, a := range archiveActions {
		archivedIDs[a.MemoryID] = true
	}

	redundantActions := planTitleDedup(active, archivedIDs)

	report := &Report{Applied: force}
	report.Actions = append(report.Actions, orphanActions...)
	report.Actions = append(report.Actions, archiveActions...)
	report.Actions = append(report.Actions, redundantActions...)
	report.Stats = Stats{
		Scanned:         len(active),
		Archived:        len(archiveActions),
		MarkedRedundant: len(redundantActions),
		OrphansResolved: len(orphanActions),
	}

	if !force {
		return report, nil
	}

	for _, a := range report.Actions {
		if err := c.apply(ctx, a); err != nil {
			slog.Warn("consolidate: action failed, continuing",
				"memory_id", a.MemoryID, "type", a.Type, "error", err)
		}
	}

	return report, nil
}

func (c *Consolidator) apply(ctx context.Context, a Action) error {
	switch a.Type {
	case ActionArchive:
		return c.graph.UpdateMemoryStatus(ctx, a.MemoryID, memory.StatusArchived)
	case ActionReconcileOrphan:
		return c.graph.UpdateMemoryStatus(ctx, a.MemoryID, memory.StatusActive)
	case ActionRedundant:
		if err := c.graph.UpdateMemoryStatus(ctx, a.MemoryID, memory.StatusRedundant); err != nil {
			return err
		}
		return c.graph.UpsertRelationship(ctx, memory.Relationship{
			FromID: a.MemoryID, ToID: a.LinkedTo, RelType: memory.RelSimilarTo, Weight: 1,
		})
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// planOrphanReconciliation resolves §7's "status=orphan" records. A memory
// survives here only because the Memory node and its embedding both
// committed and merely the caller-supplied enrichment edges did not; there
// is no lost enrichment to replay, so reconciliation promotes it back to
// active.
func (c *Consolidator) planOrphanReconciliation(ctx context.Context) ([]Action, error) {
	var actions []Action
	offset := 0
	for {
		page, err := c.graph.AllMemories(ctx, offset, pageSize, memory.MemoryFilter{Status: memory.StatusOrphan})
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			actions = append(actions, Action{
				Type: ActionReconcileOrphan, MemoryID: m.ID,
				Reason: "orphaned dual-write reconciled to active; no enrichment to replay",
			})
		}
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	return actions, nil
}

func (c *Consolidator) allActive(ctx context.Context) ([]memory.Memory, error) {
	var all []memory.Memory
	offset := 0
	for {
		page, err := c.graph.AllMemories(ctx, offset, pageSize, memory.MemoryFilter{Status: memory.StatusActive})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	return all, nil
}

// planArchival proposes archiving every active memory whose current
// temporal strength has decayed below threshold (§9; same formula as the
// orchestrator's step-4 re-weighting, minus the access-recency term, since
// archival concerns persistent decay rather than a single query's context).
func planArchival(active []memory.Memory, threshold float64) []Action {
	var actions []Action
	for _, m := range active {
		if strength(m) < threshold {
			actions = append(actions, Action{
				Type: ActionArchive, MemoryID: m.ID,
				Reason: fmt.Sprintf("strength below threshold %.2f", threshold),
			})
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].MemoryID < actions[j].MemoryID })
	return actions
}

func strength(m memory.Memory) float64 {
	now := time.Now().UTC()
	ageDays := now.Sub(m.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return (float64(m.Importance) / 10) *
		math.Exp(-m.DecayRate*ageDays) *
		(1 + m.ReinforcementFactor*math.Log(1+float64(m.AccessCount)))
}

// planTitleDedup groups active (non-archived-this-pass) memories by title
// and, for every group with more than one member, keeps the strongest
// survivor active and proposes marking the rest redundant with a similar_to
// edge back to it (I2, S6).
func planTitleDedup(active []memory.Memory, archivedIDs map[string]bool) []Action {
	byTitle := make(map[string][]memory.Memory)
	for _, m := range active {
		if archivedIDs[m.ID] {
			continue
		}
		byTitle[m.Title] = append(byTitle[m.Title], m)
	}

	var actions []Action
	titles := make([]string, 0, len(byTitle))
	for t := range byTitle {
		titles = append(titles, t)
	}
	sort.Strings(titles)

	for _, title := range titles {
		group := byTitle[title]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if a.Importance != b.Importance {
				return a.Importance > b.Importance
			}
			if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
				return a.LastAccessedAt.After(b.LastAccessedAt)
			}
			return a.ID < b.ID
		})
		survivor := group[0]
		for _, loser := range group[1:] {
			actions = append(actions, Action{
				Type: ActionRedundant, MemoryID: loser.ID, LinkedTo: survivor.ID,
				Reason: fmt.Sprintf("title collision with %s", survivor.ID),
			})
		}
	}
	return actions
}
