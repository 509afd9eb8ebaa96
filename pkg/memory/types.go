// Package memory defines the core domain model and storage contracts for
// Elefante's retrieval engine.
//
// The architecture separates three concerns behind narrow interfaces:
//
//   - [VectorIndex] — dense-embedding similarity search over Memory content.
//   - [GraphStore] — a labeled property graph of Memory/Entity/Session nodes
//     and typed Relationship edges, plus the append-only session message log.
//   - [Embedder] — turns text into a fixed-dimension vector; injected by the
//     caller so the engine never depends on a specific model provider.
//
// All interfaces are public so alternative backends can be substituted
// without depending on Elefante internals. Every [VectorIndex] and
// [GraphStore] implementation must be safe for concurrent use; [Embedder]
// implementations need not be (see [Embedder]).
package memory

import "time"

// Layer is the top-level epistemic classification of a Memory.
type Layer string

const (
	LayerSelf   Layer = "self"
	LayerWorld  Layer = "world"
	LayerIntent Layer = "intent"
)

// IsValid reports whether l is one of the recognized layers.
func (l Layer) IsValid() bool {
	switch l {
	case LayerSelf, LayerWorld, LayerIntent:
		return true
	}
	return false
}

// Sublayer is the second-level classification of a Memory, restricted per
// [Layer] — see [SublayersFor].
type Sublayer string

const (
	SublayerIdentity   Sublayer = "identity"
	SublayerPreference Sublayer = "preference"
	SublayerConstraint Sublayer = "constraint"

	SublayerFact    Sublayer = "fact"
	SublayerFailure Sublayer = "failure"
	SublayerMethod  Sublayer = "method"

	SublayerRule       Sublayer = "rule"
	SublayerGoal       Sublayer = "goal"
	SublayerAntiPatten Sublayer = "anti_pattern"
)

// SublayersFor returns the recognized sublayers for layer. An unrecognized
// layer returns nil.
func SublayersFor(l Layer) []Sublayer {
	switch l {
	case LayerSelf:
		return []Sublayer{SublayerIdentity, SublayerPreference, SublayerConstraint}
	case LayerWorld:
		return []Sublayer{SublayerFact, SublayerFailure, SublayerMethod}
	case LayerIntent:
		return []Sublayer{SublayerRule, SublayerGoal, SublayerAntiPatten}
	}
	return nil
}

// ValidPair reports whether sub is a recognized sublayer of l (invariant I4).
func ValidPair(l Layer, sub Sublayer) bool {
	for _, s := range SublayersFor(l) {
		if s == sub {
			return true
		}
	}
	return false
}

// Kind classifies the shape of a Memory's content.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindFact         Kind = "fact"
	KindInsight      Kind = "insight"
	KindCode         Kind = "code"
	KindDecision     Kind = "decision"
	KindTask         Kind = "task"
	KindNote         Kind = "note"
	KindPreference   Kind = "preference"
	KindQuestion     Kind = "question"
	KindAnswer       Kind = "answer"
	KindHypothesis   Kind = "hypothesis"
	KindObservation  Kind = "observation"
)

// IsValid reports whether k is one of the recognized kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindConversation, KindFact, KindInsight, KindCode, KindDecision,
		KindTask, KindNote, KindPreference, KindQuestion, KindAnswer,
		KindHypothesis, KindObservation:
		return true
	}
	return false
}

// Status is the lifecycle state of a Memory.
type Status string

const (
	StatusActive     Status = "active"
	StatusRedundant  Status = "redundant"
	StatusArchived   Status = "archived"
	StatusSuperseded Status = "superseded"
	// StatusOrphan marks a memory that survived only one side of a failed
	// dual-write (§7 compensation); reconciled by consolidate.
	StatusOrphan Status = "orphan"
)

// IsValid reports whether s is one of the recognized statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusRedundant, StatusArchived, StatusSuperseded, StatusOrphan:
		return true
	}
	return false
}

// RelType is the semantic label of a directed [Relationship] edge.
type RelType string

const (
	RelRelatesTo  RelType = "relates_to"
	RelDependsOn  RelType = "depends_on"
	RelPartOf     RelType = "part_of"
	RelCreatedBy  RelType = "created_by"
	RelReferences RelType = "references"
	RelBlocks     RelType = "blocks"
	RelImplements RelType = "implements"
	RelUses       RelType = "uses"
	RelSimilarTo  RelType = "similar_to"
	RelContradict RelType = "contradicts"
	RelSupersedes RelType = "supersedes"
	RelMentions   RelType = "mentions"
	RelAbout      RelType = "about"
)

// IsValid reports whether r is one of the recognized relationship types.
func (r RelType) IsValid() bool {
	switch r {
	case RelRelatesTo, RelDependsOn, RelPartOf, RelCreatedBy, RelReferences,
		RelBlocks, RelImplements, RelUses, RelSimilarTo, RelContradict,
		RelSupersedes, RelMentions, RelAbout:
		return true
	}
	return false
}

// Source identifies which backend(s) a search result was drawn from.
type Source string

const (
	SourceVector       Source = "vector"
	SourceGraph        Source = "graph"
	SourceConversation Source = "conversation"
	SourceMerged       Source = "merged"
)

// SearchMode constrains which backends a search dispatches to.
type SearchMode string

const (
	ModeSemantic   SearchMode = "semantic"
	ModeStructured SearchMode = "structured"
	ModeHybrid     SearchMode = "hybrid"
)

// IsValid reports whether m is one of the recognized modes (the zero value
// is not valid; callers should default to [ModeHybrid]).
func (m SearchMode) IsValid() bool {
	switch m {
	case ModeSemantic, ModeStructured, ModeHybrid:
		return true
	}
	return false
}

// Memory is the unit of recorded knowledge (§3).
type Memory struct {
	ID                   string
	Content              string
	Embedding            []float32
	Title                string
	ContentHash          string
	Layer                Layer
	Sublayer             Sublayer
	Kind                 Kind
	Importance           int
	Confidence           float64
	CreatedAt            time.Time
	LastAccessedAt       time.Time
	AccessCount          int
	DecayRate            float64
	ReinforcementFactor  float64
	Status               Status
	SessionID            string
	Tags                 []string
	Supersedes           string
	SupersededBy         string
}

// Entity is a node in the property graph (§3).
type Entity struct {
	ID         string
	Name       string
	EntityType string
	// Props carries free-form caller metadata serialized to a single string
	// value, per the graph store's reserved-word restriction (§4.4).
	Props string
}

// Relationship is a directed edge between entities or memories (§3).
type Relationship struct {
	FromID  string
	ToID    string
	RelType RelType
	Weight  float64
	Props   string
}

// Session is the ordered append-only container of [Message] records (§3).
type Session struct {
	ID        string
	CreatedAt time.Time
}

// MessageRole is the speaker role of a [Message].
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry in a [Session]'s append-only log (§3, §4.6).
type Message struct {
	SessionID string
	Role      MessageRole
	Text      string
	Timestamp time.Time
}

// EntityRef and RelationshipRef are the caller-supplied enrichment shapes
// accepted by add_memory (§4.2 input contract); From/To may reference either
// an entity name or another memory's title, resolved during ingestion.
type EntityRef struct {
	Name       string
	EntityType string
	Props      string
}

type RelationshipRef struct {
	FromRef string
	ToRef   string
	RelType RelType
	Props   string
}

// MemoryInput is the add_memory request contract (§4.2).
type MemoryInput struct {
	Content       string
	Title         string
	Layer         Layer
	Sublayer      Sublayer
	Kind          Kind
	Importance    int
	Confidence    float64
	Tags          []string
	Entities      []EntityRef
	Relationships []RelationshipRef
	Metadata      map[string]string
	ForceNew      bool
	SessionID     string
}

// IngestAction describes the outcome of an add_memory call.
type IngestAction string

const (
	ActionCreated    IngestAction = "created"
	ActionReinforced IngestAction = "reinforced"
	ActionSuperseded IngestAction = "superseded"
)

// IngestResult is the add_memory response contract (§4.2).
type IngestResult struct {
	ID       string
	Action   IngestAction
	Warnings []string
}
