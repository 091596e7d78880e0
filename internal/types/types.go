// Package types defines the core data model: users, workspaces,
// conversations, messages, memories, relationships, and the lifecycle
// audit log, per the workspace-scoped memory store's data model.
package types

import "time"

// WorkspaceType distinguishes personal from team workspaces.
type WorkspaceType string

const (
	WorkspacePersonal WorkspaceType = "personal"
	WorkspaceTeam     WorkspaceType = "team"
)

// MessageRole is who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// LifecycleState is one of the memory state machine's five states.
type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateDecaying LifecycleState = "decaying"
	StateArchived LifecycleState = "archived"
	StateExpired  LifecycleState = "expired"
	StatePinned   LifecycleState = "pinned"
)

// TriggerSource distinguishes automatic lifecycle transitions from
// user-initiated ones, per the state machine's transition table.
type TriggerSource string

const (
	TriggerSystem TriggerSource = "system"
	TriggerUser   TriggerSource = "user"
)

// User is an account that owns one or more workspaces.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Workspace is the isolation unit: every memory, conversation, and
// relationship belongs to exactly one workspace.
type Workspace struct {
	ID        string
	Name      string
	Type      WorkspaceType
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation is a logical container of messages, sourced from a
// normalized chat-capture provider.
type Conversation struct {
	ID          string
	WorkspaceID string
	Provider    string
	ExternalID  string
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is a single turn within a Conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// Memory is the central entity: a structured artifact extracted from a
// conversation, carrying both content fields and lifecycle bookkeeping.
type Memory struct {
	ID             string
	WorkspaceID    string
	ConversationID string // empty if not sourced from a conversation
	Type           string
	Content        string
	Confidence     float64
	Metadata       map[string]interface{}
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Lifecycle fields, see the Lifecycle Engine.
	LifecycleState  LifecycleState
	LastAccessedAt  time.Time
	AccessCount     int64
	ImportanceScore float64
	DecayScore      float64
	EffectiveTTL    time.Duration // 0 means unset
	Pinned          bool
	PinnedBy        string
	PinnedAt        time.Time
	ArchivedAt      time.Time
	ExpiresAt       time.Time

	// SourceMessageIDs records which messages this memory was extracted
	// from, populated by the extraction orchestrator.
	SourceMessageIDs []string
}

// ArchivedMemory pairs a Memory (whose ArchivedAt records when it was
// archived) with the reason it was archived.
type ArchivedMemory struct {
	Memory
	ArchivedReason string
}

// Relationship is a typed, directed, confidence-scored edge between two
// memories in the same workspace.
type Relationship struct {
	ID               string
	WorkspaceID      string
	FromMemoryID     string
	ToMemoryID       string
	RelationshipType string
	Confidence       float64
	CreatedAt        time.Time
}

// LifecycleEvent is an append-only audit record of a state transition.
type LifecycleEvent struct {
	ID            string
	MemoryID      string
	WorkspaceID   string
	PreviousState LifecycleState
	NewState      LifecycleState
	Reason        string
	TriggeredBy   TriggerSource
	UserID        string
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}

// SortOrder controls list_memories ordering.
type SortOrder string

const (
	SortCreatedAtAsc  SortOrder = "created_at_asc"
	SortCreatedAtDesc SortOrder = "created_at_desc"
)

// ListFilter constrains list_memories.
type ListFilter struct {
	Types  []string
	Order  SortOrder
	Limit  int // clamped to [1,1000] by the caller
	Offset int // >= 0
}

// SearchQuery constrains search_memories.
type SearchQuery struct {
	Vector          []float32
	Text            string
	Types           []string
	DateFrom        time.Time
	DateTo          time.Time
	Limit           int // clamped to [1,100]
	IncludeArchived bool
}

// ScoredMemory pairs a Memory with its search relevance score.
type ScoredMemory struct {
	Memory Memory
	Score  float64
}

// Clone returns a deep-enough copy of Memory for callers that mutate
// lifecycle fields without touching the caller's original struct.
func (m *Memory) Clone() *Memory {
	clone := *m
	if m.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	clone.SourceMessageIDs = append([]string(nil), m.SourceMessageIDs...)
	return &clone
}
