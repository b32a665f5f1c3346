package models

// Role identifies who produced a message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
)

// MessageStatus is the lifecycle of a ledger message. Status only moves
// forward: pending -> streaming -> success, or to failed. Terminal
// messages are immutable.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusSuccess   MessageStatus = "success"
	StatusFailed    MessageStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Thread is a persistent, user-owned conversation container.
type Thread struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Owner is the opaque verified user id; threads are owned by exactly
	// one user and every thread-scoped operation checks it.
	Owner string `json:"owner"`
	// Summary is an optional assistant-produced recap of the thread.
	Summary   string `json:"summary,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
	UpdatedTS int64  `json:"updated_ts,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
	DeletedTS int64  `json:"deleted_ts,omitempty"`
}

// Message is one ordered entry in a thread's ledger. Order is the turn
// position within the thread; Step orders the pieces of a single
// assistant turn that spans multiple model steps (tool calls and
// follow-up replies share the parent's Order).
type Message struct {
	ID     string        `json:"id"`
	Thread string        `json:"thread"`
	Role   Role          `json:"role"`
	Order  uint64        `json:"order"`
	Step   uint64        `json:"step"`
	Text   string        `json:"text,omitempty"`
	Status MessageStatus `json:"status"`
	TS     int64         `json:"ts"`
}

// DeltaKind tags the variants carried on the per-thread delta log.
type DeltaKind string

const (
	// DeltaText carries an incremental fragment of assistant text.
	DeltaText DeltaKind = "text"
	// DeltaApproval announces a newly created pending approval so
	// viewers can render the inline decision affordance.
	DeltaApproval DeltaKind = "approval"
	// DeltaFinal announces that a message reached a terminal status.
	DeltaFinal DeltaKind = "final"
)

// StreamDelta is an ephemeral fragment of in-progress assistant output.
// Seq increases monotonically per thread; replaying all text deltas for
// a message in seq order yields a prefix of its final text.
type StreamDelta struct {
	Seq        uint64        `json:"seq"`
	Thread     string        `json:"thread"`
	Message    string        `json:"message"`
	Kind       DeltaKind     `json:"kind"`
	Text       string        `json:"text,omitempty"`
	ApprovalID string        `json:"approval_id,omitempty"`
	Status     MessageStatus `json:"status,omitempty"`
}

// ApprovalStatus is the lifecycle of a gated tool-call request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// FlashcardArgs is the validated argument schema of the gated
// create_flashcard action.
type FlashcardArgs struct {
	Text string `json:"text"`
	Note string `json:"note"`
}

// ToolCallApproval tracks one gated tool invocation from request to
// resolution. At most one approval ever exists per invocation id, and
// status transitions exactly once away from pending. Approvals are kept
// forever as an audit trail.
type ToolCallApproval struct {
	ID         string         `json:"id"`
	Thread     string         `json:"thread"`
	Message    string         `json:"message"`
	Invocation string         `json:"invocation"`
	Owner      string         `json:"owner"`
	Action     string         `json:"action"`
	Args       FlashcardArgs  `json:"args"`
	Status     ApprovalStatus `json:"status"`
	// FlashcardID references the artifact created on approval.
	FlashcardID string `json:"flashcard_id,omitempty"`
	CreatedTS   int64  `json:"created_ts"`
	ResolvedTS  int64  `json:"resolved_ts,omitempty"`
}

// Flashcard is the study artifact created when an approval is granted.
type Flashcard struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Thread    string `json:"thread,omitempty"`
	Text      string `json:"text"`
	Note      string `json:"note"`
	CreatedTS int64  `json:"created_ts"`
}
