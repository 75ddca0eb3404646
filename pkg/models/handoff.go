package models

import "time"

// HandoffStatus represents the state of a handoff request.
type HandoffStatus string

const (
	// HandoffPending indicates the handoff is awaiting a response.
	HandoffPending HandoffStatus = "pending"
	// HandoffAccepted indicates the target agent accepted the work.
	HandoffAccepted HandoffStatus = "accepted"
	// HandoffRejected indicates the target agent declined the work.
	HandoffRejected HandoffStatus = "rejected"
	// HandoffCompleted indicates the transferred work finished.
	HandoffCompleted HandoffStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s HandoffStatus) Valid() bool {
	switch s {
	case HandoffPending, HandoffAccepted, HandoffRejected, HandoffCompleted:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this
// status.
func (s HandoffStatus) Terminal() bool {
	return s == HandoffRejected || s == HandoffCompleted
}

// CanTransition reports whether a handoff may move from s to next.
// The machine is pending→(accepted|rejected) and accepted→completed.
func (s HandoffStatus) CanTransition(next HandoffStatus) bool {
	switch s {
	case HandoffPending:
		return next == HandoffAccepted || next == HandoffRejected
	case HandoffAccepted:
		return next == HandoffCompleted
	default:
		return false
	}
}

// HandoffRequest is a structured transfer of work between two agents.
type HandoffRequest struct {
	// ID is the unique identifier of the request.
	ID string `json:"id"`
	// FromAgent is the role handing the work off.
	FromAgent string `json:"from_agent"`
	// ToAgent is the role asked to take the work over.
	ToAgent string `json:"to_agent"`
	// Reason explains why the handoff was initiated.
	Reason string `json:"reason"`
	// Context is the opaque payload transferred with the work.
	Context string `json:"context,omitempty"`
	// TaskDescription describes the unit of work being transferred.
	TaskDescription string `json:"task_description"`
	// Status is the current state of the request.
	Status HandoffStatus `json:"status"`
	// ProjectID optionally scopes the handoff to a project.
	ProjectID string `json:"project_id,omitempty"`
	// RedirectedFrom is the ID of the original request when this handoff
	// was created automatically after a rejection. Empty for first-hand
	// requests.
	RedirectedFrom string `json:"redirected_from,omitempty"`
	// Result holds the executor output once the handoff completes.
	Result string `json:"result,omitempty"`
	// CreatedAt is when the request was created.
	CreatedAt time.Time `json:"created_at"`
	// RespondedAt is when the request was accepted or rejected.
	RespondedAt time.Time `json:"responded_at,omitzero"`
	// CompletedAt is when the transferred work finished.
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Clone returns a copy of the request.
func (h *HandoffRequest) Clone() *HandoffRequest {
	cp := *h
	return &cp
}
