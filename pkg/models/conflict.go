package models

import "time"

// ConflictSeverity ranks how disruptive a dispute is.
type ConflictSeverity string

const (
	// SeverityLow disputes wait for a mediator to pick them up.
	SeverityLow ConflictSeverity = "low"
	// SeverityMedium disputes wait for a mediator to pick them up.
	SeverityMedium ConflictSeverity = "medium"
	// SeverityHigh disputes are auto-assigned a mediator.
	SeverityHigh ConflictSeverity = "high"
	// SeverityCritical disputes are auto-assigned a mediator.
	SeverityCritical ConflictSeverity = "critical"
)

// Valid returns true if the severity is a known value.
func (s ConflictSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// AutoMediate returns true if the severity triggers automatic mediator
// assignment on creation.
func (s ConflictSeverity) AutoMediate() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ConflictStatus represents the state of a dispute.
type ConflictStatus string

const (
	// ConflictOpen indicates the dispute has no mediator yet.
	ConflictOpen ConflictStatus = "open"
	// ConflictInMediation indicates a mediator is assigned.
	ConflictInMediation ConflictStatus = "in_mediation"
	// ConflictResolved is terminal.
	ConflictResolved ConflictStatus = "resolved"
	// ConflictEscalated indicates the escalation ceiling was reached.
	ConflictEscalated ConflictStatus = "escalated"
)

// Valid returns true if the status is a known value.
func (s ConflictStatus) Valid() bool {
	switch s {
	case ConflictOpen, ConflictInMediation, ConflictResolved, ConflictEscalated:
		return true
	default:
		return false
	}
}

// Conflict is a tracked dispute among agents.
type Conflict struct {
	// ID is the unique identifier of the conflict.
	ID string `json:"id"`
	// Type labels the kind of dispute (e.g., "merge", "ownership").
	Type string `json:"type"`
	// Severity ranks the dispute.
	Severity ConflictSeverity `json:"severity"`
	// Description explains the dispute.
	Description string `json:"description"`
	// InvolvedAgents lists the roles party to the dispute.
	InvolvedAgents []string `json:"involved_agents"`
	// Status is the current state.
	Status ConflictStatus `json:"status"`
	// Mediator is the role mediating the dispute, empty until assigned.
	Mediator string `json:"mediator,omitempty"`
	// Resolution is the free-form resolution text once resolved.
	Resolution string `json:"resolution,omitempty"`
	// ResolvedBy is the role that recorded the resolution.
	ResolvedBy string `json:"resolved_by,omitempty"`
	// EscalationLevel only increases and is capped by the mediator's
	// configured ceiling.
	EscalationLevel int `json:"escalation_level"`
	// ProjectID optionally scopes the conflict to a project.
	ProjectID string `json:"project_id,omitempty"`
	// CreatedAt is when the conflict was opened.
	CreatedAt time.Time `json:"created_at"`
	// ResolvedAt is when the conflict was resolved.
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

// Involves returns true if the given role is party to the dispute.
func (c *Conflict) Involves(role string) bool {
	for _, a := range c.InvolvedAgents {
		if a == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the conflict.
func (c *Conflict) Clone() *Conflict {
	cp := *c
	cp.InvolvedAgents = append([]string(nil), c.InvolvedAgents...)
	return &cp
}
