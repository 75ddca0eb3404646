// Package models defines the domain entities shared across the coordination
// engine: agents, handoffs, workflow steps, workspace files, notifications,
// conflicts, and ephemeral connections.
package models

import "time"

// Availability represents the live availability of an agent.
type Availability string

const (
	// AgentAvailable indicates the agent can take on more work.
	AgentAvailable Availability = "available"
	// AgentBusy indicates the agent is at or over its concurrent capacity.
	AgentBusy Availability = "busy"
	// AgentOffline indicates the agent is not participating.
	AgentOffline Availability = "offline"
)

// Valid returns true if the availability is a known value.
func (a Availability) Valid() bool {
	switch a {
	case AgentAvailable, AgentBusy, AgentOffline:
		return true
	default:
		return false
	}
}

// AgentProfile describes a worker role in the agent pool.
// Capacity is advisory: exceeding MaxCapacity flips the agent to busy but
// never rejects an assignment.
type AgentProfile struct {
	// Role is the unique role identifier (e.g., "pm", "dev").
	Role string `json:"role"`
	// MaxCapacity is the maximum number of concurrent tasks before the
	// agent is considered busy.
	MaxCapacity int `json:"max_capacity"`
	// CurrentTasks is the number of tasks the agent currently holds.
	// Never negative.
	CurrentTasks int `json:"current_tasks"`
	// Availability is the current availability state.
	Availability Availability `json:"availability"`
	// Specializations is the set of specialization tags for this agent.
	Specializations []string `json:"specializations,omitempty"`
	// LastActivity is updated on every workload mutation.
	LastActivity time.Time `json:"last_activity"`
}

// AtCapacity returns true if the agent holds at least its maximum
// concurrent task count.
func (p *AgentProfile) AtCapacity() bool {
	return p.CurrentTasks >= p.MaxCapacity
}

// HasSpecialization returns true if the agent carries the given tag.
func (p *AgentProfile) HasSpecialization(tag string) bool {
	for _, s := range p.Specializations {
		if s == tag {
			return true
		}
	}
	return false
}

// SpecializationOverlap returns how many of the required tags this agent
// carries.
func (p *AgentProfile) SpecializationOverlap(required []string) int {
	overlap := 0
	for _, tag := range required {
		if p.HasSpecialization(tag) {
			overlap++
		}
	}
	return overlap
}

// Clone returns a deep copy of the profile.
// Stores hand out clones so callers never hold shared mutable state.
func (p *AgentProfile) Clone() *AgentProfile {
	cp := *p
	cp.Specializations = append([]string(nil), p.Specializations...)
	return &cp
}
