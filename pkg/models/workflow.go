package models

import "time"

// StepStatus represents the state of a workflow step.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepInProgress indicates the step is actively being worked.
	StepInProgress StepStatus = "in_progress"
	// StepCompleted indicates the step finished and cleared review.
	StepCompleted StepStatus = "completed"
	// StepBlocked indicates a reviewer rejected or requested changes.
	StepBlocked StepStatus = "blocked"
	// StepFailed indicates the step failed during execution.
	StepFailed StepStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepBlocked, StepFailed:
		return true
	default:
		return false
	}
}

// ApprovalStatus represents a reviewer's verdict on a step.
type ApprovalStatus string

const (
	// ApprovalPending indicates the reviewer has not responded.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved indicates the reviewer approved the step.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected indicates the reviewer rejected the step.
	ApprovalRejected ApprovalStatus = "rejected"
	// ApprovalChangesRequested indicates the reviewer asked for changes.
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
)

// Valid returns true if the status is a known value.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalChangesRequested:
		return true
	default:
		return false
	}
}

// Negative returns true if the verdict blocks the step.
func (s ApprovalStatus) Negative() bool {
	return s == ApprovalRejected || s == ApprovalChangesRequested
}

// Approval is one reviewer's record on a workflow step.
type Approval struct {
	// ReviewerID is the role of the reviewing agent.
	ReviewerID string `json:"reviewer_id"`
	// Status is the reviewer's verdict.
	Status ApprovalStatus `json:"status"`
	// Comment is the reviewer's optional feedback.
	Comment string `json:"comment,omitempty"`
	// ReviewedAt is when the verdict was recorded.
	ReviewedAt time.Time `json:"reviewed_at,omitzero"`
}

// WorkflowStep is a unit of work gated by dependency completion and
// optional reviewer approval.
type WorkflowStep struct {
	// ID is the unique identifier of the step.
	ID string `json:"id"`
	// Name is the human-readable step name.
	Name string `json:"name"`
	// AssignedAgent is the role responsible for the step.
	AssignedAgent string `json:"assigned_agent"`
	// DependsOn lists step IDs that must complete before this step starts.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// Reviewers lists the roles whose approval the step requires.
	Reviewers []string `json:"reviewers,omitempty"`
	// Approvals holds one record per reviewer, seeded pending.
	Approvals []Approval `json:"approvals,omitempty"`
	// Deliverables references the outputs produced by the step.
	Deliverables []string `json:"deliverables,omitempty"`
	// EstimatedDuration is the planned duration for the step.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// ActualDuration is measured from start to completion.
	ActualDuration time.Duration `json:"actual_duration,omitempty"`
	// StartedAt is when the step entered in_progress.
	StartedAt time.Time `json:"started_at,omitzero"`
	// CompletedAt is when the step entered completed.
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// ApprovalFor returns the approval record for the given reviewer, or nil.
func (s *WorkflowStep) ApprovalFor(reviewerID string) *Approval {
	for i := range s.Approvals {
		if s.Approvals[i].ReviewerID == reviewerID {
			return &s.Approvals[i]
		}
	}
	return nil
}

// AllApproved returns true if every approval record is approved.
// A step with no reviewers is trivially approved.
func (s *WorkflowStep) AllApproved() bool {
	for i := range s.Approvals {
		if s.Approvals[i].Status != ApprovalApproved {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the step.
func (s *WorkflowStep) Clone() *WorkflowStep {
	cp := *s
	cp.DependsOn = append([]string(nil), s.DependsOn...)
	cp.Reviewers = append([]string(nil), s.Reviewers...)
	cp.Approvals = append([]Approval(nil), s.Approvals...)
	cp.Deliverables = append([]string(nil), s.Deliverables...)
	return &cp
}
