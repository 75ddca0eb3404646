// Package notify builds notifications from templates, filters them by
// per-agent preference, and hands them to the event bus for delivery.
// Routing is best-effort end to end: a dropped notification never fails
// the business operation that triggered it.
package notify

import (
	"strings"

	"github.com/taskweave/taskweave/pkg/models"
)

// TemplateID identifies a notification template. The set is closed: every
// producer in the engine sends through one of these.
type TemplateID string

const (
	// TemplateHandoffRequested asks an agent to accept or reject a handoff.
	TemplateHandoffRequested TemplateID = "handoff_requested"
	// TemplateHandoffAccepted tells the initiator the handoff was accepted.
	TemplateHandoffAccepted TemplateID = "handoff_accepted"
	// TemplateHandoffRejected tells the initiator the handoff was rejected.
	TemplateHandoffRejected TemplateID = "handoff_rejected"
	// TemplateHandoffCompleted tells the initiator the work finished.
	TemplateHandoffCompleted TemplateID = "handoff_completed"
	// TemplateHandoffExhausted reports a redirect chain with no takers.
	TemplateHandoffExhausted TemplateID = "handoff_exhausted"
	// TemplateStepStarted tells the assignee their step is in progress.
	TemplateStepStarted TemplateID = "step_started"
	// TemplateReviewRequested asks a reviewer to review a completed step.
	TemplateReviewRequested TemplateID = "review_requested"
	// TemplateStepBlocked tells the assignee a reviewer blocked their step.
	TemplateStepBlocked TemplateID = "step_blocked"
	// TemplateStepCompleted tells the assignee their step cleared review.
	TemplateStepCompleted TemplateID = "step_completed"
	// TemplateConflictAssigned tells a mediator they own a dispute.
	TemplateConflictAssigned TemplateID = "conflict_assigned"
	// TemplateConflictResolved tells involved agents a dispute is settled.
	TemplateConflictResolved TemplateID = "conflict_resolved"
	// TemplateConflictEscalated announces a dispute hit the escalation
	// ceiling.
	TemplateConflictEscalated TemplateID = "conflict_escalated"
	// TemplateCommentAdded tells a file's last editor about a new comment.
	TemplateCommentAdded TemplateID = "comment_added"
)

// Template is a reusable, placeholder-driven message definition.
// Placeholders use {key} syntax; unresolved keys are left verbatim so
// delivery stays best-effort.
type Template struct {
	// Title is the title template.
	Title string
	// Body is the body template.
	Body string
	// Category groups the resulting notifications.
	Category models.NotificationCategory
	// Severity mirrors the originating event severity.
	Severity string
	// Priority is the delivery tier of the resulting notifications.
	Priority models.Priority
	// Persistent notifications are retained until read or expired.
	Persistent bool
	// DefaultActions are attached to every notification built from this
	// template.
	DefaultActions []models.NotificationAction
}

// builtinTemplates returns the engine's template set.
func builtinTemplates() map[TemplateID]Template {
	return map[TemplateID]Template{
		TemplateHandoffRequested: {
			Title:      "Handoff from {from}",
			Body:       "{from} asks you to take over: {task}. Reason: {reason}",
			Category:   models.CategoryHandoff,
			Severity:   "info",
			Priority:   models.PriorityHigh,
			Persistent: true,
			DefaultActions: []models.NotificationAction{
				{ID: "accept", Label: "Accept"},
				{ID: "reject", Label: "Reject"},
			},
		},
		TemplateHandoffAccepted: {
			Title:    "Handoff accepted",
			Body:     "{to} accepted: {task}",
			Category: models.CategoryHandoff,
			Severity: "info",
			Priority: models.PriorityNormal,
		},
		TemplateHandoffRejected: {
			Title:      "Handoff rejected",
			Body:       "{to} rejected: {task}. Reason: {reason}",
			Category:   models.CategoryHandoff,
			Severity:   "warning",
			Priority:   models.PriorityHigh,
			Persistent: true,
		},
		TemplateHandoffCompleted: {
			Title:    "Handoff completed",
			Body:     "{to} finished: {task}",
			Category: models.CategoryHandoff,
			Severity: "info",
			Priority: models.PriorityNormal,
		},
		TemplateHandoffExhausted: {
			Title:      "Handoff undeliverable",
			Body:       "No agent could take over: {task}. Last rejection: {reason}",
			Category:   models.CategoryHandoff,
			Severity:   "error",
			Priority:   models.PriorityUrgent,
			Persistent: true,
		},
		TemplateStepStarted: {
			Title:    "Step started: {step}",
			Body:     "You are assigned to {step}.",
			Category: models.CategoryWorkflow,
			Severity: "info",
			Priority: models.PriorityNormal,
		},
		TemplateReviewRequested: {
			Title:      "Review requested: {step}",
			Body:       "{assignee} completed {step} and needs your review.",
			Category:   models.CategoryWorkflow,
			Severity:   "info",
			Priority:   models.PriorityHigh,
			Persistent: true,
			DefaultActions: []models.NotificationAction{
				{ID: "approve", Label: "Approve"},
				{ID: "reject", Label: "Reject"},
				{ID: "request_changes", Label: "Request changes"},
			},
		},
		TemplateStepBlocked: {
			Title:      "Step blocked: {step}",
			Body:       "{reviewer} blocked {step}: {comments}",
			Category:   models.CategoryWorkflow,
			Severity:   "warning",
			Priority:   models.PriorityHigh,
			Persistent: true,
		},
		TemplateStepCompleted: {
			Title:    "Step completed: {step}",
			Body:     "{step} cleared review and is complete.",
			Category: models.CategoryWorkflow,
			Severity: "info",
			Priority: models.PriorityNormal,
		},
		TemplateConflictAssigned: {
			Title:      "Mediation assigned",
			Body:       "You are mediating a {severity} {type} conflict: {description}",
			Category:   models.CategoryConflict,
			Severity:   "warning",
			Priority:   models.PriorityHigh,
			Persistent: true,
		},
		TemplateConflictResolved: {
			Title:    "Conflict resolved",
			Body:     "{resolver} resolved the {type} conflict: {resolution}",
			Category: models.CategoryConflict,
			Severity: "info",
			Priority: models.PriorityNormal,
		},
		TemplateConflictEscalated: {
			Title:      "Conflict escalated",
			Body:       "A {severity} {type} conflict reached the escalation ceiling: {description}",
			Category:   models.CategoryConflict,
			Severity:   "error",
			Priority:   models.PriorityUrgent,
			Persistent: true,
		},
		TemplateCommentAdded: {
			Title:    "New comment on {file}",
			Body:     "{author} commented: {comment}",
			Category: models.CategoryWorkspace,
			Severity: "info",
			Priority: models.PriorityLow,
		},
	}
}

// substitute replaces {key} placeholders with values from data, leaving
// unresolved placeholders verbatim.
func substitute(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
