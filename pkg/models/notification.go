package models

import "time"

// NotificationCategory groups notifications for preference filtering.
type NotificationCategory string

const (
	// CategoryHandoff covers handoff lifecycle notifications.
	CategoryHandoff NotificationCategory = "handoff"
	// CategoryWorkflow covers workflow step notifications.
	CategoryWorkflow NotificationCategory = "workflow"
	// CategoryWorkspace covers workspace file and comment notifications.
	CategoryWorkspace NotificationCategory = "workspace"
	// CategoryConflict covers conflict mediation notifications.
	CategoryConflict NotificationCategory = "conflict"
	// CategoryAgent covers agent status notifications.
	CategoryAgent NotificationCategory = "agent"
	// CategorySystem covers engine-level notifications.
	CategorySystem NotificationCategory = "system"
)

// Valid returns true if the category is a known value.
func (c NotificationCategory) Valid() bool {
	switch c {
	case CategoryHandoff, CategoryWorkflow, CategoryWorkspace,
		CategoryConflict, CategoryAgent, CategorySystem:
		return true
	default:
		return false
	}
}

// Priority is the delivery tier of a notification.
type Priority string

const (
	// PriorityLow is informational.
	PriorityLow Priority = "low"
	// PriorityNormal is the default tier.
	PriorityNormal Priority = "normal"
	// PriorityHigh interrupts.
	PriorityHigh Priority = "high"
	// PriorityUrgent is reserved for escalations and failures.
	PriorityUrgent Priority = "urgent"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// BroadcastRecipient addresses a notification to every agent.
const BroadcastRecipient = "broadcast"

// NotificationAction is an actionable choice attached to a notification,
// rendered by the consuming UI.
type NotificationAction struct {
	// ID identifies the action (e.g., "accept", "reject").
	ID string `json:"id"`
	// Label is the human-readable action label.
	Label string `json:"label"`
}

// Notification is a routed message for one agent or for broadcast.
type Notification struct {
	// ID is the unique identifier of the notification.
	ID string `json:"id"`
	// Category groups the notification for preference filtering.
	Category NotificationCategory `json:"category"`
	// Severity mirrors the originating event severity (e.g., "info",
	// "warning", "error").
	Severity string `json:"severity"`
	// Title is the rendered title.
	Title string `json:"title"`
	// Body is the rendered body.
	Body string `json:"body"`
	// Recipient is a single agent role or BroadcastRecipient.
	Recipient string `json:"recipient"`
	// Persistent notifications survive in the store until read or expired.
	Persistent bool `json:"persistent"`
	// Read marks the notification as seen by its recipient.
	Read bool `json:"read"`
	// Priority is the delivery tier.
	Priority Priority `json:"priority"`
	// Actions lists actionable choices attached to the notification.
	Actions []NotificationAction `json:"actions,omitempty"`
	// ExpiresAt optionally removes the notification after this instant.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	// CreatedAt is when the notification was built.
	CreatedAt time.Time `json:"created_at"`
}

// Broadcast returns true if the notification addresses every agent.
func (n *Notification) Broadcast() bool {
	return n.Recipient == BroadcastRecipient
}

// Clone returns a deep copy of the notification.
func (n *Notification) Clone() *Notification {
	cp := *n
	cp.Actions = append([]NotificationAction(nil), n.Actions...)
	return &cp
}

// NotificationPreferences holds one agent's delivery preferences.
// Single-recipient notifications failing any enabled check are dropped
// silently; broadcasts bypass preferences entirely.
type NotificationPreferences struct {
	// DisabledCategories lists categories the agent has muted.
	DisabledCategories []NotificationCategory `json:"disabled_categories,omitempty"`
	// DisabledPriorities lists priority tiers the agent has muted.
	DisabledPriorities []Priority `json:"disabled_priorities,omitempty"`
	// AcceptPersistent controls whether persistent notifications are stored.
	AcceptPersistent bool `json:"accept_persistent"`
}

// DefaultPreferences returns preferences that accept everything.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{AcceptPersistent: true}
}

// Allows reports whether the preferences admit the given notification.
func (p NotificationPreferences) Allows(n *Notification) bool {
	for _, c := range p.DisabledCategories {
		if c == n.Category {
			return false
		}
	}
	for _, pr := range p.DisabledPriorities {
		if pr == n.Priority {
			return false
		}
	}
	if n.Persistent && !p.AcceptPersistent {
		return false
	}
	return true
}
