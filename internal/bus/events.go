// Package bus is the in-process event distributor. Subscriber connections
// are grouped into rooms (per-agent, per-project, global) and receive
// events fire-and-forget, with a bounded history replayed to new
// subscribers.
package bus

import (
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

// EventType represents the kind of event flowing through the bus.
type EventType string

const (
	// EventHandoffRequested indicates a handoff was created.
	EventHandoffRequested EventType = "handoff_requested"
	// EventHandoffAccepted indicates a handoff was accepted.
	EventHandoffAccepted EventType = "handoff_accepted"
	// EventHandoffRejected indicates a handoff was rejected.
	EventHandoffRejected EventType = "handoff_rejected"
	// EventHandoffCompleted indicates transferred work finished.
	EventHandoffCompleted EventType = "handoff_completed"
	// EventStepStarted indicates a workflow step entered in_progress.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a workflow step completed.
	EventStepCompleted EventType = "step_completed"
	// EventStepBlocked indicates a reviewer blocked a workflow step.
	EventStepBlocked EventType = "step_blocked"
	// EventFileUpdated indicates a workspace file was written.
	EventFileUpdated EventType = "file_updated"
	// EventFileLocked indicates a workspace file lock was taken.
	EventFileLocked EventType = "file_locked"
	// EventFileUnlocked indicates a workspace file lock was released.
	EventFileUnlocked EventType = "file_unlocked"
	// EventCommentAdded indicates a workspace comment was added.
	EventCommentAdded EventType = "comment_added"
	// EventConflictCreated indicates a dispute was opened.
	EventConflictCreated EventType = "conflict_created"
	// EventConflictResolved indicates a dispute was resolved.
	EventConflictResolved EventType = "conflict_resolved"
	// EventConflictEscalated indicates a dispute escalated.
	EventConflictEscalated EventType = "conflict_escalated"
	// EventNotification carries a routed notification.
	EventNotification EventType = "notification"
	// EventAgentStatus indicates an agent availability or connection change.
	EventAgentStatus EventType = "agent_status"
	// EventDeliveryFailure surfaces a best-effort delivery that exhausted
	// its options, such as a redirect chain with no remaining candidates.
	EventDeliveryFailure EventType = "delivery_failure"
)

// Event is one message distributed through the bus.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`
	// Type is the kind of event.
	Type EventType `json:"type"`
	// AgentRole is the role the event concerns, if any.
	AgentRole string `json:"agent_role,omitempty"`
	// EntityID references the handoff/step/file/conflict the event is
	// about, if any.
	EntityID string `json:"entity_id,omitempty"`
	// ProjectID scopes the event to a project, if any.
	ProjectID string `json:"project_id,omitempty"`
	// Message provides human-readable context.
	Message string `json:"message,omitempty"`
	// Notification carries the routed notification for
	// EventNotification events.
	Notification *models.Notification `json:"notification,omitempty"`
	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`
}

// Room names. Connections implicitly join RoomGlobal plus their agent room
// and, when scoped, their project room.
const RoomGlobal = "global"

// AgentRoom returns the room name for a role.
func AgentRoom(role string) string { return "agent:" + role }

// ProjectRoom returns the room name for a project.
func ProjectRoom(projectID string) string { return "project:" + projectID }
