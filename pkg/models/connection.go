package models

import "time"

// ConnectionStatus represents the state of a subscriber connection.
type ConnectionStatus string

const (
	// ConnectionActive indicates the connection receives events.
	ConnectionActive ConnectionStatus = "active"
	// ConnectionClosed indicates the connection was disconnected or reaped.
	ConnectionClosed ConnectionStatus = "closed"
)

// Connection is an ephemeral event subscriber. Connections are created on
// subscribe, destroyed on disconnect or by the idle sweep, and never
// persisted.
type Connection struct {
	// ID is the unique identifier of the connection.
	ID string `json:"id"`
	// AgentRole is the role this connection subscribes as.
	AgentRole string `json:"agent_role"`
	// SessionID groups connections from one client session.
	SessionID string `json:"session_id"`
	// ProjectID optionally joins the connection to a project room.
	ProjectID string `json:"project_id,omitempty"`
	// Status is the current connection state.
	Status ConnectionStatus `json:"status"`
	// ConnectedAt is when the connection subscribed.
	ConnectedAt time.Time `json:"connected_at"`
	// LastSeen is refreshed on every delivered event and keepalive.
	LastSeen time.Time `json:"last_seen"`
}

// Clone returns a copy of the connection.
func (c *Connection) Clone() *Connection {
	cp := *c
	return &cp
}
