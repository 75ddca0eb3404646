package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

// Handoff audit operations

// RecordHandoff upserts a handoff snapshot. Callers archive requests once
// they reach a terminal status, but any status is accepted.
func (db *DB) RecordHandoff(h *models.HandoffRequest) error {
	var completedAt any
	if !h.CompletedAt.IsZero() {
		completedAt = formatTime(h.CompletedAt)
	}
	_, err := db.Exec(`
		INSERT INTO handoffs (id, from_agent, to_agent, reason, task_description, status, result, redirected_from, project_id, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, result = excluded.result, completed_at = excluded.completed_at
	`, h.ID, h.FromAgent, h.ToAgent, h.Reason, h.TaskDescription, string(h.Status), h.Result, h.RedirectedFrom, h.ProjectID, formatTime(h.CreatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("record handoff: %w", err)
	}
	return nil
}

// GetHandoff retrieves an archived handoff by ID.
// Returns nil if the handoff was never archived.
func (db *DB) GetHandoff(id string) (*models.HandoffRequest, error) {
	row := db.QueryRow(`
		SELECT id, from_agent, to_agent, reason, task_description, status, result, redirected_from, project_id, created_at, completed_at
		FROM handoffs WHERE id = ?
	`, id)

	h, err := scanHandoff(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handoff: %w", err)
	}
	return h, nil
}

// ListHandoffs returns archived handoffs, newest first. An empty status
// matches all.
func (db *DB) ListHandoffs(status models.HandoffStatus) ([]*models.HandoffRequest, error) {
	query := `
		SELECT id, from_agent, to_agent, reason, task_description, status, result, redirected_from, project_id, created_at, completed_at
		FROM handoffs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	defer rows.Close()

	var out []*models.HandoffRequest
	for rows.Next() {
		h, err := scanHandoff(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHandoff(scan func(...any) error) (*models.HandoffRequest, error) {
	var h models.HandoffRequest
	var result, redirectedFrom, projectID sql.NullString
	var createdAt string
	var completedAt sql.NullString
	err := scan(&h.ID, &h.FromAgent, &h.ToAgent, &h.Reason, &h.TaskDescription, &h.Status, &result, &redirectedFrom, &projectID, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	h.Result = result.String
	h.RedirectedFrom = redirectedFrom.String
	h.ProjectID = projectID.String
	h.CreatedAt, _ = parseTime(createdAt)
	h.CompletedAt = parseNullableTime(completedAt)
	return &h, nil
}

// Conflict audit operations

// RecordConflict upserts a conflict snapshot.
func (db *DB) RecordConflict(c *models.Conflict) error {
	involved, err := json.Marshal(c.InvolvedAgents)
	if err != nil {
		return fmt.Errorf("marshal involved agents: %w", err)
	}
	var resolvedAt any
	if !c.ResolvedAt.IsZero() {
		resolvedAt = formatTime(c.ResolvedAt)
	}
	_, err = db.Exec(`
		INSERT INTO conflicts (id, type, severity, description, involved_agents, status, mediator, resolution, resolved_by, escalation_level, project_id, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, mediator = excluded.mediator,
			resolution = excluded.resolution, resolved_by = excluded.resolved_by,
			escalation_level = excluded.escalation_level, resolved_at = excluded.resolved_at
	`, c.ID, c.Type, string(c.Severity), c.Description, string(involved), string(c.Status), c.Mediator, c.Resolution, c.ResolvedBy, c.EscalationLevel, c.ProjectID, formatTime(c.CreatedAt), resolvedAt)
	if err != nil {
		return fmt.Errorf("record conflict: %w", err)
	}
	return nil
}

// GetConflict retrieves an archived conflict by ID.
// Returns nil if the conflict was never archived.
func (db *DB) GetConflict(id string) (*models.Conflict, error) {
	row := db.QueryRow(`
		SELECT id, type, severity, description, involved_agents, status, mediator, resolution, resolved_by, escalation_level, project_id, created_at, resolved_at
		FROM conflicts WHERE id = ?
	`, id)

	c, err := scanConflict(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	return c, nil
}

// ListConflicts returns archived conflicts, newest first. An empty status
// matches all.
func (db *DB) ListConflicts(status models.ConflictStatus) ([]*models.Conflict, error) {
	query := `
		SELECT id, type, severity, description, involved_agents, status, mediator, resolution, resolved_by, escalation_level, project_id, created_at, resolved_at
		FROM conflicts
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConflict(scan func(...any) error) (*models.Conflict, error) {
	var c models.Conflict
	var involved string
	var mediator, resolution, resolvedBy, projectID sql.NullString
	var createdAt string
	var resolvedAt sql.NullString
	err := scan(&c.ID, &c.Type, &c.Severity, &c.Description, &involved, &c.Status, &mediator, &resolution, &resolvedBy, &c.EscalationLevel, &projectID, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(involved), &c.InvolvedAgents); err != nil {
		return nil, fmt.Errorf("unmarshal involved agents: %w", err)
	}
	c.Mediator = mediator.String
	c.Resolution = resolution.String
	c.ResolvedBy = resolvedBy.String
	c.ProjectID = projectID.String
	c.CreatedAt, _ = parseTime(createdAt)
	c.ResolvedAt = parseNullableTime(resolvedAt)
	return &c, nil
}

// Notification archive operations

// ArchiveNotification stores a notification snapshot.
func (db *DB) ArchiveNotification(n *models.Notification) error {
	_, err := db.Exec(`
		INSERT INTO notifications (id, recipient, category, severity, priority, title, body, persistent, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET read = excluded.read
	`, n.ID, n.Recipient, string(n.Category), n.Severity, string(n.Priority), n.Title, n.Body, boolToInt(n.Persistent), boolToInt(n.Read), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("archive notification: %w", err)
	}
	return nil
}

// ListArchivedNotifications returns archived notifications, newest
// first. An empty recipient matches all.
func (db *DB) ListArchivedNotifications(recipient string) ([]*models.Notification, error) {
	query := `
		SELECT id, recipient, category, severity, priority, title, body, persistent, read, created_at
		FROM notifications
	`
	var args []any
	if recipient != "" {
		query += " WHERE recipient = ?"
		args = append(args, recipient)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		var persistent, read int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Category, &n.Severity, &n.Priority, &n.Title, &n.Body, &persistent, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Persistent = persistent != 0
		n.Read = read != 0
		n.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// PurgeOldNotifications deletes archived notifications older than the
// given duration. Returns the number deleted.
func (db *DB) PurgeOldNotifications(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := db.Exec("DELETE FROM notifications WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old notifications: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
