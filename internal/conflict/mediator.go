// Package conflict tracks open disputes among agents, auto-assigns a
// mediator by severity, and escalates through a bounded ladder.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// DefaultEscalationCeiling is the escalation level at which a conflict
// flips to escalated and the pool is notified.
const DefaultEscalationCeiling = 3

// Mediator owns the conflict registry.
type Mediator struct {
	router *notify.Router
	bus    *bus.Bus
	clock  sched.Clock

	// coordinatorRole is the designated mediator for high and critical
	// disputes.
	coordinatorRole string
	// ceiling caps the escalation level.
	ceiling int

	// mu protects conflicts. Never held across notify/bus calls.
	mu        sync.Mutex
	conflicts map[string]*models.Conflict
}

// NewMediator creates a Mediator. A ceiling of 0 uses the default.
func NewMediator(router *notify.Router, b *bus.Bus, clock sched.Clock, coordinatorRole string, ceiling int) *Mediator {
	if ceiling <= 0 {
		ceiling = DefaultEscalationCeiling
	}
	return &Mediator{
		router:          router,
		bus:             b,
		clock:           clock,
		coordinatorRole: coordinatorRole,
		ceiling:         ceiling,
		conflicts:       make(map[string]*models.Conflict),
	}
}

// Create opens a dispute. High and critical severities are auto-assigned
// the coordinator role as mediator and start in mediation; lower
// severities stay open until a mediator picks them up.
func (m *Mediator) Create(conflictType string, severity models.ConflictSeverity, description string, involvedAgents []string, projectID string) (*models.Conflict, error) {
	if conflictType == "" || description == "" {
		return nil, fmt.Errorf("create conflict: empty type or description: %w", models.ErrValidation)
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("create conflict: unknown severity %q: %w", severity, models.ErrValidation)
	}
	if len(involvedAgents) == 0 {
		return nil, fmt.Errorf("create conflict: no involved agents: %w", models.ErrValidation)
	}

	c := &models.Conflict{
		ID:             uuid.New().String(),
		Type:           conflictType,
		Severity:       severity,
		Description:    description,
		InvolvedAgents: append([]string(nil), involvedAgents...),
		Status:         models.ConflictOpen,
		ProjectID:      projectID,
		CreatedAt:      m.clock.Now(),
	}
	if severity.AutoMediate() {
		c.Mediator = m.coordinatorRole
		c.Status = models.ConflictInMediation
	}

	m.mu.Lock()
	m.conflicts[c.ID] = c
	cp := c.Clone()
	m.mu.Unlock()

	if cp.Mediator != "" {
		m.router.SendTemplate(notify.TemplateConflictAssigned, cp.Mediator, map[string]string{
			"severity":    string(cp.Severity),
			"type":        cp.Type,
			"description": cp.Description,
		})
	}
	m.bus.Publish(bus.Event{
		Type:      bus.EventConflictCreated,
		EntityID:  cp.ID,
		ProjectID: cp.ProjectID,
		Message:   cp.Description,
	})
	return cp, nil
}

// AssignMediator puts an open dispute into mediation under the given role.
func (m *Mediator) AssignMediator(id, mediator string) (*models.Conflict, error) {
	if mediator == "" {
		return nil, fmt.Errorf("assign mediator: empty role: %w", models.ErrValidation)
	}

	m.mu.Lock()
	c, ok := m.conflicts[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("conflict %s: %w", id, models.ErrNotFound)
	}
	if c.Status != models.ConflictOpen && c.Status != models.ConflictInMediation {
		status := c.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("assign mediator to %s conflict %s: %w", status, id, models.ErrInvalidState)
	}
	c.Mediator = mediator
	c.Status = models.ConflictInMediation
	cp := c.Clone()
	m.mu.Unlock()

	m.router.SendTemplate(notify.TemplateConflictAssigned, mediator, map[string]string{
		"severity":    string(cp.Severity),
		"type":        cp.Type,
		"description": cp.Description,
	})
	return cp, nil
}

// Resolve settles a dispute. Terminal: a resolved conflict accepts no
// further transitions. Every involved agent is notified.
func (m *Mediator) Resolve(id, resolution, resolvedBy string) (*models.Conflict, error) {
	m.mu.Lock()
	c, ok := m.conflicts[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("conflict %s: %w", id, models.ErrNotFound)
	}
	if c.Status == models.ConflictResolved {
		m.mu.Unlock()
		return nil, fmt.Errorf("conflict %s already resolved: %w", id, models.ErrInvalidState)
	}
	c.Status = models.ConflictResolved
	c.Resolution = resolution
	c.ResolvedBy = resolvedBy
	c.ResolvedAt = m.clock.Now()
	cp := c.Clone()
	m.mu.Unlock()

	for _, agent := range cp.InvolvedAgents {
		m.router.SendTemplate(notify.TemplateConflictResolved, agent, map[string]string{
			"resolver":   resolvedBy,
			"type":       cp.Type,
			"resolution": resolution,
		})
	}
	m.bus.Publish(bus.Event{
		Type:      bus.EventConflictResolved,
		EntityID:  cp.ID,
		ProjectID: cp.ProjectID,
		Message:   resolution,
	})
	return cp, nil
}

// Escalate raises the dispute one level. The level is monotonic and caps
// at the ceiling; hitting the ceiling flips the status to escalated
// exactly once and broadcasts to the pool. Further calls are no-ops on
// status and never error. Escalating a resolved conflict fails.
func (m *Mediator) Escalate(id string) (*models.Conflict, error) {
	m.mu.Lock()
	c, ok := m.conflicts[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("conflict %s: %w", id, models.ErrNotFound)
	}
	if c.Status == models.ConflictResolved {
		m.mu.Unlock()
		return nil, fmt.Errorf("escalate resolved conflict %s: %w", id, models.ErrInvalidState)
	}

	if c.EscalationLevel < m.ceiling {
		c.EscalationLevel++
	}
	crossed := c.EscalationLevel >= m.ceiling && c.Status != models.ConflictEscalated
	if crossed {
		c.Status = models.ConflictEscalated
	}
	cp := c.Clone()
	m.mu.Unlock()

	if crossed {
		m.router.SendTemplate(notify.TemplateConflictEscalated, models.BroadcastRecipient, map[string]string{
			"severity":    string(cp.Severity),
			"type":        cp.Type,
			"description": cp.Description,
		})
		m.bus.Publish(bus.Event{
			Type:      bus.EventConflictEscalated,
			EntityID:  cp.ID,
			ProjectID: cp.ProjectID,
			Message:   fmt.Sprintf("conflict escalated to level %d", cp.EscalationLevel),
		})
	}
	return cp, nil
}

// Get returns a copy of the conflict.
func (m *Mediator) Get(id string) (*models.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[id]
	if !ok {
		return nil, fmt.Errorf("conflict %s: %w", id, models.ErrNotFound)
	}
	return c.Clone(), nil
}

// Open returns every unresolved conflict, ordered by creation time.
func (m *Mediator) Open() []*models.Conflict {
	return m.list(func(c *models.Conflict) bool {
		return c.Status != models.ConflictResolved
	})
}

// Involving returns every conflict the role is party to.
func (m *Mediator) Involving(role string) []*models.Conflict {
	return m.list(func(c *models.Conflict) bool {
		return c.Involves(role)
	})
}

// list returns clones of conflicts matching the filter, ordered by
// creation time then id.
func (m *Mediator) list(match func(*models.Conflict) bool) []*models.Conflict {
	m.mu.Lock()
	var out []*models.Conflict
	for _, c := range m.conflicts {
		if match(c) {
			out = append(out, c.Clone())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return out
}
