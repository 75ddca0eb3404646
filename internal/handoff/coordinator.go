// Package handoff runs the request→accept/reject→complete state machine
// for transferring a task between two agents. Rejections trigger at most
// one automatic redirect per original request; exhaustion is surfaced as a
// delivery-failure event rather than silently dropped.
package handoff

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/exec"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/registry"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// Coordinator owns the handoff registry and its state machine.
type Coordinator struct {
	registry *registry.Registry
	router   *notify.Router
	bus      *bus.Bus
	executor exec.Executor
	clock    sched.Clock

	// mu protects requests. It is never held across the executor call or
	// any downstream notify/bus call.
	mu       sync.Mutex
	requests map[string]*models.HandoffRequest
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(reg *registry.Registry, router *notify.Router, b *bus.Bus, executor exec.Executor, clock sched.Clock) *Coordinator {
	return &Coordinator{
		registry: reg,
		router:   router,
		bus:      b,
		executor: executor,
		clock:    clock,
		requests: make(map[string]*models.HandoffRequest),
	}
}

// Create opens a handoff request from one agent to another. If the target
// is not available, the request is redirected to the best alternative
// sharing the target's specializations; when no alternative exists the
// request still targets the originally requested agent, since capacity is
// advisory rather than a hard gate.
func (c *Coordinator) Create(from, to, reason, taskContext, taskDescription, projectID string) (*models.HandoffRequest, error) {
	return c.create(from, to, reason, taskContext, taskDescription, projectID, "")
}

// create is Create plus the redirect lineage used by automatic retries.
func (c *Coordinator) create(from, to, reason, taskContext, taskDescription, projectID, redirectedFrom string) (*models.HandoffRequest, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("create handoff: empty agent role: %w", models.ErrValidation)
	}
	if taskDescription == "" {
		return nil, fmt.Errorf("create handoff: empty task description: %w", models.ErrValidation)
	}

	if _, err := c.registry.Get(from); err != nil {
		return nil, fmt.Errorf("create handoff: %w", err)
	}
	target, err := c.registry.Get(to)
	if err != nil {
		return nil, fmt.Errorf("create handoff: %w", err)
	}

	if target.Availability != models.AgentAvailable {
		if alt, ok := c.registry.FindAlternative(to, target.Specializations); ok {
			to = alt.Role
		}
	}

	req := &models.HandoffRequest{
		ID:              uuid.New().String(),
		FromAgent:       from,
		ToAgent:         to,
		Reason:          reason,
		Context:         taskContext,
		TaskDescription: taskDescription,
		Status:          models.HandoffPending,
		ProjectID:       projectID,
		RedirectedFrom:  redirectedFrom,
		CreatedAt:       c.clock.Now(),
	}

	c.mu.Lock()
	c.requests[req.ID] = req
	c.mu.Unlock()

	c.router.SendTemplate(notify.TemplateHandoffRequested, to, map[string]string{
		"from":   from,
		"task":   taskDescription,
		"reason": reason,
	})
	c.bus.PublishToAgents(bus.Event{
		Type:      bus.EventHandoffRequested,
		AgentRole: to,
		EntityID:  req.ID,
		ProjectID: projectID,
		Message:   taskDescription,
	}, to, from)

	return req.Clone(), nil
}

// Accept transitions a pending request to accepted, moves one task of load
// from the initiator to the acceptor, and invokes the task executor with
// the transferred context. The executor runs without any registry lock
// held; on success the request completes.
func (c *Coordinator) Accept(ctx context.Context, id string) (*models.HandoffRequest, error) {
	c.mu.Lock()
	req, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("handoff %s: %w", id, models.ErrNotFound)
	}
	if !req.Status.CanTransition(models.HandoffAccepted) {
		status := req.Status
		c.mu.Unlock()
		return nil, fmt.Errorf("accept handoff %s in status %s: %w", id, status, models.ErrInvalidState)
	}
	req.Status = models.HandoffAccepted
	req.RespondedAt = c.clock.Now()
	// Copy what the executor needs so no lock is held while it runs.
	from, to := req.FromAgent, req.ToAgent
	taskContext, task := req.Context, req.TaskDescription
	projectID := req.ProjectID
	c.mu.Unlock()

	// Both counters move under one registry lock so observers never see a
	// half-applied transfer.
	if err := c.registry.Transfer(from, to); err != nil {
		return nil, fmt.Errorf("accept handoff %s: %w", id, err)
	}

	c.router.SendTemplate(notify.TemplateHandoffAccepted, from, map[string]string{
		"to":   to,
		"task": task,
	})
	c.bus.PublishToAgents(bus.Event{
		Type:      bus.EventHandoffAccepted,
		AgentRole: to,
		EntityID:  id,
		ProjectID: projectID,
	}, from, to)

	result, execErr := c.executor.Execute(ctx, to, taskContext, task)

	c.mu.Lock()
	// Recheck: the request cannot have left accepted, but the recheck
	// keeps the apply step honest if that ever changes.
	if req.Status != models.HandoffAccepted {
		cp := req.Clone()
		c.mu.Unlock()
		return cp, nil
	}
	if execErr == nil && result.Success {
		req.Status = models.HandoffCompleted
		req.Result = result.Text
		req.CompletedAt = c.clock.Now()
	}
	cp := req.Clone()
	c.mu.Unlock()

	if execErr != nil || !result.Success {
		// Reported, never retried here: retry policy belongs to the caller.
		c.bus.PublishToAgents(bus.Event{
			Type:      bus.EventDeliveryFailure,
			AgentRole: to,
			EntityID:  id,
			ProjectID: projectID,
			Message:   fmt.Sprintf("task execution failed: %v", execErr),
		}, from, to)
		return cp, nil
	}

	c.router.SendTemplate(notify.TemplateHandoffCompleted, from, map[string]string{
		"to":   to,
		"task": task,
	})
	c.bus.PublishToAgents(bus.Event{
		Type:      bus.EventHandoffCompleted,
		AgentRole: to,
		EntityID:  id,
		ProjectID: projectID,
	}, from, to)

	return cp, nil
}

// Reject transitions a pending request to rejected, notifies the
// initiator, and attempts exactly one automatic redirect to an alternative
// agent. A rejected redirect does not chain further; exhaustion emits a
// delivery-failure event.
func (c *Coordinator) Reject(id, reason string) (*models.HandoffRequest, error) {
	c.mu.Lock()
	req, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("handoff %s: %w", id, models.ErrNotFound)
	}
	if !req.Status.CanTransition(models.HandoffRejected) {
		status := req.Status
		c.mu.Unlock()
		return nil, fmt.Errorf("reject handoff %s in status %s: %w", id, status, models.ErrInvalidState)
	}
	req.Status = models.HandoffRejected
	req.RespondedAt = c.clock.Now()
	cp := req.Clone()
	c.mu.Unlock()

	c.router.SendTemplate(notify.TemplateHandoffRejected, cp.FromAgent, map[string]string{
		"to":     cp.ToAgent,
		"task":   cp.TaskDescription,
		"reason": reason,
	})
	c.bus.PublishToAgents(bus.Event{
		Type:      bus.EventHandoffRejected,
		AgentRole: cp.ToAgent,
		EntityID:  id,
		ProjectID: cp.ProjectID,
		Message:   reason,
	}, cp.FromAgent, cp.ToAgent)

	if cp.RedirectedFrom != "" {
		// This request was already the one allowed redirect.
		c.exhausted(cp, reason)
		return cp, nil
	}

	rejector, err := c.registry.Get(cp.ToAgent)
	if err != nil {
		c.exhausted(cp, reason)
		return cp, nil
	}
	alt, ok := c.registry.FindAlternative(cp.ToAgent, rejector.Specializations)
	if !ok {
		c.exhausted(cp, reason)
		return cp, nil
	}

	redirectReason := fmt.Sprintf("redirected after rejection by %s: %s", cp.ToAgent, reason)
	if _, err := c.create(cp.FromAgent, alt.Role, redirectReason, cp.Context, cp.TaskDescription, cp.ProjectID, cp.ID); err != nil {
		c.exhausted(cp, reason)
	}
	return cp, nil
}

// exhausted reports a handoff with no remaining delivery options.
func (c *Coordinator) exhausted(req *models.HandoffRequest, reason string) {
	c.router.SendTemplate(notify.TemplateHandoffExhausted, req.FromAgent, map[string]string{
		"task":   req.TaskDescription,
		"reason": reason,
	})
	c.bus.PublishToAgents(bus.Event{
		Type:      bus.EventDeliveryFailure,
		AgentRole: req.FromAgent,
		EntityID:  req.ID,
		ProjectID: req.ProjectID,
		Message:   "no alternative agent available after rejection",
	}, req.FromAgent)
}

// Get returns a copy of the request.
func (c *Coordinator) Get(id string) (*models.HandoffRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[id]
	if !ok {
		return nil, fmt.Errorf("handoff %s: %w", id, models.ErrNotFound)
	}
	return req.Clone(), nil
}

// List returns copies of every request with the given status, or all
// requests when status is empty, ordered by creation time then id.
func (c *Coordinator) List(status models.HandoffStatus) []*models.HandoffRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*models.HandoffRequest
	for _, req := range c.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
