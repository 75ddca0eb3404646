package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/pkg/models"
)

// Start moves a pending step to in_progress. Returns false without error
// when the step is not pending or any dependency is not completed; callers
// routinely probe for "can I start this", so unmet gates are a result, not
// a failure.
func (e *Engine) Start(stepID string) (bool, error) {
	e.mu.Lock()
	step, ok := e.steps[stepID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("step %s: %w", stepID, models.ErrNotFound)
	}
	if step.Status != models.StepPending || !e.depsCompletedLocked(step) {
		e.mu.Unlock()
		return false, nil
	}
	e.startLocked(step)
	cp := step.Clone()
	e.mu.Unlock()

	e.announceStarted(cp)
	return true, nil
}

// startLocked transitions the step to in_progress and stamps the start.
func (e *Engine) startLocked(step *models.WorkflowStep) {
	step.Status = models.StepInProgress
	step.StartedAt = e.clock.Now()
}

// depsCompletedLocked reports whether every dependency of the step is
// completed.
func (e *Engine) depsCompletedLocked(step *models.WorkflowStep) bool {
	for _, depID := range step.DependsOn {
		dep, ok := e.steps[depID]
		if !ok || dep.Status != models.StepCompleted {
			return false
		}
	}
	return true
}

// announceStarted notifies the assignee and publishes the start event.
func (e *Engine) announceStarted(step *models.WorkflowStep) {
	e.router.SendTemplate(notify.TemplateStepStarted, step.AssignedAgent, map[string]string{
		"step": step.Name,
	})
	e.bus.PublishToAgents(bus.Event{
		Type:      bus.EventStepStarted,
		AgentRole: step.AssignedAgent,
		EntityID:  step.ID,
		Message:   step.Name,
	}, step.AssignedAgent)
}

// Complete records the step's deliverables and completion time. Valid only
// from in_progress; other states return false without error. A step with
// reviewers is held in_progress until every approval lands — each reviewer
// receives a review request — while a reviewerless step completes
// immediately and unblocks its dependents.
func (e *Engine) Complete(stepID string, deliverables []string) (bool, error) {
	e.mu.Lock()
	step, ok := e.steps[stepID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("step %s: %w", stepID, models.ErrNotFound)
	}
	if step.Status != models.StepInProgress || !step.CompletedAt.IsZero() {
		e.mu.Unlock()
		return false, nil
	}
	step.Deliverables = append([]string(nil), deliverables...)
	step.CompletedAt = e.clock.Now()
	if !step.StartedAt.IsZero() {
		step.ActualDuration = step.CompletedAt.Sub(step.StartedAt)
	}
	// Held for review unless there are no reviewers or every reviewer
	// already approved ahead of completion.
	held := len(step.Reviewers) > 0 && !step.AllApproved()
	if !held {
		step.Status = models.StepCompleted
	}
	cp := step.Clone()
	e.mu.Unlock()

	if held {
		for _, reviewer := range cp.Reviewers {
			e.router.SendTemplate(notify.TemplateReviewRequested, reviewer, map[string]string{
				"step":     cp.Name,
				"assignee": cp.AssignedAgent,
			})
		}
		return true, nil
	}

	e.announceCompleted(cp)
	e.Advance()
	return true, nil
}

// announceCompleted notifies the assignee and publishes the completion.
func (e *Engine) announceCompleted(step *models.WorkflowStep) {
	e.router.SendTemplate(notify.TemplateStepCompleted, step.AssignedAgent, map[string]string{
		"step": step.Name,
	})
	e.bus.PublishToAgents(bus.Event{
		Type:      bus.EventStepCompleted,
		AgentRole: step.AssignedAgent,
		EntityID:  step.ID,
		Message:   step.Name,
	}, step.AssignedAgent)
}

// Review records one reviewer's verdict. When the last approval turns
// approved the step completes and the advance scan runs; any negative
// verdict blocks the step and forwards the reviewer's comments to the
// assignee.
func (e *Engine) Review(stepID, reviewerID string, verdict models.ApprovalStatus, comments string) (*models.WorkflowStep, error) {
	if !verdict.Valid() || verdict == models.ApprovalPending {
		return nil, fmt.Errorf("review step %s: invalid verdict %q: %w", stepID, verdict, models.ErrValidation)
	}

	e.mu.Lock()
	step, ok := e.steps[stepID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("step %s: %w", stepID, models.ErrNotFound)
	}
	approval := step.ApprovalFor(reviewerID)
	if approval == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("step %s has no reviewer %s: %w", stepID, reviewerID, models.ErrNotFound)
	}
	if step.Status == models.StepCompleted {
		e.mu.Unlock()
		return nil, fmt.Errorf("review step %s already completed: %w", stepID, models.ErrInvalidState)
	}

	approval.Status = verdict
	approval.Comment = comments
	approval.ReviewedAt = e.clock.Now()

	blocked := verdict.Negative()
	finished := false
	if blocked {
		step.Status = models.StepBlocked
	} else if step.AllApproved() && !step.CompletedAt.IsZero() && step.Status == models.StepInProgress {
		step.Status = models.StepCompleted
		finished = true
	}
	cp := step.Clone()
	e.mu.Unlock()

	if blocked {
		e.router.SendTemplate(notify.TemplateStepBlocked, cp.AssignedAgent, map[string]string{
			"step":     cp.Name,
			"reviewer": reviewerID,
			"comments": comments,
		})
		e.bus.PublishToAgents(bus.Event{
			Type:      bus.EventStepBlocked,
			AgentRole: cp.AssignedAgent,
			EntityID:  cp.ID,
			Message:   comments,
		}, cp.AssignedAgent)
		return cp, nil
	}

	if finished {
		e.announceCompleted(cp)
		e.Advance()
	}
	return cp, nil
}

// Advance auto-starts every pending step whose dependencies are now all
// completed. The scan is idempotent: re-running with nothing newly
// unblocked is a no-op. Returns the number of steps started.
func (e *Engine) Advance() int {
	e.mu.Lock()
	var started []*models.WorkflowStep
	for _, id := range e.sortedStepIDsLocked() {
		step := e.steps[id]
		if step.Status != models.StepPending || !e.depsCompletedLocked(step) {
			continue
		}
		e.startLocked(step)
		started = append(started, step.Clone())
	}
	e.mu.Unlock()

	for _, step := range started {
		e.announceStarted(step)
	}
	return len(started)
}

// sortedStepIDsLocked returns step ids in a stable order for the scan.
func (e *Engine) sortedStepIDsLocked() []string {
	ids := make([]string, 0, len(e.steps))
	for id := range e.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a copy of the step.
func (e *Engine) Get(stepID string) (*models.WorkflowStep, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	step, ok := e.steps[stepID]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", stepID, models.ErrNotFound)
	}
	return step.Clone(), nil
}

// Steps returns copies of the workflow's steps in creation order.
func (e *Engine) Steps(workflowID string) ([]*models.WorkflowStep, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, ok := e.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, models.ErrNotFound)
	}
	out := make([]*models.WorkflowStep, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.steps[id].Clone())
	}
	return out, nil
}

// Summary describes workflow progress as "<completed>/<total> steps".
func (e *Engine) Summary(workflowID string) (string, error) {
	steps, err := e.Steps(workflowID)
	if err != nil {
		return "", err
	}
	completed := 0
	var blocked []string
	for _, step := range steps {
		switch step.Status {
		case models.StepCompleted:
			completed++
		case models.StepBlocked:
			blocked = append(blocked, step.Name)
		}
	}
	summary := fmt.Sprintf("%d/%d steps completed", completed, len(steps))
	if len(blocked) > 0 {
		summary += ", blocked: " + strings.Join(blocked, ", ")
	}
	return summary, nil
}
