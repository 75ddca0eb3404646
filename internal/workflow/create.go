package workflow

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/models"
)

// CreateWorkflow registers a batch of steps as one workflow. Each step
// receives an id and a pending Approval per reviewer. Dependencies are
// resolved by name within the batch; unknown names, self-references, and
// cycles are validation errors.
func (e *Engine) CreateWorkflow(specs []StepSpec) (string, []*models.WorkflowStep, error) {
	if len(specs) == 0 {
		return "", nil, fmt.Errorf("create workflow: no steps: %w", models.ErrValidation)
	}

	byName := make(map[string]int, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return "", nil, fmt.Errorf("create workflow: step %d has no name: %w", i, models.ErrValidation)
		}
		if spec.AssignedAgent == "" {
			return "", nil, fmt.Errorf("create workflow: step %q has no assignee: %w", spec.Name, models.ErrValidation)
		}
		if _, dup := byName[spec.Name]; dup {
			return "", nil, fmt.Errorf("create workflow: duplicate step name %q: %w", spec.Name, models.ErrValidation)
		}
		byName[spec.Name] = i
	}

	edges := make([][]int, len(specs))
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			j, ok := byName[dep]
			if !ok {
				return "", nil, fmt.Errorf("create workflow: step %q depends on unknown step %q: %w", spec.Name, dep, models.ErrValidation)
			}
			if j == i {
				return "", nil, fmt.Errorf("create workflow: step %q depends on itself: %w", spec.Name, models.ErrValidation)
			}
			edges[i] = append(edges[i], j)
		}
	}

	if hasCycle(edges) {
		return "", nil, fmt.Errorf("create workflow: %w: %w", ErrCycleDetected, models.ErrValidation)
	}

	workflowID := uuid.New().String()
	ids := make([]string, len(specs))
	for i := range specs {
		ids[i] = uuid.New().String()
	}

	steps := make([]*models.WorkflowStep, len(specs))
	for i, spec := range specs {
		deps := make([]string, 0, len(edges[i]))
		for _, j := range edges[i] {
			deps = append(deps, ids[j])
		}
		approvals := make([]models.Approval, 0, len(spec.Reviewers))
		for _, reviewer := range spec.Reviewers {
			approvals = append(approvals, models.Approval{
				ReviewerID: reviewer,
				Status:     models.ApprovalPending,
			})
		}
		steps[i] = &models.WorkflowStep{
			ID:                ids[i],
			Name:              spec.Name,
			AssignedAgent:     spec.AssignedAgent,
			DependsOn:         deps,
			Status:            models.StepPending,
			Reviewers:         append([]string(nil), spec.Reviewers...),
			Approvals:         approvals,
			EstimatedDuration: spec.EstimatedDuration,
		}
	}

	e.mu.Lock()
	for _, step := range steps {
		e.steps[step.ID] = step
	}
	e.workflows[workflowID] = ids
	e.mu.Unlock()

	out := make([]*models.WorkflowStep, len(steps))
	for i, step := range steps {
		out[i] = step.Clone()
	}
	return workflowID, out, nil
}

// hasCycle runs depth-first search with coloring to detect back edges.
func hasCycle(edges [][]int) bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make([]int, len(edges))

	var visit func(i int) bool
	visit = func(i int) bool {
		colors[i] = 1
		for _, j := range edges[i] {
			switch colors[j] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(j) {
					return true
				}
			}
		}
		colors[i] = 2
		return false
	}

	for i := range edges {
		if colors[i] == 0 && visit(i) {
			return true
		}
	}
	return false
}
