// Package workflow manages directed dependency graphs of steps with
// optional reviewer approvals. Steps auto-start once every dependency
// completes; the advance scan is idempotent and safe to re-run.
package workflow

import (
	"errors"
	"sync"
	"time"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in a workflow.
var ErrCycleDetected = errors.New("circular dependency detected")

// StepSpec describes one step of a workflow being created. Dependencies
// reference other steps in the same batch by name; the engine assigns ids.
type StepSpec struct {
	// Name is the unique (within the workflow) step name.
	Name string
	// AssignedAgent is the role responsible for the step.
	AssignedAgent string
	// DependsOn lists names of steps that must complete first.
	DependsOn []string
	// Reviewers lists roles whose approval the step requires.
	Reviewers []string
	// EstimatedDuration is the planned duration.
	EstimatedDuration time.Duration
}

// Engine owns the step registry and the dependency/approval state machine.
type Engine struct {
	router *notify.Router
	bus    *bus.Bus
	clock  sched.Clock

	// mu protects steps and workflows. Never held across notify/bus calls.
	mu    sync.Mutex
	steps map[string]*models.WorkflowStep
	// workflows maps workflow id to its step ids in creation order.
	workflows map[string][]string
}

// NewEngine creates an Engine.
func NewEngine(router *notify.Router, b *bus.Bus, clock sched.Clock) *Engine {
	return &Engine{
		router:    router,
		bus:       b,
		clock:     clock,
		steps:     make(map[string]*models.WorkflowStep),
		workflows: make(map[string][]string),
	}
}
