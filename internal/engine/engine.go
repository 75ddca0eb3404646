// Package engine wires the coordination components together behind a
// single façade: agent registry, handoff coordinator, workflow engine,
// shared workspace, notification router, conflict mediator, and the
// event bus.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/conflict"
	"github.com/taskweave/taskweave/internal/exec"
	"github.com/taskweave/taskweave/internal/handoff"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/registry"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/internal/state"
	"github.com/taskweave/taskweave/internal/workflow"
	"github.com/taskweave/taskweave/internal/workspace"
	"github.com/taskweave/taskweave/pkg/models"
)

// Options configures a new Engine. Config and Executor are required;
// everything else has a sensible default.
type Options struct {
	Config   *config.Config
	Executor exec.Executor
	// Deliverer ships bus events to connected subscribers. Defaults to a
	// discard deliverer, which still keeps history and counters working.
	Deliverer bus.Deliverer
	// Clock defaults to the wall clock.
	Clock sched.Clock
	// Store optionally archives terminal handoffs, resolved conflicts,
	// and persistent notifications. May be nil.
	Store *state.DB
	// Logger defaults to a no-op logger.
	Logger *DebugLogger
}

// Engine composes the coordination components and owns their lifecycle.
type Engine struct {
	cfg   *config.Config
	log   *DebugLogger
	clock sched.Clock
	store *state.DB

	scheduler *sched.Scheduler
	bus       *bus.Bus
	registry  *registry.Registry
	router    *notify.Router
	handoffs  *handoff.Coordinator
	workflows *workflow.Engine
	workspace *workspace.Workspace
	conflicts *conflict.Mediator
}

// New builds an Engine from the given options. Call Start to seed the
// roster and begin background sweeps.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = sched.RealClock()
	}
	deliverer := opts.Deliverer
	if deliverer == nil {
		deliverer = bus.DelivererFunc(func(string, bus.Event) error { return nil })
	}
	log := opts.Logger
	if log == nil {
		log = NopLogger()
	}

	scheduler := sched.New(clock, time.Second)
	b := bus.New(deliverer, clock, cfg.Engine.HistorySize)
	router := notify.NewRouter(b, scheduler, clock)
	router.SetDefaultTTL(cfg.Engine.NotificationTTL)
	if store := opts.Store; store != nil {
		router.SetArchiveHook(func(n *models.Notification) {
			if err := store.ArchiveNotification(n); err != nil {
				log.Log("archive notification %s: %v", n.ID, err)
			}
		})
	}
	reg := registry.New(clock)

	return &Engine{
		cfg:       cfg,
		log:       log,
		clock:     clock,
		store:     opts.Store,
		scheduler: scheduler,
		bus:       b,
		registry:  reg,
		router:    router,
		handoffs:  handoff.NewCoordinator(reg, router, b, opts.Executor, clock),
		workflows: workflow.NewEngine(router, b, clock),
		workspace: workspace.New(b, clock),
		conflicts: conflict.NewMediator(router, b, clock, cfg.Engine.CoordinatorRole, cfg.Engine.EscalationCeiling),
	}
}

// Start seeds the roster from the config and begins the background
// sweeps for idle connections and stale file locks.
func (e *Engine) Start() error {
	if err := e.ApplyRoster(e.cfg.Agents); err != nil {
		return fmt.Errorf("seed roster: %w", err)
	}

	e.scheduler.Every("sweep:connections", e.cfg.Sweeps.Interval, func() {
		if n := e.bus.SweepIdle(e.cfg.Sweeps.ConnectionIdle); n > 0 {
			e.log.Log("swept %d idle connections", n)
		}
	})
	e.scheduler.Every("sweep:locks", e.cfg.Sweeps.Interval, func() {
		if n := e.workspace.SweepStaleLocks(e.cfg.Sweeps.LockIdle); n > 0 {
			e.log.Log("released %d stale file locks", n)
		}
	})
	e.scheduler.Start()

	e.log.Log("engine started with %d agents", e.registry.Count())
	return nil
}

// Stop halts the background sweeps and waits for in-flight event
// deliveries to drain. The audit store, if any, is left open for the
// caller to close.
func (e *Engine) Stop() {
	e.scheduler.Stop()
	e.bus.Flush()
	e.log.Log("engine stopped")
}

// ApplyRoster registers every agent in the roster. Existing agents keep
// their current load. Used at startup and on config hot reload.
func (e *Engine) ApplyRoster(agents []config.AgentConfig) error {
	for _, a := range agents {
		if err := e.registry.Register(a.Role, a.Capacity, a.Specializations); err != nil {
			return fmt.Errorf("register %s: %w", a.Role, err)
		}
	}
	if len(agents) > 0 {
		e.log.Log("roster applied: %d agents", len(agents))
	}
	return nil
}

// Subscribe attaches an agent to the event bus and replays recent
// history to the new connection.
func (e *Engine) Subscribe(agentRole, sessionID, projectID string) (*models.Connection, error) {
	if _, err := e.registry.Get(agentRole); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", agentRole, err)
	}
	return e.bus.Register(agentRole, sessionID, projectID)
}

// Disconnect detaches a connection from the event bus.
func (e *Engine) Disconnect(connectionID string) error {
	return e.bus.Disconnect(connectionID)
}

// Heartbeat refreshes a connection's activity timestamp.
func (e *Engine) Heartbeat(connectionID string) error {
	return e.bus.Touch(connectionID)
}

// GetHistory returns the most recent events, newest last. A limit of 0
// returns the whole buffer.
func (e *Engine) GetHistory(limit int) []bus.Event {
	return e.bus.History(limit)
}

// Handoff operations. The engine wraps the coordinator so terminal
// requests are archived to the audit store.

// RequestHandoff initiates a work transfer between two agents.
func (e *Engine) RequestHandoff(from, to, reason, taskContext, taskDescription, projectID string) (*models.HandoffRequest, error) {
	req, err := e.handoffs.Create(from, to, reason, taskContext, taskDescription, projectID)
	if err != nil {
		return nil, err
	}
	e.log.Log("handoff %s requested: %s -> %s", req.ID, req.FromAgent, req.ToAgent)
	return req, nil
}

// AcceptHandoff accepts and executes a pending handoff.
func (e *Engine) AcceptHandoff(ctx context.Context, id string) (*models.HandoffRequest, error) {
	req, err := e.handoffs.Accept(ctx, id)
	if err != nil {
		return nil, err
	}
	e.archiveHandoff(req)
	return req, nil
}

// RejectHandoff declines a pending handoff, possibly redirecting it.
func (e *Engine) RejectHandoff(id, reason string) (*models.HandoffRequest, error) {
	req, err := e.handoffs.Reject(id, reason)
	if err != nil {
		return nil, err
	}
	e.archiveHandoff(req)
	return req, nil
}

// archiveHandoff persists terminal handoffs. Best effort: archive
// failures are logged, never surfaced.
func (e *Engine) archiveHandoff(req *models.HandoffRequest) {
	if e.store == nil || !req.Status.Terminal() {
		return
	}
	if err := e.store.RecordHandoff(req); err != nil {
		e.log.Log("archive handoff %s: %v", req.ID, err)
	}
}

// Conflict operations, wrapped for audit archiving.

// CreateConflict opens a dispute among agents.
func (e *Engine) CreateConflict(conflictType string, severity models.ConflictSeverity, description string, involved []string, projectID string) (*models.Conflict, error) {
	return e.conflicts.Create(conflictType, severity, description, involved, projectID)
}

// ResolveConflict settles a dispute and archives the outcome.
func (e *Engine) ResolveConflict(id, resolution, resolvedBy string) (*models.Conflict, error) {
	c, err := e.conflicts.Resolve(id, resolution, resolvedBy)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.RecordConflict(c); err != nil {
			e.log.Log("archive conflict %s: %v", c.ID, err)
		}
	}
	return c, nil
}

// EscalateConflict raises a dispute one level.
func (e *Engine) EscalateConflict(id string) (*models.Conflict, error) {
	return e.conflicts.Escalate(id)
}

// Component accessors for operations the façade does not wrap.

// Registry returns the agent registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Handoffs returns the handoff coordinator.
func (e *Engine) Handoffs() *handoff.Coordinator { return e.handoffs }

// Workflows returns the workflow step engine.
func (e *Engine) Workflows() *workflow.Engine { return e.workflows }

// Workspace returns the shared workspace.
func (e *Engine) Workspace() *workspace.Workspace { return e.workspace }

// Notifications returns the notification router.
func (e *Engine) Notifications() *notify.Router { return e.router }

// Conflicts returns the conflict mediator.
func (e *Engine) Conflicts() *conflict.Mediator { return e.conflicts }

// Bus returns the event bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Agents          int                 `json:"agents"`
	Connections     int                 `json:"connections"`
	PendingHandoffs int                 `json:"pending_handoffs"`
	OpenConflicts   int                 `json:"open_conflicts"`
	DroppedEvents   uint64              `json:"dropped_events"`
	Workloads       []registry.Workload `json:"workloads"`
}

// Status reports the current state of the engine.
func (e *Engine) Status() Status {
	return Status{
		Agents:          e.registry.Count(),
		Connections:     len(e.bus.Connections()),
		PendingHandoffs: len(e.handoffs.List(models.HandoffPending)),
		OpenConflicts:   len(e.conflicts.Open()),
		DroppedEvents:   e.bus.Dropped(),
		Workloads:       e.registry.WorkloadReport(),
	}
}
