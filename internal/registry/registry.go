// Package registry tracks the agent pool: per-role capacity, live
// availability, specialization tags, and workload counters. It is rebuilt
// from configuration at process start and never persisted.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// Registry provides thread-safe storage and retrieval of agent profiles.
// All accessors hand out clones; callers never see shared mutable state.
type Registry struct {
	// agents maps role to profile.
	agents map[string]*models.AgentProfile
	// clock stamps LastActivity on every workload mutation.
	clock sched.Clock
	// mu protects all fields.
	mu sync.RWMutex
}

// New creates an empty Registry.
func New(clock sched.Clock) *Registry {
	return &Registry{
		agents: make(map[string]*models.AgentProfile),
		clock:  clock,
	}
}

// Register adds an agent role to the pool. Registering an existing role
// updates its capacity and specializations while preserving the current
// workload, which is what the config hot-reload relies on.
func (r *Registry) Register(role string, capacity int, specializations []string) error {
	if role == "" {
		return fmt.Errorf("register agent: empty role: %w", models.ErrValidation)
	}
	if capacity < 0 {
		return fmt.Errorf("register agent %s: negative capacity: %w", role, models.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[role]; ok {
		existing.MaxCapacity = capacity
		existing.Specializations = append([]string(nil), specializations...)
		r.recomputeLocked(existing)
		return nil
	}

	p := &models.AgentProfile{
		Role:            role,
		MaxCapacity:     capacity,
		Specializations: append([]string(nil), specializations...),
		Availability:    models.AgentAvailable,
		LastActivity:    r.clock.Now(),
	}
	r.recomputeLocked(p)
	r.agents[role] = p
	return nil
}

// Get returns a copy of the profile for the given role.
func (r *Registry) Get(role string) (*models.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.agents[role]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", role, models.ErrNotFound)
	}
	return p.Clone(), nil
}

// All returns copies of every registered profile, sorted by role.
func (r *Registry) All() []*models.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*models.AgentProfile, 0, len(r.agents))
	for _, p := range r.agents {
		agents = append(agents, p.Clone())
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Role < agents[j].Role })
	return agents
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// IncrementLoad adds one task to the role's workload and recomputes
// availability. Capacity is advisory: exceeding it flips the agent to busy
// but never fails.
func (r *Registry) IncrementLoad(role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.agents[role]
	if !ok {
		return fmt.Errorf("agent %s: %w", role, models.ErrNotFound)
	}
	p.CurrentTasks++
	p.LastActivity = r.clock.Now()
	r.recomputeLocked(p)
	return nil
}

// DecrementLoad removes one task from the role's workload, clamping at
// zero, and recomputes availability.
func (r *Registry) DecrementLoad(role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.agents[role]
	if !ok {
		return fmt.Errorf("agent %s: %w", role, models.ErrNotFound)
	}
	if p.CurrentTasks > 0 {
		p.CurrentTasks--
	}
	p.LastActivity = r.clock.Now()
	r.recomputeLocked(p)
	return nil
}

// Transfer moves one task's worth of load from one role to the other under
// a single lock, so observers see both counter updates or neither. The
// source decrement clamps at zero.
func (r *Registry) Transfer(fromRole, toRole string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, ok := r.agents[fromRole]
	if !ok {
		return fmt.Errorf("agent %s: %w", fromRole, models.ErrNotFound)
	}
	to, ok := r.agents[toRole]
	if !ok {
		return fmt.Errorf("agent %s: %w", toRole, models.ErrNotFound)
	}

	now := r.clock.Now()
	to.CurrentTasks++
	to.LastActivity = now
	r.recomputeLocked(to)
	if from.CurrentTasks > 0 {
		from.CurrentTasks--
	}
	from.LastActivity = now
	r.recomputeLocked(from)
	return nil
}

// SetOffline marks the role offline (true) or recomputes its availability
// from workload (false).
func (r *Registry) SetOffline(role string, offline bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.agents[role]
	if !ok {
		return fmt.Errorf("agent %s: %w", role, models.ErrNotFound)
	}
	if offline {
		p.Availability = models.AgentOffline
	} else {
		p.Availability = models.AgentAvailable
		r.recomputeLocked(p)
	}
	return nil
}

// recomputeLocked derives availability from the workload counters.
// Offline agents keep their state until SetOffline brings them back.
func (r *Registry) recomputeLocked(p *models.AgentProfile) {
	if p.Availability == models.AgentOffline {
		return
	}
	if p.AtCapacity() {
		p.Availability = models.AgentBusy
	} else {
		p.Availability = models.AgentAvailable
	}
}

// FindAlternative returns the available agent with the highest
// specialization overlap ratio against the required tags, excluding the
// given role. Ties break by lowest current load, then lexical role order.
// Returns false if no available agent shares any required tag.
func (r *Registry) FindAlternative(excludeRole string, required []string) (*models.AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.AgentProfile
	var bestRatio float64

	for _, role := range r.sortedRolesLocked() {
		p := r.agents[role]
		if p.Role == excludeRole || p.Availability != models.AgentAvailable {
			continue
		}
		overlap := p.SpecializationOverlap(required)
		if overlap == 0 {
			continue
		}
		ratio := float64(overlap) / float64(len(required))
		switch {
		case best == nil || ratio > bestRatio:
			best, bestRatio = p, ratio
		case ratio == bestRatio && p.CurrentTasks < best.CurrentTasks:
			best = p
			// Equal ratio and load falls through: sortedRolesLocked
			// already visits roles lexically, so the first seen wins.
		}
	}

	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

// sortedRolesLocked returns the registered roles in lexical order.
func (r *Registry) sortedRolesLocked() []string {
	roles := make([]string, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
