package registry

import (
	"fmt"
	"sort"

	"github.com/taskweave/taskweave/pkg/models"
)

// Workload is a read-only snapshot of one agent's load.
type Workload struct {
	// Role is the agent role.
	Role string `json:"role"`
	// CurrentTasks is the number of tasks the agent holds.
	CurrentTasks int `json:"current_tasks"`
	// MaxCapacity is the agent's advisory capacity.
	MaxCapacity int `json:"max_capacity"`
	// Availability is the agent's availability at snapshot time.
	Availability models.Availability `json:"availability"`
}

// WorkloadReport returns per-role load snapshots, sorted by role.
func (r *Registry) WorkloadReport() []Workload {
	agents := r.All()
	report := make([]Workload, 0, len(agents))
	for _, p := range agents {
		report = append(report, Workload{
			Role:         p.Role,
			CurrentTasks: p.CurrentTasks,
			MaxCapacity:  p.MaxCapacity,
			Availability: p.Availability,
		})
	}
	return report
}

// RebalanceSuggestion recommends moving one task between two agents that
// share a specialization. Suggestions are advisory text only; the registry
// never moves work itself.
type RebalanceSuggestion struct {
	// FromRole is the overloaded agent.
	FromRole string `json:"from_role"`
	// ToRole is the agent with spare capacity.
	ToRole string `json:"to_role"`
	// SharedSpecialization is the tag both agents carry.
	SharedSpecialization string `json:"shared_specialization"`
	// Reason is the human-readable recommendation.
	Reason string `json:"reason"`
}

// RebalanceSuggestions returns advisory moves from busy agents to available
// agents sharing at least one specialization. Results are ordered by the
// overloaded role, then the receiving role.
func (r *Registry) RebalanceSuggestions() []RebalanceSuggestion {
	agents := r.All()

	var suggestions []RebalanceSuggestion
	for _, from := range agents {
		if from.Availability != models.AgentBusy {
			continue
		}
		for _, to := range agents {
			if to.Role == from.Role || to.Availability != models.AgentAvailable {
				continue
			}
			shared := sharedTag(from.Specializations, to.Specializations)
			if shared == "" {
				continue
			}
			suggestions = append(suggestions, RebalanceSuggestion{
				FromRole:             from.Role,
				ToRole:               to.Role,
				SharedSpecialization: shared,
				Reason: fmt.Sprintf("%s holds %d/%d tasks; %s shares %q and has capacity (%d/%d)",
					from.Role, from.CurrentTasks, from.MaxCapacity,
					to.Role, shared, to.CurrentTasks, to.MaxCapacity),
			})
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].FromRole != suggestions[j].FromRole {
			return suggestions[i].FromRole < suggestions[j].FromRole
		}
		return suggestions[i].ToRole < suggestions[j].ToRole
	})
	return suggestions
}

// sharedTag returns the lexically first tag present in both sets, or "".
func sharedTag(a, b []string) string {
	set := make(map[string]bool, len(b))
	for _, tag := range b {
		set[tag] = true
	}
	shared := ""
	for _, tag := range a {
		if set[tag] && (shared == "" || tag < shared) {
			shared = tag
		}
	}
	return shared
}
