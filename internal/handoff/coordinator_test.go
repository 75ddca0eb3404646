package handoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/exec"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/registry"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

type fixture struct {
	coord    *Coordinator
	registry *registry.Registry
	router   *notify.Router
	bus      *bus.Bus
	executor *exec.Stub
	clock    *sched.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := sched.NewManualClock(time.Unix(1000, 0))
	b := bus.New(bus.DelivererFunc(func(string, bus.Event) error { return nil }), clock, 50)
	scheduler := sched.New(clock, time.Second)
	router := notify.NewRouter(b, scheduler, clock)
	reg := registry.New(clock)
	executor := &exec.Stub{ResultText: "done"}
	return &fixture{
		coord:    NewCoordinator(reg, router, b, executor, clock),
		registry: reg,
		router:   router,
		bus:      b,
		executor: executor,
		clock:    clock,
	}
}

func (f *fixture) busEvents(t *testing.T, typ bus.EventType) []bus.Event {
	t.Helper()
	f.bus.Flush()
	var out []bus.Event
	for _, ev := range f.bus.History(0) {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestCoordinator_CreateNotifiesTarget(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 2, []string{"backend"})

	req, err := f.coord.Create("pm", "dev", "overloaded", "ctx", "implement login", "proj-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if req.Status != models.HandoffPending || req.ToAgent != "dev" {
		t.Errorf("request = %+v", req)
	}

	notifs := f.router.List("dev", false)
	if len(notifs) != 1 {
		t.Fatalf("dev notifications = %d, want 1", len(notifs))
	}
	if notifs[0].Category != models.CategoryHandoff || len(notifs[0].Actions) != 2 {
		t.Errorf("notification = %+v, want handoff category with accept/reject", notifs[0])
	}
}

func TestCoordinator_CreateRedirectsFromBusyTarget(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 1, []string{"backend", "api"})
	f.registry.Register("senior-dev", 2, []string{"backend", "api"})
	f.registry.IncrementLoad("dev") // dev is now busy

	req, err := f.coord.Create("pm", "dev", "overloaded", "", "fix the bug", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if req.ToAgent != "senior-dev" {
		t.Errorf("ToAgent = %s, want redirect to senior-dev", req.ToAgent)
	}
}

func TestCoordinator_CreateKeepsBusyTargetWithoutAlternative(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 1, []string{"backend"})
	f.registry.IncrementLoad("dev")

	// Capacity is advisory: no alternative shares dev's specializations,
	// so the handoff still lands on dev.
	req, err := f.coord.Create("pm", "dev", "overloaded", "", "fix the bug", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if req.ToAgent != "dev" {
		t.Errorf("ToAgent = %s, want dev unchanged", req.ToAgent)
	}
}

func TestCoordinator_CreateValidation(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, nil)

	if _, err := f.coord.Create("", "pm", "r", "", "task", ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Create(empty from) error = %v, want ErrValidation", err)
	}
	if _, err := f.coord.Create("pm", "ghost", "r", "", "task", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Create(unknown to) error = %v, want ErrNotFound", err)
	}
	// An unregistered initiator would strand Accept inside the load
	// transfer, so it is rejected up front.
	if _, err := f.coord.Create("ghost", "pm", "r", "", "task", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Create(unknown from) error = %v, want ErrNotFound", err)
	}
}

func TestCoordinator_AcceptRunsExecutorAndCompletes(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 2, []string{"backend"})
	f.registry.IncrementLoad("pm") // pm holds the task being handed off

	req, _ := f.coord.Create("pm", "dev", "overloaded", "login context", "implement login", "")

	got, err := f.coord.Accept(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if got.Status != models.HandoffCompleted || got.Result != "done" {
		t.Errorf("request = status %s result %q, want completed/done", got.Status, got.Result)
	}

	calls := f.executor.Calls()
	if len(calls) != 1 || calls[0].Role != "dev" || calls[0].SystemContext != "login context" {
		t.Errorf("executor calls = %+v", calls)
	}

	pm, _ := f.registry.Get("pm")
	dev, _ := f.registry.Get("dev")
	if pm.CurrentTasks != 0 || dev.CurrentTasks != 1 {
		t.Errorf("workloads pm=%d dev=%d, want 0/1", pm.CurrentTasks, dev.CurrentTasks)
	}
}

func TestCoordinator_AcceptNonPending(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, nil)
	f.registry.Register("dev", 2, nil)

	req, _ := f.coord.Create("pm", "dev", "r", "", "task", "")
	f.coord.Reject(req.ID, "busy elsewhere")

	if _, err := f.coord.Accept(context.Background(), req.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("Accept(rejected) error = %v, want ErrInvalidState", err)
	}

	// Terminal states never transition out.
	got, _ := f.coord.Get(req.ID)
	if got.Status != models.HandoffRejected {
		t.Errorf("status = %s, want rejected unchanged", got.Status)
	}
}

func TestCoordinator_ExecutorFailureLeavesAccepted(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, nil)
	f.registry.Register("dev", 2, nil)
	f.executor.Fail = true
	f.executor.Err = errors.New("model unavailable")

	req, _ := f.coord.Create("pm", "dev", "r", "", "task", "")
	got, err := f.coord.Accept(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v (execution failures are reported, not returned)", err)
	}
	if got.Status != models.HandoffAccepted {
		t.Errorf("status = %s, want accepted (no auto-retry)", got.Status)
	}

	if events := f.busEvents(t, bus.EventDeliveryFailure); len(events) != 1 {
		t.Errorf("delivery failure events = %d, want 1", len(events))
	}
}

func TestCoordinator_RejectRedirectsOnce(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 2, []string{"backend"})
	f.registry.Register("senior-dev", 2, []string{"backend"})

	req, _ := f.coord.Create("pm", "dev", "overloaded", "", "fix it", "")
	if _, err := f.coord.Reject(req.ID, "not my area"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	pending := f.coord.List(models.HandoffPending)
	if len(pending) != 1 {
		t.Fatalf("pending after reject = %d, want 1 redirect", len(pending))
	}
	redirect := pending[0]
	if redirect.ToAgent != "senior-dev" || redirect.RedirectedFrom != req.ID {
		t.Errorf("redirect = %+v", redirect)
	}

	// Rejecting the redirect must not spawn a third request.
	f.coord.Reject(redirect.ID, "also not mine")
	if pending := f.coord.List(models.HandoffPending); len(pending) != 0 {
		t.Errorf("pending after second reject = %d, want 0 (redirect bounded at 1)", len(pending))
	}
	if events := f.busEvents(t, bus.EventDeliveryFailure); len(events) != 1 {
		t.Errorf("delivery failure events = %d, want 1 after exhaustion", len(events))
	}
}

func TestCoordinator_RejectWithoutAlternativeReportsExhaustion(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 2, []string{"backend"})

	req, _ := f.coord.Create("pm", "dev", "overloaded", "", "fix it", "")
	f.coord.Reject(req.ID, "no")

	if pending := f.coord.List(models.HandoffPending); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
	if events := f.busEvents(t, bus.EventDeliveryFailure); len(events) != 1 {
		t.Errorf("delivery failure events = %d, want 1", len(events))
	}

	// The initiator hears about the dead end.
	var exhausted bool
	for _, n := range f.router.List("pm", false) {
		if n.Priority == models.PriorityUrgent {
			exhausted = true
		}
	}
	if !exhausted {
		t.Error("initiator never received the exhaustion notification")
	}
}

// TestCoordinator_EndToEnd covers the scenario from the engine contract:
// pm (capacity 2) hands off to dev (capacity 1, busy); the request
// redirects to an agent sharing a specialization with dev, and accept
// moves the workload counters.
func TestCoordinator_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("pm", 2, []string{"planning"})
	f.registry.Register("dev", 1, []string{"backend"})
	f.registry.Register("contractor", 2, []string{"backend"})
	f.registry.IncrementLoad("pm")
	f.registry.IncrementLoad("dev") // busy

	req, err := f.coord.Create("pm", "dev", "at capacity", "ctx", "ship feature", "proj-9")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if req.ToAgent != "contractor" {
		t.Fatalf("ToAgent = %s, want contractor (shares backend with dev)", req.ToAgent)
	}

	before, _ := f.registry.Get("contractor")
	got, err := f.coord.Accept(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if got.Status != models.HandoffCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	after, _ := f.registry.Get("contractor")
	pm, _ := f.registry.Get("pm")
	if after.CurrentTasks != before.CurrentTasks+1 {
		t.Errorf("contractor tasks %d -> %d, want +1", before.CurrentTasks, after.CurrentTasks)
	}
	if pm.CurrentTasks != 0 {
		t.Errorf("pm tasks = %d, want 0 after transfer", pm.CurrentTasks)
	}
}
