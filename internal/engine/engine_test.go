package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/exec"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/internal/state"
	"github.com/taskweave/taskweave/pkg/models"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Agents = []config.AgentConfig{
		{Role: "pm", Capacity: 2, Specializations: []string{"planning"}},
		{Role: "dev", Capacity: 2, Specializations: []string{"backend"}},
		{Role: "coordinator", Capacity: 1, Specializations: []string{"mediation"}},
	}
	return cfg
}

func newTestEngine(t *testing.T, store *state.DB) (*Engine, *exec.Stub) {
	t.Helper()
	executor := &exec.Stub{ResultText: "done"}
	e := New(Options{
		Config:   testConfig(),
		Executor: executor,
		Clock:    sched.NewManualClock(time.Unix(1000, 0)),
		Store:    store,
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, executor
}

func openTestStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEngine_StartSeedsRoster(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if got := e.Registry().Count(); got != 3 {
		t.Errorf("agents = %d, want 3", got)
	}
	agent, err := e.Registry().Get("dev")
	if err != nil {
		t.Fatalf("Get(dev) failed: %v", err)
	}
	if agent.MaxCapacity != 2 || len(agent.Specializations) != 1 {
		t.Errorf("dev = %+v", agent)
	}
}

func TestEngine_SubscribeRequiresKnownRole(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	conn, err := e.Subscribe("dev", "sess-1", "proj-1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if conn.AgentRole != "dev" {
		t.Errorf("conn = %+v", conn)
	}

	if _, err := e.Subscribe("ghost", "sess-2", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Subscribe(ghost) error = %v, want ErrNotFound", err)
	}

	if err := e.Heartbeat(conn.ID); err != nil {
		t.Errorf("Heartbeat failed: %v", err)
	}
	if err := e.Disconnect(conn.ID); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
}

func TestEngine_HandoffLifecycleArchives(t *testing.T) {
	store := openTestStore(t)
	e, _ := newTestEngine(t, store)

	req, err := e.RequestHandoff("pm", "dev", "overloaded", "ctx", "implement login", "proj-1")
	if err != nil {
		t.Fatalf("RequestHandoff failed: %v", err)
	}

	done, err := e.AcceptHandoff(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("AcceptHandoff failed: %v", err)
	}
	if done.Status != models.HandoffCompleted || done.Result != "done" {
		t.Errorf("handoff = %+v", done)
	}

	archived, err := store.GetHandoff(req.ID)
	if err != nil {
		t.Fatalf("GetHandoff failed: %v", err)
	}
	if archived == nil || archived.Status != models.HandoffCompleted {
		t.Errorf("archived = %+v, want completed snapshot", archived)
	}
}

func TestEngine_RejectedHandoffArchived(t *testing.T) {
	store := openTestStore(t)
	e, _ := newTestEngine(t, store)

	req, err := e.RequestHandoff("pm", "dev", "overloaded", "", "fix bug", "")
	if err != nil {
		t.Fatalf("RequestHandoff failed: %v", err)
	}

	rejected, err := e.RejectHandoff(req.ID, "busy elsewhere")
	if err != nil {
		t.Fatalf("RejectHandoff failed: %v", err)
	}
	if rejected.Status != models.HandoffRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}

	archived, err := store.GetHandoff(req.ID)
	if err != nil {
		t.Fatalf("GetHandoff failed: %v", err)
	}
	if archived == nil || archived.Status != models.HandoffRejected {
		t.Errorf("archived = %+v, want rejected snapshot", archived)
	}
}

func TestEngine_ResolveConflictArchives(t *testing.T) {
	store := openTestStore(t)
	e, _ := newTestEngine(t, store)

	c, err := e.CreateConflict("merge", models.SeverityHigh, "conflicting edits", []string{"pm", "dev"}, "")
	if err != nil {
		t.Fatalf("CreateConflict failed: %v", err)
	}
	if c.Mediator != "coordinator" {
		t.Errorf("mediator = %q, want coordinator from config", c.Mediator)
	}

	if _, err := e.ResolveConflict(c.ID, "dev wins", "coordinator"); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	archived, err := store.GetConflict(c.ID)
	if err != nil {
		t.Fatalf("GetConflict failed: %v", err)
	}
	if archived == nil || archived.Status != models.ConflictResolved {
		t.Errorf("archived = %+v, want resolved snapshot", archived)
	}
}

func TestEngine_PersistentNotificationArchived(t *testing.T) {
	store := openTestStore(t)
	e, _ := newTestEngine(t, store)

	// The handoff request notification is persistent, so it is snapshotted
	// to the audit store on send.
	if _, err := e.RequestHandoff("pm", "dev", "overloaded", "ctx", "implement login", "proj-1"); err != nil {
		t.Fatalf("RequestHandoff failed: %v", err)
	}

	archived, err := store.ListArchivedNotifications("dev")
	if err != nil {
		t.Fatalf("ListArchivedNotifications failed: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("archived = %d notifications, want 1", len(archived))
	}
	if archived[0].Read {
		t.Errorf("archived Read = true, want false on send")
	}

	if err := e.Notifications().MarkRead(archived[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	archived, err = store.ListArchivedNotifications("dev")
	if err != nil {
		t.Fatalf("ListArchivedNotifications failed: %v", err)
	}
	if len(archived) != 1 || !archived[0].Read {
		t.Errorf("archived = %+v, want the same row with Read = true", archived)
	}
}

func TestEngine_ApplyRosterPreservesLoad(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Registry().IncrementLoad("dev")

	err := e.ApplyRoster([]config.AgentConfig{
		{Role: "dev", Capacity: 4, Specializations: []string{"backend", "api"}},
		{Role: "qa", Capacity: 1, Specializations: []string{"testing"}},
	})
	if err != nil {
		t.Fatalf("ApplyRoster failed: %v", err)
	}

	dev, err := e.Registry().Get("dev")
	if err != nil {
		t.Fatalf("Get(dev) failed: %v", err)
	}
	if dev.CurrentTasks != 1 {
		t.Errorf("CurrentTasks = %d, want load preserved across reload", dev.CurrentTasks)
	}
	if dev.MaxCapacity != 4 {
		t.Errorf("MaxCapacity = %d, want 4 from new roster", dev.MaxCapacity)
	}
	if e.Registry().Count() != 4 {
		t.Errorf("agents = %d, want 4", e.Registry().Count())
	}
}

func TestEngine_Status(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if _, err := e.Subscribe("pm", "sess-1", ""); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := e.RequestHandoff("pm", "dev", "overloaded", "", "task", ""); err != nil {
		t.Fatalf("RequestHandoff failed: %v", err)
	}
	if _, err := e.CreateConflict("merge", models.SeverityLow, "d", []string{"pm"}, ""); err != nil {
		t.Fatalf("CreateConflict failed: %v", err)
	}

	st := e.Status()
	if st.Agents != 3 {
		t.Errorf("Agents = %d, want 3", st.Agents)
	}
	if st.Connections != 1 {
		t.Errorf("Connections = %d, want 1", st.Connections)
	}
	if st.PendingHandoffs != 1 {
		t.Errorf("PendingHandoffs = %d, want 1", st.PendingHandoffs)
	}
	if st.OpenConflicts != 1 {
		t.Errorf("OpenConflicts = %d, want 1", st.OpenConflicts)
	}
	if len(st.Workloads) != 3 {
		t.Errorf("Workloads = %d, want 3", len(st.Workloads))
	}
}

func TestEngine_HistoryReplay(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if _, err := e.RequestHandoff("pm", "dev", "overloaded", "", "task", ""); err != nil {
		t.Fatalf("RequestHandoff failed: %v", err)
	}
	e.Bus().Flush()

	events := e.GetHistory(0)
	found := false
	for _, ev := range events {
		if ev.Type == bus.EventHandoffRequested {
			found = true
		}
	}
	if !found {
		t.Errorf("history missing handoff_requested event: %+v", events)
	}
}
