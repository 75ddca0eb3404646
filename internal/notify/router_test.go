package notify

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

func newTestRouter(t *testing.T) (*Router, *bus.Bus, *sched.ManualClock, *sched.Scheduler) {
	t.Helper()
	clock := sched.NewManualClock(time.Unix(1000, 0))
	b := bus.New(bus.DelivererFunc(func(string, bus.Event) error { return nil }), clock, 10)
	scheduler := sched.New(clock, time.Second)
	return NewRouter(b, scheduler, clock), b, clock, scheduler
}

func TestRouter_BuildSubstitutesPlaceholders(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	n, err := r.Build(TemplateHandoffRequested, "dev", map[string]string{
		"from": "pm",
		"task": "ship the release",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if n.Title != "Handoff from pm" {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Body, "ship the release") {
		t.Errorf("Body = %q, want task substituted", n.Body)
	}
	// {reason} was not supplied: left verbatim, never an error.
	if !strings.Contains(n.Body, "{reason}") {
		t.Errorf("Body = %q, want unresolved placeholder kept verbatim", n.Body)
	}
	if len(n.Actions) != 2 {
		t.Errorf("Actions = %+v, want accept/reject defaults", n.Actions)
	}
}

func TestRouter_BuildUnknownTemplate(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	if _, err := r.Build("no_such_template", "dev", nil); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Build(unknown) error = %v, want ErrValidation", err)
	}
}

func TestRouter_SendRespectsPreferences(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	r.UpdatePreferences("dev", models.NotificationPreferences{
		DisabledCategories: []models.NotificationCategory{models.CategoryAgent},
		AcceptPersistent:   true,
	})

	dropped := &models.Notification{
		Category:  models.CategoryAgent,
		Priority:  models.PriorityNormal,
		Recipient: "dev",
		Title:     "muted",
	}
	if r.Send(dropped) {
		t.Error("Send() delivered a notification in a muted category")
	}
	if got := r.List("dev", false); len(got) != 0 {
		t.Errorf("List() = %d notifications, want 0 after silent drop", len(got))
	}

	// Broadcasts bypass preference filtering entirely.
	broadcast := &models.Notification{
		Category:  models.CategoryAgent,
		Priority:  models.PriorityNormal,
		Recipient: models.BroadcastRecipient,
		Title:     "for everyone",
	}
	if !r.Send(broadcast) {
		t.Error("Send() dropped a broadcast")
	}
	if got := r.List("dev", false); len(got) != 1 {
		t.Errorf("List() = %d notifications, want the broadcast", len(got))
	}
}

func TestRouter_SendDeliversToBus(t *testing.T) {
	r, b, _, _ := newTestRouter(t)

	r.Send(&models.Notification{
		Category:  models.CategoryHandoff,
		Priority:  models.PriorityNormal,
		Recipient: "dev",
		Title:     "hello",
	})
	b.Flush()

	history := b.History(0)
	if len(history) != 1 {
		t.Fatalf("bus history = %d events, want 1", len(history))
	}
	ev := history[0]
	if ev.Type != bus.EventNotification || ev.Notification == nil || ev.Notification.Title != "hello" {
		t.Errorf("bus event = %+v", ev)
	}
}

func TestRouter_ExpiryRemovesFromStore(t *testing.T) {
	r, _, clock, scheduler := newTestRouter(t)

	n := &models.Notification{
		Category:  models.CategoryHandoff,
		Priority:  models.PriorityNormal,
		Recipient: "dev",
		Title:     "ephemeral",
	}
	r.ExpireAfter(n, time.Minute)
	r.Send(n)

	if got := r.List("dev", false); len(got) != 1 {
		t.Fatalf("List() = %d, want 1 before expiry", len(got))
	}

	clock.Advance(2 * time.Minute)
	scheduler.RunDue()

	if got := r.List("dev", false); len(got) != 0 {
		t.Errorf("List() = %d, want 0 after expiry", len(got))
	}
}

func TestRouter_ExpiryAfterDeleteIsHarmless(t *testing.T) {
	r, _, clock, scheduler := newTestRouter(t)

	n := &models.Notification{
		Category:  models.CategoryHandoff,
		Priority:  models.PriorityNormal,
		Recipient: "dev",
		Title:     "short-lived",
		ExpiresAt: clock.Now().Add(time.Minute),
	}
	r.Send(n)
	r.Delete(n.ID)

	if scheduler.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 (expiry cancelled on delete)", scheduler.Pending())
	}

	// Firing anyway must not panic or error.
	clock.Advance(2 * time.Minute)
	scheduler.RunDue()
}

func TestRouter_DefaultTTLExpiresTransient(t *testing.T) {
	r, _, clock, scheduler := newTestRouter(t)
	r.SetDefaultTTL(time.Hour)

	// No explicit deadline: the default TTL applies.
	if ok, err := r.SendTemplate(TemplateHandoffAccepted, "dev", nil); err != nil || !ok {
		t.Fatalf("SendTemplate(accepted) = %v, %v", ok, err)
	}
	// Persistent notifications are retained until read, never TTL-expired.
	if ok, err := r.SendTemplate(TemplateHandoffRejected, "dev", nil); err != nil || !ok {
		t.Fatalf("SendTemplate(rejected) = %v, %v", ok, err)
	}

	if got := r.List("dev", false); len(got) != 2 {
		t.Fatalf("List() = %d, want 2 before expiry", len(got))
	}

	clock.Advance(2 * time.Hour)
	scheduler.RunDue()

	got := r.List("dev", false)
	if len(got) != 1 {
		t.Fatalf("List() = %d, want 1 after TTL (only the persistent one)", len(got))
	}
	if !got[0].Persistent {
		t.Errorf("survivor = %+v, want the persistent notification", got[0])
	}
}

func TestRouter_DefaultTTLKeepsExplicitDeadline(t *testing.T) {
	r, _, clock, scheduler := newTestRouter(t)
	r.SetDefaultTTL(time.Hour)

	n := &models.Notification{
		Category:  models.CategoryHandoff,
		Priority:  models.PriorityNormal,
		Recipient: "dev",
		Title:     "short-lived",
		ExpiresAt: clock.Now().Add(time.Minute),
	}
	r.Send(n)

	clock.Advance(2 * time.Minute)
	scheduler.RunDue()

	if got := r.List("dev", false); len(got) != 0 {
		t.Errorf("List() = %d, want 0 (explicit deadline wins over TTL)", len(got))
	}
}

func TestRouter_ArchiveHookSnapshotsPersistent(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	var archived []*models.Notification
	r.SetArchiveHook(func(n *models.Notification) {
		archived = append(archived, n)
	})

	if ok, err := r.SendTemplate(TemplateHandoffRequested, "dev", nil); err != nil || !ok {
		t.Fatalf("SendTemplate(requested) = %v, %v", ok, err)
	}
	// Non-persistent notifications never reach the hook.
	if ok, err := r.SendTemplate(TemplateHandoffAccepted, "dev", nil); err != nil || !ok {
		t.Fatalf("SendTemplate(accepted) = %v, %v", ok, err)
	}

	if len(archived) != 1 {
		t.Fatalf("archived %d notifications, want 1", len(archived))
	}
	if archived[0].Read {
		t.Errorf("archived snapshot Read = true, want false on send")
	}

	if err := r.MarkRead(archived[0].ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archived %d notifications after MarkRead, want 2", len(archived))
	}
	if !archived[1].Read {
		t.Errorf("archived snapshot Read = false, want true after MarkRead")
	}
}

func TestRouter_MarkAllReadArchivesPersistent(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	var archived []*models.Notification
	r.SetArchiveHook(func(n *models.Notification) {
		archived = append(archived, n)
	})

	r.SendTemplate(TemplateHandoffRequested, "dev", nil)
	r.SendTemplate(TemplateHandoffAccepted, "dev", nil)
	archived = archived[:0]

	if n := r.MarkAllRead("dev"); n != 2 {
		t.Fatalf("MarkAllRead() = %d, want 2", n)
	}
	if len(archived) != 1 {
		t.Fatalf("archived %d notifications, want 1 (persistent only)", len(archived))
	}
	if !archived[0].Read {
		t.Errorf("archived snapshot Read = false, want true")
	}
}

func TestRouter_ReadTracking(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	a := &models.Notification{Category: models.CategoryHandoff, Priority: models.PriorityNormal, Recipient: "dev", Title: "a"}
	bn := &models.Notification{Category: models.CategoryHandoff, Priority: models.PriorityNormal, Recipient: "dev", Title: "b"}
	r.Send(a)
	r.Send(bn)

	if err := r.MarkRead(a.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if got := r.List("dev", true); len(got) != 1 || got[0].Title != "b" {
		t.Errorf("List(unread) = %+v, want only b", got)
	}

	if n := r.MarkAllRead("dev"); n != 1 {
		t.Errorf("MarkAllRead() = %d, want 1", n)
	}
	if got := r.List("dev", true); len(got) != 0 {
		t.Errorf("List(unread) = %d, want 0", len(got))
	}

	if err := r.MarkRead("ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkRead(ghost) error = %v, want ErrNotFound", err)
	}
}
