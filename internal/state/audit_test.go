package state

import (
	"testing"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

func TestRecordHandoff_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	h := &models.HandoffRequest{
		ID:              "h-1",
		FromAgent:       "pm",
		ToAgent:         "dev",
		Reason:          "overloaded",
		TaskDescription: "implement login",
		Status:          models.HandoffCompleted,
		Result:          "done",
		ProjectID:       "proj-1",
		CreatedAt:       created,
		CompletedAt:     created.Add(time.Hour),
	}
	if err := db.RecordHandoff(h); err != nil {
		t.Fatalf("RecordHandoff failed: %v", err)
	}

	got, err := db.GetHandoff("h-1")
	if err != nil {
		t.Fatalf("GetHandoff failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetHandoff returned nil")
	}
	if got.FromAgent != "pm" || got.ToAgent != "dev" || got.Status != models.HandoffCompleted {
		t.Errorf("handoff = %+v", got)
	}
	if got.Result != "done" || got.ProjectID != "proj-1" {
		t.Errorf("handoff = %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.CompletedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.CompletedAt)
	}
}

func TestRecordHandoff_Upsert(t *testing.T) {
	db := setupTestDB(t)
	h := &models.HandoffRequest{
		ID:        "h-1",
		FromAgent: "pm",
		ToAgent:   "dev",
		Reason:    "overloaded",
		Status:    models.HandoffAccepted,
		CreatedAt: time.Now(),
	}
	if err := db.RecordHandoff(h); err != nil {
		t.Fatalf("first RecordHandoff failed: %v", err)
	}

	h.Status = models.HandoffCompleted
	h.Result = "finished"
	h.CompletedAt = time.Now()
	if err := db.RecordHandoff(h); err != nil {
		t.Fatalf("second RecordHandoff failed: %v", err)
	}

	got, err := db.GetHandoff("h-1")
	if err != nil {
		t.Fatalf("GetHandoff failed: %v", err)
	}
	if got.Status != models.HandoffCompleted || got.Result != "finished" {
		t.Errorf("handoff = %+v, want completed with result", got)
	}
}

func TestGetHandoff_Missing(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetHandoff("missing")
	if err != nil {
		t.Fatalf("GetHandoff failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetHandoff(missing) = %+v, want nil", got)
	}
}

func TestListHandoffs_FilterAndOrder(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []models.HandoffStatus{models.HandoffCompleted, models.HandoffRejected, models.HandoffCompleted} {
		h := &models.HandoffRequest{
			ID:        string(rune('a' + i)),
			FromAgent: "pm",
			ToAgent:   "dev",
			Reason:    "r",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.RecordHandoff(h); err != nil {
			t.Fatalf("RecordHandoff failed: %v", err)
		}
	}

	all, err := db.ListHandoffs("")
	if err != nil {
		t.Fatalf("ListHandoffs failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].ID != "c" {
		t.Errorf("first = %s, want newest (c)", all[0].ID)
	}

	completed, err := db.ListHandoffs(models.HandoffCompleted)
	if err != nil {
		t.Fatalf("ListHandoffs(completed) failed: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("len(completed) = %d, want 2", len(completed))
	}
}

func TestRecordConflict_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	c := &models.Conflict{
		ID:              "c-1",
		Type:            "merge",
		Severity:        models.SeverityHigh,
		Description:     "conflicting edits",
		InvolvedAgents:  []string{"dev", "qa"},
		Status:          models.ConflictResolved,
		Mediator:        "coordinator",
		Resolution:      "dev wins",
		ResolvedBy:      "coordinator",
		EscalationLevel: 2,
		CreatedAt:       created,
		ResolvedAt:      created.Add(time.Hour),
	}
	if err := db.RecordConflict(c); err != nil {
		t.Fatalf("RecordConflict failed: %v", err)
	}

	got, err := db.GetConflict("c-1")
	if err != nil {
		t.Fatalf("GetConflict failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetConflict returned nil")
	}
	if got.Severity != models.SeverityHigh || got.EscalationLevel != 2 || got.Resolution != "dev wins" {
		t.Errorf("conflict = %+v", got)
	}
	if len(got.InvolvedAgents) != 2 || got.InvolvedAgents[0] != "dev" {
		t.Errorf("involved = %v", got.InvolvedAgents)
	}
	if !got.ResolvedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("ResolvedAt = %v", got.ResolvedAt)
	}
}

func TestListConflicts_Filter(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	for i, status := range []models.ConflictStatus{models.ConflictResolved, models.ConflictEscalated} {
		c := &models.Conflict{
			ID:             string(rune('a' + i)),
			Type:           "merge",
			Severity:       models.SeverityLow,
			Description:    "d",
			InvolvedAgents: []string{"dev"},
			Status:         status,
			CreatedAt:      now,
		}
		if err := db.RecordConflict(c); err != nil {
			t.Fatalf("RecordConflict failed: %v", err)
		}
	}

	resolved, err := db.ListConflicts(models.ConflictResolved)
	if err != nil {
		t.Fatalf("ListConflicts failed: %v", err)
	}
	if len(resolved) != 1 || resolved[0].ID != "a" {
		t.Errorf("resolved = %+v, want only a", resolved)
	}
}

func TestArchiveNotification(t *testing.T) {
	db := setupTestDB(t)
	n := &models.Notification{
		ID:         "n-1",
		Category:   models.CategoryHandoff,
		Severity:   "info",
		Title:      "Handoff requested",
		Body:       "pm wants dev to take over",
		Recipient:  "dev",
		Persistent: true,
		Priority:   models.PriorityHigh,
		CreatedAt:  time.Now(),
	}
	if err := db.ArchiveNotification(n); err != nil {
		t.Fatalf("ArchiveNotification failed: %v", err)
	}

	// Re-archiving with read set updates in place.
	n.Read = true
	if err := db.ArchiveNotification(n); err != nil {
		t.Fatalf("second ArchiveNotification failed: %v", err)
	}

	got, err := db.ListArchivedNotifications("dev")
	if err != nil {
		t.Fatalf("ListArchivedNotifications failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if !got[0].Read || !got[0].Persistent || got[0].Priority != models.PriorityHigh {
		t.Errorf("notification = %+v", got[0])
	}

	if other, _ := db.ListArchivedNotifications("qa"); len(other) != 0 {
		t.Errorf("qa notifications = %d, want 0", len(other))
	}
	if all, _ := db.ListArchivedNotifications(""); len(all) != 1 {
		t.Errorf("all notifications = %d, want 1", len(all))
	}
}

func TestPurgeOldNotifications(t *testing.T) {
	db := setupTestDB(t)
	old := &models.Notification{
		ID:        "old",
		Category:  models.CategorySystem,
		Title:     "t",
		Recipient: "dev",
		Priority:  models.PriorityNormal,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	fresh := &models.Notification{
		ID:        "fresh",
		Category:  models.CategorySystem,
		Title:     "t",
		Recipient: "dev",
		Priority:  models.PriorityNormal,
		CreatedAt: time.Now(),
	}
	for _, n := range []*models.Notification{old, fresh} {
		if err := db.ArchiveNotification(n); err != nil {
			t.Fatalf("ArchiveNotification failed: %v", err)
		}
	}

	count, err := db.PurgeOldNotifications(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldNotifications failed: %v", err)
	}
	if count != 1 {
		t.Errorf("purged = %d, want 1", count)
	}

	remaining, _ := db.ListArchivedNotifications("dev")
	if len(remaining) != 1 || remaining[0].ID != "fresh" {
		t.Errorf("remaining = %+v, want only fresh", remaining)
	}
}
