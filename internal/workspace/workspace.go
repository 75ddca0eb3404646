// Package workspace holds the shared versioned documents agents
// collaborate on: exclusive write locks, threaded comments, substring
// search, and a stale-lock sweep.
package workspace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// Workspace provides thread-safe storage of files and comments. All
// accessors hand out clones.
type Workspace struct {
	bus   *bus.Bus
	clock sched.Clock

	// mu protects files and comments.
	mu       sync.Mutex
	files    map[string]*models.WorkspaceFile
	comments map[string]*models.WorkspaceComment
}

// New creates an empty Workspace.
func New(b *bus.Bus, clock sched.Clock) *Workspace {
	return &Workspace{
		bus:      b,
		clock:    clock,
		files:    make(map[string]*models.WorkspaceFile),
		comments: make(map[string]*models.WorkspaceComment),
	}
}

// CreateFile adds a new document at version 1.
func (w *Workspace) CreateFile(path, content, creator, projectID string) (*models.WorkspaceFile, error) {
	if path == "" {
		return nil, fmt.Errorf("create file: empty path: %w", models.ErrValidation)
	}
	if creator == "" {
		return nil, fmt.Errorf("create file: empty creator: %w", models.ErrValidation)
	}

	now := w.clock.Now()
	f := &models.WorkspaceFile{
		ID:        uuid.New().String(),
		Path:      path,
		Content:   content,
		Version:   1,
		ProjectID: projectID,
		CreatedBy: creator,
		UpdatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.mu.Lock()
	w.files[f.ID] = f
	cp := f.Clone()
	w.mu.Unlock()

	w.publish(bus.EventFileUpdated, cp, creator, "created "+path)
	return cp, nil
}

// UpdateFile writes new content. A write while another agent holds the
// lock fails with ErrLockConflict; an accepted write increments the
// version by exactly one.
func (w *Workspace) UpdateFile(id, content, editor string) (*models.WorkspaceFile, error) {
	w.mu.Lock()
	f, ok := w.files[id]
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	if f.Locked() && f.LockedBy != editor {
		holder := f.LockedBy
		w.mu.Unlock()
		return nil, fmt.Errorf("file %s is locked by %s: %w", id, holder, models.ErrLockConflict)
	}
	f.Content = content
	f.Version++
	f.UpdatedBy = editor
	f.UpdatedAt = w.clock.Now()
	cp := f.Clone()
	w.mu.Unlock()

	w.publish(bus.EventFileUpdated, cp, editor, fmt.Sprintf("updated %s to v%d", cp.Path, cp.Version))
	return cp, nil
}

// LockFile takes the exclusive write lock. Succeeds if the file is
// unlocked or the same agent already holds the lock (idempotent re-lock,
// which also refreshes the lock timestamp); returns false if another
// agent holds it.
func (w *Workspace) LockFile(id, agent string) (bool, error) {
	w.mu.Lock()
	f, ok := w.files[id]
	if !ok {
		w.mu.Unlock()
		return false, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	if f.Locked() && f.LockedBy != agent {
		w.mu.Unlock()
		return false, nil
	}
	f.LockedBy = agent
	f.LockedAt = w.clock.Now()
	cp := f.Clone()
	w.mu.Unlock()

	w.publish(bus.EventFileLocked, cp, agent, "locked "+cp.Path)
	return true, nil
}

// UnlockFile releases the lock. Only the current holder may release.
func (w *Workspace) UnlockFile(id, agent string) (bool, error) {
	w.mu.Lock()
	f, ok := w.files[id]
	if !ok {
		w.mu.Unlock()
		return false, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	if f.LockedBy != agent {
		w.mu.Unlock()
		return false, nil
	}
	f.LockedBy = ""
	f.LockedAt = time.Time{}
	cp := f.Clone()
	w.mu.Unlock()

	w.publish(bus.EventFileUnlocked, cp, agent, "unlocked "+cp.Path)
	return true, nil
}

// GetFile returns a copy of the file.
func (w *Workspace) GetFile(id string) (*models.WorkspaceFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	return f.Clone(), nil
}

// SearchFiles returns files whose path or content contains the query,
// case-insensitively, optionally filtered by project. Results are ordered
// by path for deterministic output.
func (w *Workspace) SearchFiles(query, projectID string) []*models.WorkspaceFile {
	needle := strings.ToLower(query)

	w.mu.Lock()
	var out []*models.WorkspaceFile
	for _, f := range w.files {
		if projectID != "" && f.ProjectID != projectID {
			continue
		}
		if strings.Contains(strings.ToLower(f.Path), needle) ||
			strings.Contains(strings.ToLower(f.Content), needle) {
			out = append(out, f.Clone())
		}
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// publish emits a workspace event to the file's project room when scoped,
// otherwise globally.
func (w *Workspace) publish(typ bus.EventType, f *models.WorkspaceFile, agent, message string) {
	ev := bus.Event{
		Type:      typ,
		AgentRole: agent,
		EntityID:  f.ID,
		ProjectID: f.ProjectID,
		Message:   message,
	}
	if f.ProjectID != "" {
		w.bus.PublishToProject(ev, f.ProjectID)
		return
	}
	w.bus.Publish(ev)
}

// SweepStaleLocks releases locks idle past the threshold. Lock timestamps
// are rechecked at sweep time, so a lock refreshed after the sweep was
// scheduled survives. Returns the number released.
func (w *Workspace) SweepStaleLocks(threshold time.Duration) int {
	cutoff := w.clock.Now().Add(-threshold)

	var released []*models.WorkspaceFile
	w.mu.Lock()
	for _, f := range w.files {
		if f.Locked() && f.LockedAt.Before(cutoff) {
			f.LockedBy = ""
			f.LockedAt = time.Time{}
			released = append(released, f.Clone())
		}
	}
	w.mu.Unlock()

	for _, f := range released {
		w.publish(bus.EventFileUnlocked, f, "", "stale lock released on "+f.Path)
	}
	return len(released)
}
