package workspace

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/pkg/models"
)

// AddComment attaches a comment to a file, optionally anchored to a line.
func (w *Workspace) AddComment(fileID, author, content string, line int) (*models.WorkspaceComment, error) {
	if author == "" || content == "" {
		return nil, fmt.Errorf("add comment: empty author or content: %w", models.ErrValidation)
	}

	w.mu.Lock()
	f, ok := w.files[fileID]
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
	}
	c := &models.WorkspaceComment{
		ID:        uuid.New().String(),
		FileID:    fileID,
		Author:    author,
		Content:   content,
		Line:      line,
		CreatedAt: w.clock.Now(),
	}
	w.comments[c.ID] = c
	fileCopy := f.Clone()
	cp := c.Clone()
	w.mu.Unlock()

	w.publish(bus.EventCommentAdded, fileCopy, author, content)
	return cp, nil
}

// ResolveComment marks a comment thread as addressed. Resolving an
// already-resolved comment is a no-op.
func (w *Workspace) ResolveComment(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	c.Resolved = true
	return nil
}

// CommentsForFile returns the file's comments, oldest first, optionally
// filtered to unresolved threads.
func (w *Workspace) CommentsForFile(fileID string, unresolvedOnly bool) []*models.WorkspaceComment {
	w.mu.Lock()
	var out []*models.WorkspaceComment
	for _, c := range w.comments {
		if c.FileID != fileID {
			continue
		}
		if unresolvedOnly && c.Resolved {
			continue
		}
		out = append(out, c.Clone())
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
