package models

import "time"

// WorkspaceFile is a versioned shared document with an optional exclusive
// lock.
type WorkspaceFile struct {
	// ID is the unique identifier of the file.
	ID string `json:"id"`
	// Path is the logical path of the file within the workspace.
	Path string `json:"path"`
	// Content is the current file content.
	Content string `json:"content"`
	// Version increments by exactly one per accepted write.
	Version int `json:"version"`
	// LockedBy is the role holding the exclusive lock, empty when unlocked.
	LockedBy string `json:"locked_by,omitempty"`
	// LockedAt is when the current lock was taken.
	LockedAt time.Time `json:"locked_at,omitzero"`
	// ProjectID optionally scopes the file to a project.
	ProjectID string `json:"project_id,omitempty"`
	// CreatedBy is the role that created the file.
	CreatedBy string `json:"created_by"`
	// UpdatedBy is the role that last wrote the file.
	UpdatedBy string `json:"updated_by"`
	// CreatedAt is when the file was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the file was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Locked returns true if any agent holds the lock.
func (f *WorkspaceFile) Locked() bool {
	return f.LockedBy != ""
}

// Clone returns a copy of the file.
func (f *WorkspaceFile) Clone() *WorkspaceFile {
	cp := *f
	return &cp
}

// WorkspaceComment is a threaded comment anchored to a workspace file.
type WorkspaceComment struct {
	// ID is the unique identifier of the comment.
	ID string `json:"id"`
	// FileID is the workspace file the comment belongs to.
	FileID string `json:"file_id"`
	// Author is the role that wrote the comment.
	Author string `json:"author"`
	// Content is the comment body.
	Content string `json:"content"`
	// Line optionally anchors the comment to a line number (0 = whole file).
	Line int `json:"line,omitempty"`
	// Resolved marks the comment thread as addressed.
	Resolved bool `json:"resolved"`
	// CreatedAt is when the comment was written.
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy of the comment.
func (c *WorkspaceComment) Clone() *WorkspaceComment {
	cp := *c
	return &cp
}
