// Package record defines the task and category records the sync engine moves
// between the local store and the remote server.
//
// Records are flat structs with JSON tags matching the server's wire format.
// Payload fields (content, checklist items, attachments) are opaque to the
// engine: they round-trip through serialization unchanged and only the
// bookkeeping fields (version, status, sort key, timestamps) carry sync
// semantics.
package record

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Task is the unit of synchronization.
//
// Identity is two-layered: Key is a client-generated stable string used for
// local identity from the moment of creation, ServerID is issued by the server
// on the first accepted push and is zero until then.
type Task struct {
	Key      string `json:"taskId"`
	ServerID int64  `json:"id,omitempty"`

	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	CategoryID  int64  `json:"categoryId"`

	Reminder    *time.Time   `json:"reminder,omitempty"`
	Items       []Item       `json:"items,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// SortKey orders the task inside its list. High-precision decimal so a
	// task can always be inserted between two neighbors without renumbering;
	// ties are broken by CreateTime.
	SortKey decimal.Decimal `json:"taskSort"`

	// Version is the value of the server's global mutation counter when this
	// record state was accepted. Written only when applying a server response.
	Version int64 `json:"version"`

	// Status is the pending local mutation. Written only by local edits and
	// by the push acknowledgment handler. Not part of the pull wire format;
	// on push it tells the server which operation to apply.
	Status Status `json:"status,omitempty"`

	// Deleted marks the task as soft-deleted. The row is never physically
	// removed locally so the delete itself can be synced.
	Deleted bool `json:"deleted"`

	CreateTime time.Time  `json:"createTime"`
	SyncTime   *time.Time `json:"syncTime,omitempty"`
}

// Item is a checklist entry inside a task. Opaque payload.
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	SortOrder int64  `json:"sortOrder"`
}

// Attachment is a file reference carried on a task. Opaque payload; upload is
// a collaborator's concern.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

// Validate checks the fields the sync engine depends on.
func (t *Task) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("taskId is required")
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("invalid status %q for task %s", t.Status, t.Key)
	}
	if t.CreateTime.IsZero() {
		return fmt.Errorf("createTime is required for task %s", t.Key)
	}
	return nil
}

// Dirty reports whether the task has a mutation pending upload.
func (t *Task) Dirty() bool {
	return t.Status.Dirty()
}

// Category is a task list or a folder grouping task lists.
//
// FolderID links a child category to its folder; zero means top-level. The
// top-level-vs-child relationship is derived from FolderID, never stored
// redundantly.
type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	IsFolder  bool   `json:"folderIs"`
	FolderID  int64  `json:"folderId,omitempty"`
	SortOrder int64  `json:"sortOrder"`
	Deleted   bool   `json:"deleted"`
}

// Ack is the server's per-record acknowledgment of a pushed mutation.
type Ack struct {
	Key      string    `json:"taskId"`
	ServerID int64     `json:"id"`
	Version  int64     `json:"version"`
	SyncTime time.Time `json:"syncTime"`
}
