package record

import "fmt"

// Status is the pending-mutation state of a local record.
//
// Every local edit tags the record with the mutation that still has to reach
// the server. Only the push acknowledgment handler clears a record back to
// StatusSynced. The soft-delete flag on Task is a separate concern: Deleted
// says "this task no longer exists", StatusDeleted says "this delete has not
// been pushed yet".
type Status string

const (
	// StatusSynced means the server has acknowledged the record as-is.
	StatusSynced Status = "synced"

	// StatusCreated means the record was created locally and never pushed.
	StatusCreated Status = "created"

	// StatusUpdated means a synced record was edited locally.
	StatusUpdated Status = "updated"

	// StatusDeleted means a local soft-delete is pending upload.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSynced, StatusCreated, StatusUpdated, StatusDeleted:
		return true
	}
	return false
}

// Dirty reports whether the record still has a mutation pending upload.
func (s Status) Dirty() bool {
	return s != StatusSynced
}

// Escalate returns the status a record moves to when the user edits it.
//
// A record that has never been pushed stays StatusCreated no matter how many
// times it is edited; a pending delete is never weakened back to an update.
func (s Status) Escalate() Status {
	switch s {
	case StatusCreated:
		return StatusCreated
	case StatusDeleted:
		return StatusDeleted
	default:
		return StatusUpdated
	}
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown mutation status %q", v)
	}
	return s, nil
}
