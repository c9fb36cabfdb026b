// Package transport defines the remote sync API the engine talks to and an
// HTTP implementation of it.
//
// The wire format is the server's concern; this package only promises the
// four calls the coordinator needs: the global version counter, incremental
// task batches, mutation pushes with per-record acknowledgments, and the
// category list.
package transport

import (
	"context"

	"github.com/tidemark/tidemark/internal/record"
)

// Client is the remote sync transport consumed by the coordinator.
//
// Every call takes a context and may fail with *Error on network, timeout or
// server-side rejection. Implementations must be safe for use by one sync run
// at a time; the coordinator's single-flight rule guarantees no overlap.
type Client interface {
	// CurrentVersion returns the server's global mutation counter.
	CurrentVersion(ctx context.Context) (int64, error)

	// TaskBatch returns the task records newer than the caller's high-water
	// mark. delta is the expected record count (the version gap); the server
	// may return fewer if records were hard-purged.
	TaskBatch(ctx context.Context, delta int64) ([]record.Task, error)

	// PushMutations uploads a batch of dirty records and returns one
	// acknowledgment per accepted record. Rejected records are simply absent
	// from the result.
	PushMutations(ctx context.Context, tasks []*record.Task) ([]record.Ack, error)

	// Categories returns the full category/folder list.
	Categories(ctx context.Context) ([]record.Category, error)
}
