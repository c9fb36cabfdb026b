package syncer

import (
	"context"
	"fmt"
)

// push uploads the pending mutations in a single batch.
//
// An empty dirty set skips the network round-trip entirely. On transport
// failure nothing is marked: every record keeps its dirty status and is
// retried on the next run. A partial acknowledgment list marks exactly the
// acknowledged records; the rest stay queued.
func (c *Coordinator) push(ctx context.Context) (pushed, rejected int, err error) {
	dirty, err := c.store.DirtyTasks(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(dirty) == 0 {
		return 0, 0, nil
	}

	c.logger.Printf("Pushing %d dirty records", len(dirty))

	acks, err := c.client.PushMutations(ctx, dirty)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to push mutations: %w", err)
	}

	if err := c.store.MarkSynced(ctx, acks); err != nil {
		return 0, 0, err
	}

	rejected = len(dirty) - len(acks)
	if rejected > 0 {
		c.logger.Printf("Server rejected %d of %d records; they stay queued", rejected, len(dirty))
	}
	return len(acks), rejected, nil
}
