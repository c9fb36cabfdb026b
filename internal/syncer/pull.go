package syncer

import (
	"context"
	"fmt"

	"github.com/tidemark/tidemark/internal/record"
)

// pull brings the local store up to the remote version counter.
//
// The requested batch size is the version delta: every accepted mutation
// increments the server's counter by exactly one, so the delta is the
// expected record count. The server may return fewer (hard-purged records);
// that is not an error, and the high-water mark still advances to the counter
// value observed this run so purged deltas are not re-requested forever.
//
// All merged records and the new high-water mark are committed in a single
// transaction.
func (c *Coordinator) pull(ctx context.Context, since, upTo int64, firstSync bool) (PullStats, error) {
	var stats PullStats

	delta := upTo - since
	if delta == 0 {
		return stats, nil
	}

	remoteTasks, err := c.client.TaskBatch(ctx, delta)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch task batch: %w", err)
	}
	if int64(len(remoteTasks)) < delta {
		c.logger.Printf("Pull returned %d of %d expected records", len(remoteTasks), delta)
	}

	total := len(remoteTasks)
	batch := make([]*record.Task, 0, total)
	mark := upTo

	for i := range remoteTasks {
		rt := &remoteTasks[i]

		merged, outcome, err := c.mergeRemote(ctx, rt)
		if err != nil {
			return stats, err
		}
		batch = append(batch, merged)

		switch outcome {
		case mergeInsert:
			stats.Inserted++
		case mergeUpdate:
			stats.Updated++
		case mergeSkip:
			stats.Skipped++
		}

		if rt.Version > mark {
			mark = rt.Version
		}
		c.notifyProgress(i+1, total, firstSync)
	}

	if err := c.store.ApplyPullBatch(ctx, batch, mark); err != nil {
		return stats, err
	}
	return stats, nil
}

type mergeOutcome int

const (
	mergeInsert mergeOutcome = iota
	mergeUpdate
	mergeSkip
)

// mergeRemote decides what one pulled record does to the local store.
//
//   - No local record: insert it as synced.
//   - Local record, clean: remote overwrites it, still synced.
//   - Local record, dirty: the user's pending edit wins on content. Only the
//     version baseline and the category linkage advance; the record keeps its
//     dirty status and will still be pushed this run.
func (c *Coordinator) mergeRemote(ctx context.Context, rt *record.Task) (*record.Task, mergeOutcome, error) {
	local, err := c.store.GetTask(ctx, rt.Key)
	if err != nil {
		return nil, 0, err
	}
	if local == nil && rt.ServerID != 0 {
		// A record created here and first-pushed from another device can come
		// back under a different client key; the server id is authoritative.
		local, err = c.store.GetTaskByServerID(ctx, rt.ServerID)
		if err != nil {
			return nil, 0, err
		}
	}

	if local == nil {
		merged := *rt
		merged.Status = record.StatusSynced
		return &merged, mergeInsert, nil
	}

	if !local.Dirty() {
		merged := *rt
		merged.Key = local.Key
		merged.Status = record.StatusSynced
		return &merged, mergeUpdate, nil
	}

	merged := *local
	merged.Version = rt.Version
	merged.ServerID = rt.ServerID
	merged.CategoryID = rt.CategoryID
	return &merged, mergeSkip, nil
}
