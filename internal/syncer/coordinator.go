package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/transport"
)

// State is the coordinator's lifecycle state.
type State string

const (
	// StateIdle means no run is in progress.
	StateIdle State = "idle"

	// StateRunning means a run is in progress. At most one run exists at a
	// time; starting another joins it.
	StateRunning State = "running"
)

// ProgressFunc is notified after each record merged during a pull. It is a
// passive notification for progress display: the puller does not wait on it
// and it carries no backpressure.
type ProgressFunc func(current, total int, firstSync bool)

// PullStats summarizes one pull phase.
type PullStats struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Result summarizes one completed run.
type Result struct {
	LocalVersion  int64
	RemoteVersion int64
	Pull          PullStats
	Pushed        int // records acknowledged by the server
	Rejected      int // records pushed but not acknowledged; still dirty
	FirstSync     bool
}

// Config holds coordinator options.
type Config struct {
	// Logger for sync activity. Nil means a default stderr logger.
	Logger *log.Logger

	// OnProgress is invoked during pulls. Nil disables progress reporting.
	OnProgress ProgressFunc
}

// Coordinator runs the synchronization state machine.
type Coordinator struct {
	store    *store.Store
	client   transport.Client
	logger   *log.Logger
	progress ProgressFunc

	mu       sync.Mutex
	inflight *flight
}

// flight is one in-progress run; coalesced callers wait on done and share the
// outcome.
type flight struct {
	done   chan struct{}
	result Result
	err    error
}

// New creates a coordinator over the given store and transport.
func New(st *store.Store, client transport.Client, config *Config) *Coordinator {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Coordinator{
		store:    st,
		client:   client,
		logger:   logger,
		progress: config.OnProgress,
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		return StateRunning
	}
	return StateIdle
}

// Run performs one synchronization run and returns its result.
//
// If a run is already in progress the call is coalesced: it waits for the
// in-flight run and returns that run's result, so concurrent callers never
// race duplicate uploads. A coalesced caller whose own context is cancelled
// stops waiting and returns the context error; the in-flight run is not
// affected. Both terminal outcomes return the coordinator to idle; retry is
// simply calling Run again.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.result, f.err
		case <-ctx.Done():
			// The in-flight run keeps going; only this waiter gives up.
			return Result{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	f.result, f.err = c.run(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	return f.result, f.err
}

// run executes the three phases of one synchronization run.
func (c *Coordinator) run(ctx context.Context) (Result, error) {
	var res Result
	var phaseErrs []error

	start := time.Now()
	c.logger.Printf("Starting sync run")

	// Phase 0: categories, always before task version comparison.
	if err := c.syncCategories(ctx); err != nil {
		if !transport.IsTransportError(err) {
			return res, err
		}
		c.logger.Printf("Category sync failed, continuing: %v", err)
		phaseErrs = append(phaseErrs, err)
	}

	local, err := c.store.MaxSyncedVersion(ctx)
	if err != nil {
		return res, err
	}

	remote, err := c.client.CurrentVersion(ctx)
	if err != nil {
		// No task state has been touched yet; the run fails cleanly.
		return res, fmt.Errorf("failed to fetch remote version: %w", err)
	}

	res.LocalVersion = local
	res.RemoteVersion = remote
	res.FirstSync = local == 0

	c.logger.Printf("Version check: local=%d remote=%d", local, remote)

	if local > remote {
		// Only possible right after a local-wins push race: the server's
		// counter response is stale relative to our last acks. Pulling would
		// regress, so push only.
		c.logger.Printf("Local ahead of remote, push-only run")
	} else {
		stats, err := c.pull(ctx, local, remote, res.FirstSync)
		res.Pull = stats
		if err != nil {
			if !transport.IsTransportError(err) {
				return res, err
			}
			// Push is independent of the download and must not be starved by
			// a flaky one.
			c.logger.Printf("Pull failed, continuing to push: %v", err)
			phaseErrs = append(phaseErrs, err)
		}
	}

	pushed, rejected, err := c.push(ctx)
	res.Pushed = pushed
	res.Rejected = rejected
	if err != nil {
		if !transport.IsTransportError(err) {
			return res, err
		}
		c.logger.Printf("Push failed, records stay queued: %v", err)
		phaseErrs = append(phaseErrs, err)
	}

	if len(phaseErrs) > 0 {
		return res, errors.Join(phaseErrs...)
	}

	if err := c.store.SetLastSyncAt(ctx, time.Now()); err != nil {
		return res, err
	}

	c.logger.Printf("Sync complete in %v: pulled +%d ~%d =%d, pushed %d (rejected %d)",
		time.Since(start).Round(time.Millisecond),
		res.Pull.Inserted, res.Pull.Updated, res.Pull.Skipped,
		res.Pushed, res.Rejected)

	return res, nil
}

// syncCategories replaces the local category table with the server's list.
func (c *Coordinator) syncCategories(ctx context.Context) error {
	cats, err := c.client.Categories(ctx)
	if err != nil {
		return err
	}
	if err := c.store.ReplaceCategories(ctx, cats); err != nil {
		return err
	}
	c.logger.Printf("Categories synced: %d", len(cats))
	return nil
}

func (c *Coordinator) notifyProgress(current, total int, firstSync bool) {
	if c.progress != nil {
		c.progress(current, total, firstSync)
	}
}
