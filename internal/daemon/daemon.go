// Package daemon runs the sync coordinator in the background.
//
// The daemon:
//  1. Performs an initial sync run on startup
//  2. Runs the coordinator on a fixed interval
//  3. Watches the store file for writes from other processes (the CLI edits
//     the same database) and schedules a debounced run when local mutations
//     appear
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/syncer"
)

// Config holds daemon configuration.
type Config struct {
	// SyncInterval is how often a run is started regardless of local activity.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a store write before
	// triggering a run, batching rapid edits together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger

	// OnRunStarted is called before each run. Optional.
	OnRunStarted func()

	// OnRunFinished is called after each run with its outcome. Optional.
	OnRunFinished func(result *syncer.Result, err error, elapsed time.Duration)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync runs.
type Daemon struct {
	store       *store.Store
	coordinator *syncer.Coordinator
	storePath   string
	config      *Config

	watcher     *fsnotify.Watcher
	lastWrite   time.Time
	lastWriteMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon over an opened store and coordinator. storePath is the
// database file whose directory is watched for out-of-process edits.
func New(st *store.Store, coordinator *syncer.Coordinator, storePath string, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:       st,
		coordinator: coordinator,
		storePath:   storePath,
		config:      config,
		watcher:     watcher,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation. Blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Initial run so a freshly started daemon converges immediately.
	d.runSync("startup")

	if err := d.watcher.Add(filepath.Dir(d.storePath)); err != nil {
		return fmt.Errorf("failed to watch store directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", filepath.Dir(d.storePath))

	d.wg.Add(3)
	go d.watchStoreEvents()
	go d.debounceLoop()
	go d.intervalLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchStoreEvents records writes to the store file.
func (d *Daemon) watchStoreEvents() {
	defer d.wg.Done()

	base := filepath.Base(d.storePath)

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// The WAL file counts as a store write too.
			name := filepath.Base(event.Name)
			if name != base && name != base+"-wal" {
				continue
			}
			d.noteWrite()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) noteWrite() {
	d.lastWriteMu.Lock()
	d.lastWrite = time.Now()
	d.lastWriteMu.Unlock()
}

// debounceLoop triggers a run once writes have settled and local mutations
// are actually pending. Sync's own writes land with a clean dirty set, so
// they do not re-trigger.
func (d *Daemon) debounceLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.lastWriteMu.Lock()
			pending := !d.lastWrite.IsZero() && time.Since(d.lastWrite) >= d.config.DebounceInterval
			if pending {
				d.lastWrite = time.Time{}
			}
			d.lastWriteMu.Unlock()

			if !pending {
				continue
			}

			dirty, err := d.store.CountDirty(d.ctx)
			if err != nil {
				d.config.Logger.Printf("Error counting dirty records: %v", err)
				continue
			}
			if dirty == 0 {
				continue
			}
			d.runSync("local edits")
		}
	}
}

// intervalLoop runs the coordinator on the configured interval.
func (d *Daemon) intervalLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.runSync("interval")
		}
	}
}

// runSync performs one coordinator run. Overlap is harmless: concurrent
// triggers coalesce onto the in-flight run.
func (d *Daemon) runSync(reason string) {
	d.config.Logger.Printf("Sync run (%s)", reason)
	if d.config.OnRunStarted != nil {
		d.config.OnRunStarted()
	}

	start := time.Now()
	res, err := d.coordinator.Run(d.ctx)
	elapsed := time.Since(start)

	if d.config.OnRunFinished != nil {
		d.config.OnRunFinished(&res, err, elapsed)
	}

	if err != nil {
		d.config.Logger.Printf("Sync failed (%s): %v", reason, err)
		return
	}
	d.config.Logger.Printf("Sync ok (%s): pulled +%d ~%d =%d, pushed %d",
		reason, res.Pull.Inserted, res.Pull.Updated, res.Pull.Skipped, res.Pushed)
}
