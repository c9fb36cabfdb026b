package syncer

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/transport"
)

// fakeClient is an in-memory transport. The function fields override the
// default behavior; counters record how often each endpoint was hit.
type fakeClient struct {
	mu sync.Mutex

	version    int64
	batch      []record.Task
	categories []record.Category

	versionFn func(ctx context.Context) (int64, error)
	batchFn   func(ctx context.Context, delta int64) ([]record.Task, error)
	pushFn    func(ctx context.Context, tasks []*record.Task) ([]record.Ack, error)
	catsFn    func(ctx context.Context) ([]record.Category, error)

	versionCalls int
	batchCalls   int
	pushCalls    int
}

func (f *fakeClient) CurrentVersion(ctx context.Context) (int64, error) {
	f.mu.Lock()
	f.versionCalls++
	fn := f.versionFn
	v := f.version
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return v, nil
}

func (f *fakeClient) TaskBatch(ctx context.Context, delta int64) ([]record.Task, error) {
	f.mu.Lock()
	f.batchCalls++
	fn := f.batchFn
	batch := f.batch
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, delta)
	}
	return batch, nil
}

func (f *fakeClient) PushMutations(ctx context.Context, tasks []*record.Task) ([]record.Ack, error) {
	f.mu.Lock()
	f.pushCalls++
	fn := f.pushFn
	version := f.version
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, tasks)
	}

	// Default: accept everything, assigning sequential versions past the
	// current counter.
	acks := make([]record.Ack, len(tasks))
	for i, t := range tasks {
		version++
		acks[i] = record.Ack{
			Key:      t.Key,
			ServerID: version + 1000,
			Version:  version,
			SyncTime: time.Now(),
		}
	}

	f.mu.Lock()
	f.version = version
	f.mu.Unlock()
	return acks, nil
}

func (f *fakeClient) Categories(ctx context.Context) ([]record.Category, error) {
	f.mu.Lock()
	fn := f.catsFn
	cats := f.categories
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return cats, nil
}

func (f *fakeClient) calls() (version, batch, push int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versionCalls, f.batchCalls, f.pushCalls
}

// setupStore creates a temporary database for testing.
func setupStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

func newCoordinator(t *testing.T, st *store.Store, client transport.Client) *Coordinator {
	t.Helper()
	return New(st, client, &Config{
		Logger: log.New(io.Discard, "", 0),
	})
}

// remoteTask builds a server-side record for a fake batch.
func remoteTask(key string, serverID, version int64, content string) record.Task {
	return record.Task{
		Key:        key,
		ServerID:   serverID,
		Content:    content,
		Version:    version,
		SortKey:    decimal.NewFromInt(version * 100),
		CreateTime: time.Now(),
	}
}

// localTask inserts a dirty locally created task.
func localTask(t *testing.T, st *store.Store, key, content string) *record.Task {
	t.Helper()

	task := &record.Task{
		Key:     key,
		Content: content,
		SortKey: decimal.NewFromInt(500),
	}
	if err := st.InsertLocal(context.Background(), task); err != nil {
		t.Fatalf("failed to insert local task: %v", err)
	}
	return task
}

func transportErr(op string) error {
	return &transport.Error{Op: op, Err: errors.New("connection refused")}
}

func TestFirstSyncPullsEverything(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	client := &fakeClient{
		version: 3,
		batch: []record.Task{
			remoteTask("r1", 1, 1, "one"),
			remoteTask("r2", 2, 2, "two"),
			remoteTask("r3", 3, 3, "three"),
		},
	}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.FirstSync {
		t.Error("FirstSync = false on an empty store")
	}
	if res.Pull.Inserted != 3 || res.Pull.Updated != 0 || res.Pull.Skipped != 0 {
		t.Errorf("pull stats = %+v, want 3 inserted", res.Pull)
	}

	mark, _ := st.MaxSyncedVersion(ctx)
	if mark != 3 {
		t.Errorf("high-water mark = %d, want 3", mark)
	}

	// Nothing local was dirty, so no upload round-trip happened.
	_, _, pushes := client.calls()
	if pushes != 0 {
		t.Errorf("push endpoint hit %d times with empty dirty set", pushes)
	}
}

func TestNoChangesNoTraffic(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	client := &fakeClient{
		version: 2,
		batch: []record.Task{
			remoteTask("r1", 1, 1, "one"),
			remoteTask("r2", 2, 2, "two"),
		},
	}
	coordinator := newCoordinator(t, st, client)

	if _, err := coordinator.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	res, err := coordinator.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res.Pull.Inserted+res.Pull.Updated+res.Pull.Skipped != 0 {
		t.Errorf("second run pulled records: %+v", res.Pull)
	}
	if res.Pushed != 0 {
		t.Errorf("second run pushed %d records", res.Pushed)
	}

	// One batch fetch for the first run, none for the second.
	_, batches, pushes := client.calls()
	if batches != 1 {
		t.Errorf("batch endpoint hit %d times, want 1", batches)
	}
	if pushes != 0 {
		t.Errorf("push endpoint hit %d times, want 0", pushes)
	}
}

func TestPushLocalCreation(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	localTask(t, st, "t1", "made offline")
	client := &fakeClient{}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Pushed != 1 || res.Rejected != 0 {
		t.Errorf("pushed=%d rejected=%d, want 1/0", res.Pushed, res.Rejected)
	}

	got, _ := st.GetTask(ctx, "t1")
	if got.Status != record.StatusSynced {
		t.Errorf("status after push = %s, want synced", got.Status)
	}
	if got.Version == 0 || got.ServerID == 0 {
		t.Errorf("server fields not filled in: version=%d server=%d", got.Version, got.ServerID)
	}

	dirty, _ := st.CountDirty(ctx)
	if dirty != 0 {
		t.Errorf("%d records still dirty after full ack", dirty)
	}
}

func TestDirtyLocalContentWins(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// A record both edited locally and changed on the server.
	localTask(t, st, "t1", "local edit")

	client := &fakeClient{
		version: 5,
		batch:   []record.Task{remoteTask("t1", 9, 5, "server content")},
		// Server rejects the upload so the merged state stays observable.
		pushFn: func(ctx context.Context, tasks []*record.Task) ([]record.Ack, error) {
			return nil, nil
		},
	}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Pull.Skipped != 1 {
		t.Errorf("pull stats = %+v, want 1 skipped", res.Pull)
	}
	if res.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", res.Rejected)
	}

	got, _ := st.GetTask(ctx, "t1")
	if got.Content != "local edit" {
		t.Errorf("content = %q, remote overwrote a dirty record", got.Content)
	}
	// Version baseline and server linkage advance even though content held.
	if got.Version != 5 {
		t.Errorf("version = %d, want 5", got.Version)
	}
	if got.ServerID != 9 {
		t.Errorf("server id = %d, want 9", got.ServerID)
	}
	if !got.Dirty() {
		t.Error("record lost its dirty status during merge")
	}
}

func TestCleanLocalOverwritten(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	client := &fakeClient{
		version: 1,
		batch:   []record.Task{remoteTask("t1", 9, 1, "v1")},
	}
	coordinator := newCoordinator(t, st, client)
	if _, err := coordinator.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Server-side edit bumps the record to version 2.
	client.mu.Lock()
	client.version = 2
	client.batch = []record.Task{remoteTask("t1", 9, 2, "v2")}
	client.mu.Unlock()

	res, err := coordinator.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res.Pull.Updated != 1 {
		t.Errorf("pull stats = %+v, want 1 updated", res.Pull)
	}

	got, _ := st.GetTask(ctx, "t1")
	if got.Content != "v2" || got.Version != 2 {
		t.Errorf("clean record not overwritten: content=%q version=%d", got.Content, got.Version)
	}
	if got.Status != record.StatusSynced {
		t.Errorf("status = %s, want synced", got.Status)
	}
}

func TestPurgedRecordsAdvanceMark(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// Counter says 10 but the server only returns two surviving records:
	// the rest were hard-purged. The mark must still reach 10 or every
	// later run would re-request the purged deltas.
	client := &fakeClient{
		version: 10,
		batch: []record.Task{
			remoteTask("r1", 1, 4, "survivor"),
			remoteTask("r2", 2, 7, "survivor"),
		},
	}
	coordinator := newCoordinator(t, st, client)

	if _, err := coordinator.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mark, _ := st.MaxSyncedVersion(ctx)
	if mark != 10 {
		t.Errorf("high-water mark = %d, want 10", mark)
	}

	if _, err := coordinator.Run(ctx); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	_, batches, _ := client.calls()
	if batches != 1 {
		t.Errorf("batch endpoint hit %d times, want 1 (purged deltas re-requested)", batches)
	}
}

func TestPullFailureStillPushes(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	localTask(t, st, "t1", "queued")

	client := &fakeClient{
		version: 5,
		batchFn: func(ctx context.Context, delta int64) ([]record.Task, error) {
			return nil, transportErr("task batch")
		},
	}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded despite pull failure")
	}
	if res.Pushed != 1 {
		t.Errorf("pushed = %d, want 1 (push must not be starved by a flaky pull)", res.Pushed)
	}

	got, _ := st.GetTask(ctx, "t1")
	if got.Status != record.StatusSynced {
		t.Errorf("status = %s, want synced after push", got.Status)
	}
}

func TestPushFailureLeavesRecordsQueued(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	localTask(t, st, "t1", "queued")

	client := &fakeClient{
		pushFn: func(ctx context.Context, tasks []*record.Task) ([]record.Ack, error) {
			return nil, transportErr("push mutations")
		},
	}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded despite push failure")
	}
	if res.Pushed != 0 {
		t.Errorf("pushed = %d, want 0", res.Pushed)
	}

	dirty, _ := st.CountDirty(ctx)
	if dirty != 1 {
		t.Errorf("%d dirty records, want 1 (failed push must not mark anything)", dirty)
	}
}

func TestVersionCheckFailureAborts(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	localTask(t, st, "t1", "queued")

	client := &fakeClient{
		versionFn: func(ctx context.Context) (int64, error) {
			return 0, transportErr("current version")
		},
	}

	_, err := newCoordinator(t, st, client).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded despite version check failure")
	}

	_, batches, pushes := client.calls()
	if batches != 0 || pushes != 0 {
		t.Errorf("endpoints hit after failed version check: batches=%d pushes=%d", batches, pushes)
	}

	dirty, _ := st.CountDirty(ctx)
	if dirty != 1 {
		t.Errorf("%d dirty records, want 1", dirty)
	}
}

func TestCategorySyncReplacesTable(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	client := &fakeClient{
		categories: []record.Category{
			{ID: 1, Name: "Work", IsFolder: true},
			{ID: 2, Name: "Inbox", FolderID: 1},
		},
	}

	if _, err := newCoordinator(t, st, client).Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cats, _ := st.AllCategories(ctx)
	if len(cats) != 2 {
		t.Errorf("got %d categories, want 2", len(cats))
	}
}

func TestCategoryTransportFailureContinues(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	client := &fakeClient{
		version: 1,
		batch:   []record.Task{remoteTask("r1", 1, 1, "one")},
		catsFn: func(ctx context.Context) ([]record.Category, error) {
			return nil, transportErr("categories")
		},
	}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded despite category failure")
	}
	if res.Pull.Inserted != 1 {
		t.Errorf("pull stats = %+v, want 1 inserted (task sync must continue)", res.Pull)
	}
}

func TestConcurrentRunsCoalesce(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	localTask(t, st, "t1", "queued")

	gate := make(chan struct{})
	client := &fakeClient{}
	client.versionFn = func(ctx context.Context) (int64, error) {
		<-gate // hold the first run open until both callers are in Run
		return 0, nil
	}

	coordinator := newCoordinator(t, st, client)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coordinator.Run(ctx)
		}(i)
	}

	// Wait until at least one goroutine owns the flight, then release.
	for coordinator.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond) // let the second caller join
	close(gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Run %d failed: %v", i, errs[i])
		}
	}

	// Both callers shared one run: one version check, at most one push.
	versions, _, pushes := client.calls()
	if versions != 1 {
		t.Errorf("version endpoint hit %d times, want 1", versions)
	}
	if pushes != 1 {
		t.Errorf("push endpoint hit %d times, want 1", pushes)
	}
	if results[0] != results[1] {
		t.Errorf("coalesced callers got different results: %+v vs %+v", results[0], results[1])
	}

	if coordinator.State() != StateIdle {
		t.Errorf("state = %s after runs finished, want idle", coordinator.State())
	}
}

func TestLocalAheadRunsPushOnly(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// The local mark is ahead of the counter the server reports. This only
	// happens when the version response is stale relative to our own last
	// acks; pulling would regress, so the run must skip straight to push.
	if err := st.ApplyPullBatch(ctx, nil, 80); err != nil {
		t.Fatalf("ApplyPullBatch failed: %v", err)
	}
	localTask(t, st, "t1", "queued")

	client := &fakeClient{version: 50}

	res, err := newCoordinator(t, st, client).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.LocalVersion != 80 || res.RemoteVersion != 50 {
		t.Errorf("versions = local %d remote %d, want 80/50", res.LocalVersion, res.RemoteVersion)
	}
	if res.Pull.Inserted+res.Pull.Updated+res.Pull.Skipped != 0 {
		t.Errorf("push-only run pulled records: %+v", res.Pull)
	}
	if res.Pushed != 1 {
		t.Errorf("pushed = %d, want 1", res.Pushed)
	}

	_, batches, pushes := client.calls()
	if batches != 0 {
		t.Errorf("batch endpoint hit %d times on a push-only run", batches)
	}
	if pushes != 1 {
		t.Errorf("push endpoint hit %d times, want 1", pushes)
	}

	// The stale counter must not drag the mark backwards.
	mark, _ := st.MaxSyncedVersion(ctx)
	if mark != 80 {
		t.Errorf("high-water mark = %d, want 80", mark)
	}
}

func TestCoalescedCallerHonorsCancellation(t *testing.T) {
	st := setupStore(t)

	gate := make(chan struct{})
	client := &fakeClient{}
	client.versionFn = func(ctx context.Context) (int64, error) {
		<-gate
		return 0, nil
	}

	coordinator := newCoordinator(t, st, client)

	first := make(chan error, 1)
	go func() {
		_, err := coordinator.Run(context.Background())
		first <- err
	}()

	for coordinator.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}

	// A second caller joins the in-flight run, then gives up.
	waiterCtx, cancelWaiter := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() {
		_, err := coordinator.Run(waiterCtx)
		second <- err
	}()

	time.Sleep(10 * time.Millisecond) // let the second caller join
	cancelWaiter()

	select {
	case err := <-second:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled waiter returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter still blocked on the in-flight run")
	}

	// The in-flight run itself is unaffected.
	close(gate)
	select {
	case err := <-first:
		if err != nil {
			t.Errorf("in-flight run failed after waiter cancellation: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight run never finished")
	}
}

func TestRunIdempotent(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	localTask(t, st, "t1", "offline edit")
	client := &fakeClient{
		version: 2,
		batch: []record.Task{
			remoteTask("r1", 1, 1, "one"),
			remoteTask("r2", 2, 2, "two"),
		},
	}
	coordinator := newCoordinator(t, st, client)

	if _, err := coordinator.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	countAfterFirst, _ := st.CountTasks(ctx)

	// The fake now reports the counter including our pushed record but has
	// no new batch content; a second run must change nothing locally.
	client.mu.Lock()
	client.batch = nil
	client.mu.Unlock()

	res, err := coordinator.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res.Pushed != 0 {
		t.Errorf("second run pushed %d records", res.Pushed)
	}

	countAfterSecond, _ := st.CountTasks(ctx)
	if countAfterFirst != countAfterSecond {
		t.Errorf("task count changed across idempotent rerun: %d -> %d",
			countAfterFirst, countAfterSecond)
	}
}
