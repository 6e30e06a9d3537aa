package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filetable/backend/internal/models"
	"github.com/filetable/backend/internal/source"
	"github.com/filetable/backend/internal/testutil"
)

const waitTimeout = 2 * time.Second

func gatedSources(files map[string]string, names ...string) ([]*testutil.GatedSource, []source.Readable) {
	gates := make([]*testutil.GatedSource, 0, len(names))
	srcs := make([]source.Readable, 0, len(names))
	for _, name := range names {
		g := testutil.NewGatedSource(name, []byte(files[name]))
		gates = append(gates, g)
		srcs = append(srcs, g)
	}
	return gates, srcs
}

// watch returns a channel receiving the store length after every mutation.
func watch(t *testing.T, s *Store) <-chan int {
	t.Helper()
	ch := make(chan int, 64)
	t.Cleanup(s.Subscribe(func(_ uint64, snap []models.Upload) { ch <- len(snap) }))
	return ch
}

func waitLen(t *testing.T, ch <-chan int, want int) {
	t.Helper()
	select {
	case n := <-ch:
		require.Equal(t, want, n)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for store length %d", want)
	}
}

func waitBatch(t *testing.T, b *Batch) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for batch")
	}
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := append(append(append([]int{}, p[:i]...), n-1), p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestDispatch_AllFilesLandInCompletionOrder(t *testing.T) {
	files := map[string]string{"a.txt": "alpha", "b.txt": "beta", "c.txt": "gamma"}
	names := []string{"a.txt", "b.txt", "c.txt"}

	for _, order := range permutations(len(names)) {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			store := NewStore()
			d := NewDispatcher(store)
			gates, srcs := gatedSources(files, names...)
			changes := watch(t, store)

			batch := d.Dispatch(context.Background(), srcs)
			waitLen(t, changes, 0) // the dispatch clear

			want := make([]models.Upload, 0, len(order))
			for i, idx := range order {
				gates[idx].Release()
				waitLen(t, changes, i+1)
				want = append(want, models.NewUpload(names[idx], files[names[idx]]))
			}
			waitBatch(t, batch)

			assert.Equal(t, want, store.Snapshot())
			assert.Zero(t, batch.Failed())
		})
	}
}

func TestDispatch_CompletionOrderScenario(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store)
	gates, srcs := gatedSources(map[string]string{"a.txt": "hello", "b.txt": "world"}, "a.txt", "b.txt")
	changes := watch(t, store)

	batch := d.Dispatch(context.Background(), srcs)
	waitLen(t, changes, 0)

	gates[1].Release()
	waitLen(t, changes, 1)
	gates[0].Release()
	waitBatch(t, batch)

	assert.Equal(t, []models.Upload{
		{Name: "b.txt", Content: "world"},
		{Name: "a.txt", Content: "hello"},
	}, store.Snapshot())
}

func TestDispatch_ClearsBeforeAnyTaskStarts(t *testing.T) {
	store := NewStore()
	store.Append(models.NewUpload("old.txt", "previous batch"))
	d := NewDispatcher(store)

	gates, srcs := gatedSources(map[string]string{"new.txt": "x"}, "new.txt")
	batch := d.Dispatch(context.Background(), srcs)

	// nothing has been released yet
	assert.Empty(t, store.Snapshot())
	assert.Equal(t, batch.Epoch, store.Epoch())

	gates[0].Release()
	waitBatch(t, batch)
	assert.Equal(t, []models.Upload{{Name: "new.txt", Content: "x"}}, store.Snapshot())
}

func TestDispatch_EmptySelection(t *testing.T) {
	store := NewStore()
	store.Append(models.NewUpload("old.txt", "x"))
	d := NewDispatcher(store)

	batch := d.Dispatch(context.Background(), nil)
	waitBatch(t, batch)

	assert.Empty(t, store.Snapshot())
	assert.Empty(t, batch.TaskIDs)
	assert.Empty(t, d.Tasks())
}

func TestDispatch_DecodeFailureIsIsolated(t *testing.T) {
	logger, logs := testutil.NewLogger()
	store := NewStore()
	d := NewDispatcher(store, WithLogger(logger))

	batch := d.Dispatch(context.Background(), []source.Readable{
		source.NewBytes("one.txt", []byte("1")),
		source.NewBytes("bad.bin", []byte{0x80, 0x81}),
		source.NewBytes("three.txt", []byte("3")),
	})
	waitBatch(t, batch)

	names := map[string]bool{}
	for _, u := range store.Snapshot() {
		names[u.Name] = true
	}
	assert.Equal(t, map[string]bool{"one.txt": true, "three.txt": true}, names)
	assert.Equal(t, 1, batch.Failed())

	errs := logs.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "bad.bin", errs[0]["file"])
}

func TestDispatch_SingleInvalidFileScenario(t *testing.T) {
	logger, logs := testutil.NewLogger()
	store := NewStore()
	d := NewDispatcher(store, WithLogger(logger))

	batch := d.Dispatch(context.Background(), []source.Readable{source.NewBytes("bad.bin", []byte{0xff})})
	waitBatch(t, batch)

	assert.Empty(t, store.Snapshot())
	assert.Len(t, logs.Errors(), 1)

	info, ok := d.Task(batch.TaskIDs[0])
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusFailed, info.Status)
	assert.NotEmpty(t, info.Error)
	assert.NotNil(t, info.CompletedAt)
}

func TestDispatch_ClearDuringFlightDropsStaleRow(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store)
	gates, srcs := gatedSources(map[string]string{"slow.txt": "late"}, "slow.txt")

	batch := d.Dispatch(context.Background(), srcs)
	<-gates[0].Started()

	d.Clear()
	gates[0].Release()
	waitBatch(t, batch)

	// The epoch guard keeps the superseded read out of the cleared list.
	assert.Empty(t, store.Snapshot())
	info, ok := d.Task(batch.TaskIDs[0])
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusStale, info.Status)
	require.Len(t, batch.Results(), 1)
	assert.True(t, batch.Results()[0].Stale)
}

func TestDispatch_NewSelectionSupersedesOldBatch(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store)

	oldGates, oldSrcs := gatedSources(map[string]string{"old.txt": "old"}, "old.txt")
	oldBatch := d.Dispatch(context.Background(), oldSrcs)

	newGates, newSrcs := gatedSources(map[string]string{"new.txt": "new"}, "new.txt")
	newBatch := d.Dispatch(context.Background(), newSrcs)

	newGates[0].Release()
	waitBatch(t, newBatch)
	oldGates[0].Release()
	waitBatch(t, oldBatch)

	assert.Equal(t, []models.Upload{{Name: "new.txt", Content: "new"}}, store.Snapshot())
	assert.Greater(t, newBatch.Epoch, oldBatch.Epoch)
}

func TestDispatch_ReturnsWithoutWaiting(t *testing.T) {
	d := NewDispatcher(NewStore())
	gates, srcs := gatedSources(map[string]string{"a": "1", "b": "2"}, "a", "b")

	done := make(chan *Batch, 1)
	go func() { done <- d.Dispatch(context.Background(), srcs) }()

	var batch *Batch
	select {
	case batch = <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Dispatch blocked on its tasks")
	}

	for _, id := range batch.TaskIDs {
		info, ok := d.Task(id)
		require.True(t, ok)
		assert.Equal(t, models.TaskStatusPending, info.Status)
	}

	for _, g := range gates {
		g.Release()
	}
	waitBatch(t, batch)
}

func TestDispatch_MaxConcurrent(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, WithMaxConcurrent(1))
	gates, srcs := gatedSources(map[string]string{"a": "1", "b": "2"}, "a", "b")

	batch := d.Dispatch(context.Background(), srcs)

	// exactly one read may be in flight
	var first, second int
	select {
	case <-gates[0].Started():
		first, second = 0, 1
	case <-gates[1].Started():
		first, second = 1, 0
	case <-time.After(waitTimeout):
		t.Fatal("no read started")
	}
	select {
	case <-gates[second].Started():
		t.Fatal("second read started while the first held the only slot")
	case <-time.After(50 * time.Millisecond):
	}

	gates[first].Release()
	<-gates[second].Started()
	gates[second].Release()
	waitBatch(t, batch)
	assert.Equal(t, 2, store.Len())
}

func TestDispatch_CancelledContextFailsWaitingTasks(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, WithMaxConcurrent(1))
	ctx, cancel := context.WithCancel(context.Background())

	gates, srcs := gatedSources(map[string]string{"a": "1", "b": "2"}, "a", "b")
	batch := d.Dispatch(ctx, srcs)
	cancel()
	waitBatch(t, batch)

	assert.Equal(t, 2, batch.Failed())
	for _, r := range batch.Results() {
		assert.True(t, errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, ErrRead))
	}
	assert.Empty(t, store.Snapshot())
	_ = gates
}

func TestDispatch_CancelledBeforeSlotReleasesStagedFiles(t *testing.T) {
	logger, logs := testutil.NewLogger()
	staging := testutil.NewMockStorage()

	var srcs []source.Readable
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		info, err := staging.Save(name, strings.NewReader("data"))
		require.NoError(t, err)
		srcs = append(srcs, source.NewStaged(staging, info.ID, info.Name, logger))
	}
	require.Equal(t, 3, staging.Len())

	store := NewStore()
	d := NewDispatcher(store, WithMaxConcurrent(1), WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := d.Dispatch(ctx, srcs)
	waitBatch(t, batch)

	assert.Equal(t, 3, batch.Failed())
	for _, r := range batch.Results() {
		assert.ErrorIs(t, r.Err, ErrRead)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Zero(t, staging.Len(), "no staged copy may outlive its task")
	assert.Empty(t, store.Snapshot())

	errs := logs.Errors()
	require.Len(t, errs, 3)
	for _, rec := range errs {
		assert.Contains(t, rec, "task")
		assert.Contains(t, rec, "file")
		assert.Contains(t, rec, "epoch")
	}
}

func TestDispatcher_CleanupOldTasks(t *testing.T) {
	d := NewDispatcher(NewStore())
	batch := d.Dispatch(context.Background(), []source.Readable{source.NewBytes("a", []byte("a"))})
	waitBatch(t, batch)

	assert.Zero(t, d.CleanupOldTasks(time.Hour))
	require.Len(t, d.Tasks(), 1)

	assert.Equal(t, 1, d.CleanupOldTasks(-time.Second))
	assert.Empty(t, d.Tasks())
}
