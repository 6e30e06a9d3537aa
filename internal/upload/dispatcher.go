package upload

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filetable/backend/internal/decode"
	"github.com/filetable/backend/internal/models"
	"github.com/filetable/backend/internal/source"
)

// Dispatcher turns a file selection into a batch of independent read tasks.
type Dispatcher struct {
	store   *Store
	decoder decode.Decoder
	logger  *slog.Logger

	// sem bounds concurrent reads; nil means unbounded.
	sem chan struct{}

	mu    sync.RWMutex
	tasks map[string]*models.TaskInfo
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDecoder sets the decoder used by every task.
func WithDecoder(d decode.Decoder) Option {
	return func(ds *Dispatcher) { ds.decoder = d }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(ds *Dispatcher) { ds.logger = l }
}

// WithMaxConcurrent limits how many reads run at once. n <= 0 means no limit.
func WithMaxConcurrent(n int) Option {
	return func(ds *Dispatcher) {
		if n > 0 {
			ds.sem = make(chan struct{}, n)
		} else {
			ds.sem = nil
		}
	}
}

// NewDispatcher creates a dispatcher writing into store.
func NewDispatcher(store *Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		decoder: decode.Strict{},
		logger:  slog.Default(),
		tasks:   make(map[string]*models.TaskInfo),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the store the dispatcher writes into.
func (d *Dispatcher) Store() *Store {
	return d.store
}

// Dispatch clears the store and starts one task per source. It returns without
// waiting for any task; use Batch.Wait to await them.
func (d *Dispatcher) Dispatch(ctx context.Context, sources []source.Readable) *Batch {
	epoch := d.store.Clear()
	batch := newBatch(epoch)

	if len(sources) == 0 {
		d.logger.Debug("empty selection, store cleared", slog.Uint64("epoch", epoch))
		return batch
	}

	d.logger.Info("dispatching selection", slog.Uint64("epoch", epoch), slog.Int("files", len(sources)))

	tasks := make([]*Task, 0, len(sources))
	now := time.Now()

	d.mu.Lock()
	for _, src := range sources {
		task := NewTask(uuid.New().String(), epoch, src, d.decoder, d.store, d.logger)
		d.tasks[task.ID] = &models.TaskInfo{
			ID:        task.ID,
			Name:      src.Name(),
			Epoch:     epoch,
			Status:    models.TaskStatusPending,
			CreatedAt: now,
		}
		tasks = append(tasks, task)
		batch.TaskIDs = append(batch.TaskIDs, task.ID)
	}
	d.mu.Unlock()

	batch.wg.Add(len(tasks))
	for _, task := range tasks {
		go d.runTask(ctx, task, batch)
	}

	return batch
}

// Clear empties the store without touching in-flight tasks.
func (d *Dispatcher) Clear() uint64 {
	epoch := d.store.Clear()
	d.logger.Debug("list cleared", slog.Uint64("epoch", epoch))
	return epoch
}

func (d *Dispatcher) runTask(ctx context.Context, task *Task, batch *Batch) {
	defer batch.wg.Done()

	if d.sem != nil {
		select {
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
		case <-ctx.Done():
			res := task.Abort(ctx.Err())
			d.finish(task.ID, res)
			batch.add(res)
			return
		}
	}

	res := task.Run(ctx)
	d.finish(task.ID, res)
	batch.add(res)
}

// finish records the terminal state of a task (thread-safe).
func (d *Dispatcher) finish(id string, res Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, ok := d.tasks[id]
	if !ok {
		return
	}

	switch {
	case res.Err != nil:
		info.Status = models.TaskStatusFailed
		info.Error = res.Err.Error()
	case res.Stale:
		info.Status = models.TaskStatusStale
	default:
		info.Status = models.TaskStatusSucceeded
	}
	now := time.Now()
	info.CompletedAt = &now
}

// Task returns a copy of the task record for id.
func (d *Dispatcher) Task(id string) (models.TaskInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.tasks[id]
	if !ok {
		return models.TaskInfo{}, false
	}
	return *info, true
}

// Tasks returns all task records, newest first.
func (d *Dispatcher) Tasks() []models.TaskInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]models.TaskInfo, 0, len(d.tasks))
	for _, info := range d.tasks {
		list = append(list, *info)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// CleanupOldTasks removes finished task records older than maxAge.
func (d *Dispatcher) CleanupOldTasks(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, info := range d.tasks {
		if info.Status.Done() && info.CompletedAt != nil && info.CompletedAt.Before(cutoff) {
			delete(d.tasks, id)
			removed++
		}
	}
	return removed
}
