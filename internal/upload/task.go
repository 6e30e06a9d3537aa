package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/filetable/backend/internal/decode"
	"github.com/filetable/backend/internal/models"
	"github.com/filetable/backend/internal/source"
)

// Failure kinds. Task errors wrap exactly one of these.
var (
	ErrRead   = errors.New("read failed")
	ErrDecode = errors.New("decode failed")
)

// Result is the outcome of one task: an Upload or an error, never both.
type Result struct {
	TaskID string
	Upload models.Upload
	Err    error
	// Stale is set when the read succeeded but the batch had been cleared.
	Stale bool
}

// OK reports whether the task produced an upload that was appended.
func (r Result) OK() bool {
	return r.Err == nil && !r.Stale
}

// Task converts one selected file into an Upload in the store.
type Task struct {
	ID    string
	Epoch uint64

	src     source.Readable
	decoder decode.Decoder
	store   *Store
	logger  *slog.Logger
}

// NewTask creates a task bound to epoch. Nothing runs until Run is called.
func NewTask(id string, epoch uint64, src source.Readable, decoder decode.Decoder, store *Store, logger *slog.Logger) *Task {
	if decoder == nil {
		decoder = decode.Strict{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		ID:      id,
		Epoch:   epoch,
		src:     src,
		decoder: decoder,
		store:   store,
		logger:  logger,
	}
}

// Name returns the file name of the task's source.
func (t *Task) Name() string {
	return t.src.Name()
}

// Abort fails the task without reading it, e.g. when its context ends before a
// read slot frees up. A source holding a staged copy is discarded.
func (t *Task) Abort(cause error) Result {
	log := t.log()
	log.Error("file read abandoned, dropping", slog.String("err", cause.Error()))

	if d, ok := t.src.(source.Discarder); ok {
		if err := d.Discard(); err != nil {
			log.Debug("discard failed", slog.String("err", err.Error()))
		}
	}
	return Result{TaskID: t.ID, Err: fmt.Errorf("%w: %s: %w", ErrRead, t.src.Name(), cause)}
}

func (t *Task) log() *slog.Logger {
	return t.logger.With(
		slog.String("task", shortID(t.ID)),
		slog.String("file", t.src.Name()),
		slog.Uint64("epoch", t.Epoch),
	)
}

// Run reads and decodes the source once. The only effect on the store is at most
// one append, and only while the task's epoch is current.
func (t *Task) Run(ctx context.Context) (res Result) {
	res.TaskID = t.ID
	log := t.log()

	defer func() {
		if r := recover(); r != nil {
			res = Result{TaskID: t.ID, Err: fmt.Errorf("%w: %s: panic: %v", ErrRead, t.src.Name(), r)}
			log.Error("file read panicked", slog.Any("panic", r))
		}
	}()

	data, err := t.src.Read(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrRead, t.src.Name(), err)
		log.Error("file read failed, dropping", slog.String("err", err.Error()))
		return res
	}

	content, err := t.decoder.Decode(data)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrDecode, t.src.Name(), err)
		log.Error("file is not UTF-8 text, dropping", slog.String("err", err.Error()))
		return res
	}

	res.Upload = models.NewUpload(t.src.Name(), content)
	if !t.store.AppendIfCurrent(t.Epoch, res.Upload) {
		res.Stale = true
		log.Debug("batch superseded, discarding completed read")
		return res
	}

	log.Debug("file decoded", slog.Int("bytes", len(data)))
	return res
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
