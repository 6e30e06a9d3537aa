package upload

import (
	"sync"

	"github.com/filetable/backend/internal/models"
)

// Store holds the uploads of the current batch in completion order.
//
// Every Clear starts a new epoch. Tasks remember the epoch they were launched
// in and append through AppendIfCurrent, so completions from a superseded batch
// are dropped instead of landing in the new one.
type Store struct {
	mu      sync.RWMutex
	uploads []models.Upload
	epoch   uint64
	subs    map[int]func(uint64, []models.Upload)
	nextSub int

	// notifyMu serializes mutations together with their notifications, so
	// observers see snapshots in mutation order. It is always taken before mu.
	notifyMu sync.Mutex
}

// NewStore creates an empty store at epoch 0.
func NewStore() *Store {
	return &Store{
		uploads: make([]models.Upload, 0),
		subs:    make(map[int]func(uint64, []models.Upload)),
	}
}

// Append adds u to the end of the sequence regardless of epoch.
func (s *Store) Append(u models.Upload) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.uploads = append(s.uploads, u)
	s.publishLocked()
}

// AppendIfCurrent adds u only if epoch is still the current epoch.
// It reports whether u was appended.
func (s *Store) AppendIfCurrent(epoch uint64, u models.Upload) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.uploads = append(s.uploads, u)
	s.publishLocked()
	return true
}

// Clear empties the sequence, starts a new epoch and returns it.
func (s *Store) Clear() uint64 {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.uploads = make([]models.Upload, 0)
	s.epoch++
	epoch := s.epoch
	s.publishLocked()
	return epoch
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() []models.Upload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Current returns the epoch together with a copy of its sequence.
func (s *Store) Current() (uint64, []models.Upload) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch, s.copyLocked()
}

// Epoch returns the current epoch.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Len returns the number of uploads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}

// Subscribe registers fn to be called with the epoch and snapshot produced by
// every mutation. fn may read the store but must not mutate it. The returned
// func removes the subscription.
func (s *Store) Subscribe(fn func(epoch uint64, snapshot []models.Upload)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// publishLocked must be called with notifyMu and mu held. It releases mu
// before calling subscribers, so readers never wait on an observer.
func (s *Store) publishLocked() {
	epoch := s.epoch
	snapshot := s.copyLocked()
	subs := make([]func(uint64, []models.Upload), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(epoch, snapshot)
	}
}

func (s *Store) copyLocked() []models.Upload {
	out := make([]models.Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}
