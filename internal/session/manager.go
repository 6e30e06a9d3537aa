package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filetable/backend/internal/models"
	"github.com/filetable/backend/internal/upload"
)

// DefaultMaxSessions limits concurrent sessions to bound memory held by their stores.
const DefaultMaxSessions = 64

// SessionKeepAliveWindow is how long a recently used session is protected from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// Manager owns one upload store and dispatcher per browser session.
type Manager struct {
	sessions    map[string]*State
	mu          sync.RWMutex
	maxSessions int
	dispatchOpt []upload.Option
	logger      *slog.Logger
}

// State is everything a session owns.
type State struct {
	ID           string
	Store        *upload.Store
	Dispatcher   *upload.Dispatcher
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Info returns a snapshot description of the session. Callers outside the
// manager should use Manager.Info.
func (s *State) Info() models.SessionInfo {
	return models.SessionInfo{
		ID:           s.ID,
		Epoch:        s.Store.Epoch(),
		UploadCount:  s.Store.Len(),
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed,
	}
}

// NewManager creates a session manager. opts are applied to every session's dispatcher.
func NewManager(maxSessions int, logger *slog.Logger, opts ...upload.Option) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*State),
		maxSessions: maxSessions,
		dispatchOpt: opts,
		logger:      logger,
	}
}

// GetOrCreate returns the session for id, creating a new one when id is empty or unknown.
// The boolean reports whether a session was created.
func (m *Manager) GetOrCreate(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[id]; ok && id != "" {
		state.LastAccessed = time.Now()
		return state, false
	}

	if len(m.sessions) >= m.maxSessions {
		m.evictLeastRecentLocked()
	}

	store := upload.NewStore()
	now := time.Now()
	state := &State{
		ID:           uuid.New().String(),
		Store:        store,
		Dispatcher:   upload.NewDispatcher(store, m.dispatchOpt...),
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.sessions[state.ID] = state
	m.logger.Debug("session created", slog.String("session", state.ID[:8]))
	return state, true
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	return state, ok
}

// Touch updates the LastAccessed timestamp for a session.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Delete drops a session. Its store is cleared so in-flight reads are discarded.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		state.Store.Clear()
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Info describes the session id. LastAccessed is read under the manager lock.
func (m *Manager) Info(id string) (models.SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return models.SessionInfo{}, false
	}
	return state.Info(), true
}

// CleanupOldSessions removes sessions idle for longer than maxAge, and finished
// task records older than maxAge in the sessions that stay.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	var dropped []*State
	var kept []*State
	for id, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) || !state.LastAccessed.Before(cutoff) {
			kept = append(kept, state)
			continue
		}
		delete(m.sessions, id)
		dropped = append(dropped, state)
	}
	m.mu.Unlock()

	for _, state := range dropped {
		state.Store.Clear()
		m.logger.Info("session expired", slog.String("session", state.ID[:8]))
	}
	for _, state := range kept {
		state.Dispatcher.CleanupOldTasks(maxAge)
	}
	return len(dropped)
}

func (m *Manager) evictLeastRecentLocked() {
	var oldest *State
	for _, state := range m.sessions {
		if oldest == nil || state.LastAccessed.Before(oldest.LastAccessed) {
			oldest = state
		}
	}
	if oldest == nil {
		return
	}
	delete(m.sessions, oldest.ID)
	oldest.Store.Clear()
	m.logger.Info("session evicted, limit reached", slog.String("session", oldest.ID[:8]))
}
