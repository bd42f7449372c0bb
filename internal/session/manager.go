package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minSweepInterval is the shortest idle sweep period.
const minSweepInterval = time.Second

// Manager owns the live sessions of the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	cfg      Config
	idleTTL  time.Duration
	logger   *slog.Logger
}

// NewManager creates a manager. Sessions idle for longer than idleTTL are evicted by Run;
// zero keeps sessions until they are deleted.
func NewManager(cfg Config, idleTTL time.Duration) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		cfg:      cfg,
		idleTTL:  idleTTL,
		logger:   cfg.Logger,
	}
}

// Create starts a session. A non-nil actor authenticates it immediately.
func (m *Manager) Create(actor uuid.UUID) *Session {
	s := New(m.cfg)
	if actor != uuid.Nil {
		// A fresh session has nothing pending, so this cannot fail.
		_ = s.Authenticate(actor)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session created", "session", s.ID, "authenticated", actor != uuid.Nil, "sessions", count)
	return s
}

// Get returns a live session.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and forgets a session. It reports whether the session existed.
func (m *Manager) Delete(id uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle closes sessions whose last activity is older than the idle TTL and returns how many.
func (m *Manager) EvictIdle(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	var expired []*Session
	for _, s := range candidates {
		if now.Sub(s.LastActive()) <= m.idleTTL {
			continue
		}
		m.mu.Lock()
		if m.sessions[s.ID] == s {
			delete(m.sessions, s.ID)
			expired = append(expired, s)
		}
		m.mu.Unlock()
	}

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		m.logger.Info("idle sessions evicted", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	defer m.CloseAll()
	if m.idleTTL <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := m.idleTTL / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.EvictIdle(now.UTC())
		}
	}
}

// CloseAll closes and forgets every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
