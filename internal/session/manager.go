package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/models"
)

// ErrNotFound is returned for unknown or finished sessions, and for sessions
// owned by another user.
var ErrNotFound = errors.New("session not found")

// Manager holds the live sessions of all users.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	defaults counter.Config
	now      func() time.Time
	log      *slog.Logger
}

// NewManager creates a Manager. Sessions started without explicit
// thresholds use defaults.
func NewManager(defaults counter.Config, log *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		defaults: defaults.WithDefaults(),
		now:      time.Now,
		log:      log,
	}
}

// Defaults returns the thresholds used for sessions without overrides.
func (m *Manager) Defaults() counter.Config { return m.defaults }

// Start opens a live session for userID. Zero fields of overrides fall back
// to the manager defaults; the merged thresholds are validated.
func (m *Manager) Start(userID int, overrides counter.Config) (*Session, error) {
	cfg := merge(m.defaults, overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := newSession(uuid.New(), userID, "live", cfg, m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.log.Info("session started", "session", s.id, "user", userID, "live_sessions", n)
	return s, nil
}

// Get returns the live session with the given ID owned by userID.
func (m *Manager) Get(id uuid.UUID, userID int) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.userID != userID {
		return nil, ErrNotFound
	}
	return s, nil
}

// Finish removes the session and returns its summary.
func (m *Manager) Finish(id uuid.UUID, userID int) (*models.SessionSummary, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.userID != userID {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.close()
	summary := s.Summary()
	m.log.Info("session finished", "session", id, "user", userID, "reps", summary.Reps, "frames", summary.Frames)
	return summary, nil
}

// Reap drops sessions that have been idle longer than maxIdle and returns
// them so the caller can persist their summaries. Reaped sessions refuse
// further frames, so a handler still holding one cannot add reps that would
// never be stored.
func (m *Manager) Reap(maxIdle time.Duration) []*Session {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.closeIfIdle(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.log.Info("session reaped", "session", s.id, "user", s.userID)
	}
	return stale
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func merge(base, o counter.Config) counter.Config {
	if o.DownAngle != 0 {
		base.DownAngle = o.DownAngle
	}
	if o.UpAngle != 0 {
		base.UpAngle = o.UpAngle
	}
	if o.HipTolerance != 0 {
		base.HipTolerance = o.HipTolerance
	}
	if o.SmoothingAlpha != 0 {
		base.SmoothingAlpha = o.SmoothingAlpha
	}
	if o.WindowSize != 0 {
		base.WindowSize = o.WindowSize
	}
	if o.MinRange != 0 {
		base.MinRange = o.MinRange
	}
	return base
}
