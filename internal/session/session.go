// Package session wraps a RepCounter with the bookkeeping of one exercise
// session and keeps the set of live sessions.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/models"
)

// FrameResult is the counter output for one frame.
type FrameResult struct {
	Count int           `json:"count"`
	Tip   counter.Tip   `json:"tip"`
	Stage counter.Stage `json:"stage"`
}

// State is a snapshot of a live session.
type State struct {
	ID        uuid.UUID      `json:"id"`
	UserID    int            `json:"user_id"`
	StartedAt time.Time      `json:"started_at"`
	LastFrame time.Time      `json:"last_frame,omitempty"`
	Frames    int            `json:"frames"`
	Count     int            `json:"count"`
	Stage     counter.Stage  `json:"stage"`
	LastTip   counter.Tip    `json:"last_tip,omitempty"`
	Config    counter.Config `json:"config"`
	// WindowFrames is how many smoothed samples the range check currently sees.
	WindowFrames int `json:"window_frames"`
}

// Session is one push-up session. Its methods are safe for concurrent use;
// the underlying RepCounter is not.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	userID    int
	source    string
	counter   *counter.RepCounter
	now       func() time.Time
	startedAt time.Time
	lastFrame time.Time

	frames     int
	hidden     int
	misaligned int
	tips       map[counter.Tip]int
	lastTip    counter.Tip
	reps       []models.RepEvent

	// closed is set once the session has been finished or reaped; its
	// summary may already be stored, so later frames are refused.
	closed bool
}

// New creates a session with the given thresholds.
func New(id uuid.UUID, userID int, source string, cfg counter.Config) *Session {
	return newSession(id, userID, source, cfg, time.Now)
}

// NewWithClock creates a session that reads frame times from now. The replay
// tool uses it to timestamp recorded frames.
func NewWithClock(id uuid.UUID, userID int, source string, cfg counter.Config, now func() time.Time) *Session {
	return newSession(id, userID, source, cfg, now)
}

func newSession(id uuid.UUID, userID int, source string, cfg counter.Config, now func() time.Time) *Session {
	return &Session{
		id:        id,
		userID:    userID,
		source:    source,
		counter:   counter.New(cfg),
		now:       now,
		startedAt: now(),
		tips:      make(map[counter.Tip]int),
	}
}

// ID returns the session ID.
func (s *Session) ID() uuid.UUID { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() int { return s.userID }

// Feed runs one frame through the counter. A nil frame counts as hidden.
// It returns ErrNotFound once the session has been finished or reaped.
func (s *Session) Feed(f *models.Frame) (FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return FrameResult{}, ErrNotFound
	}
	return s.feedLocked(f), nil
}

// FeedAll runs a batch of frames in order and returns one result per frame.
// The batch is applied entirely or, for a closed session, not at all.
func (s *Session) FeedAll(frames []*models.Frame) ([]FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotFound
	}
	out := make([]FrameResult, 0, len(frames))
	for _, f := range frames {
		out = append(out, s.feedLocked(f))
	}
	return out, nil
}

// Restart clears the count, the signal history and all tallies while keeping
// the session ID and thresholds, for a user who starts a set over.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotFound
	}
	s.counter.Reset()
	s.startedAt = s.now()
	s.lastFrame = time.Time{}
	s.frames, s.hidden, s.misaligned = 0, 0, 0
	s.tips = make(map[counter.Tip]int)
	s.lastTip = ""
	s.reps = nil
	return nil
}

// close marks the session as no longer accepting frames.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// closeIfIdle closes the session if it has been idle since before cutoff.
// Check and close happen under one lock so no frame slips in between.
func (s *Session) closeIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.idleSinceLocked().Before(cutoff) {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) feedLocked(f *models.Frame) FrameResult {
	now := s.now()
	before := s.counter.Count()
	count, tip := s.counter.Update(f.Metrics())

	s.frames++
	s.lastFrame = now
	s.tips[tip]++
	s.lastTip = tip
	switch tip {
	case counter.TipNotVisible:
		s.hidden++
	case counter.TipStraighten:
		s.misaligned++
	}
	if count > before {
		s.reps = append(s.reps, models.RepEvent{
			Number:     count,
			FrameIndex: s.frames - 1,
			Time:       now,
		})
	}
	return FrameResult{Count: count, Tip: tip, Stage: s.counter.Stage()}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:        s.id,
		UserID:    s.userID,
		StartedAt: s.startedAt,
		LastFrame: s.lastFrame,
		Frames:    s.frames,
		Count:     s.counter.Count(),
		Stage:     s.counter.Stage(),
		LastTip:   s.lastTip,
		Config:    s.counter.Config(),

		WindowFrames: s.counter.WindowLen(),
	}
}

// idleSinceLocked returns the time of the last frame, or the start time if none.
func (s *Session) idleSinceLocked() time.Time {
	if s.lastFrame.IsZero() {
		return s.startedAt
	}
	return s.lastFrame
}

// Summary returns the session outcome. The end time is the last frame, or
// the start time for a session that never received one.
func (s *Session) Summary() *models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := s.lastFrame
	if ended.IsZero() {
		ended = s.startedAt
	}
	tips := make(map[string]int, len(s.tips))
	for tip, n := range s.tips {
		tips[string(tip)] = n
	}
	return &models.SessionSummary{
		ID:               s.id,
		Source:           s.source,
		StartedAt:        s.startedAt,
		EndedAt:          ended,
		Reps:             s.counter.Count(),
		Frames:           s.frames,
		FramesHidden:     s.hidden,
		FramesMisaligned: s.misaligned,
		Tips:             tips,
		Config:           s.counter.Config(),
		RepEvents:        append([]models.RepEvent(nil), s.reps...),
	}
}
