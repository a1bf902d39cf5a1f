// Package ingest validates finished push-up sessions and stores them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/models"
)

// Result holds the outcome of an ingest operation.
type Result struct {
	SessionsReceived   int         `json:"sessions_received"`
	SessionsInserted   int         `json:"sessions_inserted"`
	SessionsDuplicated int         `json:"sessions_duplicated"`
	RepsInserted       int         `json:"reps_inserted"`
	IDs                []uuid.UUID `json:"ids,omitempty"`

	Message string `json:"message,omitempty"`
}

// ErrInvalid marks a session rejected by Validate. Any other Ingest error
// comes from storage and may succeed on retry.
var ErrInvalid = errors.New("invalid session")

// SessionWriter persists a session with its reps.
type SessionWriter interface {
	InsertSession(ctx context.Context, row models.PushupSessionRow, reps []models.PushupRepRow) (bool, error)
}

// Provider stores session summaries produced live or by the replay tool.
type Provider struct {
	db  SessionWriter
	log *slog.Logger
}

// NewProvider creates a new session ingest provider.
func NewProvider(db SessionWriter, log *slog.Logger) *Provider {
	return &Provider{db: db, log: log}
}

// Validate checks a summary before storage. A nil ID is replaced with a new one.
func Validate(s *models.SessionSummary) error {
	if s == nil {
		return errors.New("empty session")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}
	if s.EndedAt.Before(s.StartedAt) {
		return fmt.Errorf("ended_at %s is before started_at %s", s.EndedAt, s.StartedAt)
	}
	if s.Reps < 0 || s.Frames < 0 {
		return errors.New("reps and frames must not be negative")
	}
	if s.Reps > s.Frames {
		return fmt.Errorf("reps (%d) exceed frames (%d)", s.Reps, s.Frames)
	}
	if len(s.RepEvents) > s.Reps {
		return fmt.Errorf("%d rep events for %d reps", len(s.RepEvents), s.Reps)
	}
	if s.Source == "" {
		s.Source = "upload"
	}
	s.Config = s.Config.WithDefaults()
	return nil
}

// Ingest validates and stores sessions for userID. Sessions already stored
// under the same ID are counted as duplicates.
func (p *Provider) Ingest(ctx context.Context, sessions []*models.SessionSummary, userID int) (*Result, error) {
	result := &Result{SessionsReceived: len(sessions)}

	for i, s := range sessions {
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrInvalid, i, err)
		}
	}

	for _, s := range sessions {
		row, reps := s.Rows(userID)
		inserted, err := p.db.InsertSession(ctx, row, reps)
		if err != nil {
			return nil, fmt.Errorf("storing session %s: %w", s.ID, err)
		}
		if !inserted {
			result.SessionsDuplicated++
			continue
		}
		result.SessionsInserted++
		result.RepsInserted += len(reps)
		result.IDs = append(result.IDs, s.ID)
	}

	p.log.Info("sessions ingested",
		"user", userID,
		"received", result.SessionsReceived,
		"inserted", result.SessionsInserted,
		"duplicated", result.SessionsDuplicated,
	)
	return result, nil
}
