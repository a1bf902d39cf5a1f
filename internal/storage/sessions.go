package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meltforce/repcoach/internal/models"
)

// InsertSession stores a finished session and its rep events in one
// transaction. Returns false if a session with the same ID already exists.
func (db *DB) InsertSession(ctx context.Context, row models.PushupSessionRow, reps []models.PushupRepRow) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tips := row.TipCounts
	if tips == nil {
		tips = map[string]int{}
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO pushup_sessions (id, user_id, source, started_at, ended_at, reps, frames,
		 frames_hidden, frames_misaligned, down_angle, up_angle, hip_tolerance, tip_counts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT DO NOTHING`,
		row.ID, row.UserID, row.Source, row.StartedAt, row.EndedAt, row.Reps, row.Frames,
		row.FramesHidden, row.FramesMisaligned, row.DownAngle, row.UpAngle, row.HipTolerance, tips)
	if err != nil {
		return false, fmt.Errorf("inserting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if len(reps) > 0 {
		query := `INSERT INTO pushup_reps (session_id, user_id, rep_number, frame_index, time) VALUES `
		args := make([]any, 0, len(reps)*5)
		valueStrings := make([]string, 0, len(reps))
		for i, r := range reps {
			base := i * 5
			valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5))
			args = append(args, r.SessionID, r.UserID, r.RepNumber, r.FrameIndex, r.Time)
		}
		query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return false, fmt.Errorf("inserting reps: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing session: %w", err)
	}
	return true, nil
}

const sessionColumns = `id, user_id, source, started_at, ended_at, reps, frames,
	frames_hidden, frames_misaligned, down_angle, up_angle, hip_tolerance, tip_counts`

// QuerySessions retrieves finished sessions in a time range, newest first.
func (db *DB) QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.PushupSessionRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM pushup_sessions
		 WHERE started_at >= $1 AND started_at < $2 AND user_id = $3
		 ORDER BY started_at DESC`,
		start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.PushupSessionRow
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// SessionDetail is a finished session with its rep events.
type SessionDetail struct {
	models.PushupSessionRow
	Reps []models.PushupRepRow `json:"rep_events"`
}

// GetSession retrieves a single session by ID with its rep events.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID, userID int) (*SessionDetail, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM pushup_sessions WHERE id = $1 AND user_id = $2`,
		id, userID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	detail := &SessionDetail{PushupSessionRow: s}

	repRows, err := db.Pool.Query(ctx,
		`SELECT session_id, user_id, rep_number, frame_index, time
		 FROM pushup_reps
		 WHERE session_id = $1 AND user_id = $2
		 ORDER BY rep_number ASC`,
		id, userID)
	if err != nil {
		return nil, fmt.Errorf("querying reps: %w", err)
	}
	defer repRows.Close()

	for repRows.Next() {
		var r models.PushupRepRow
		if err := repRows.Scan(&r.SessionID, &r.UserID, &r.RepNumber, &r.FrameIndex, &r.Time); err != nil {
			return nil, fmt.Errorf("scanning rep: %w", err)
		}
		detail.Reps = append(detail.Reps, r)
	}
	return detail, repRows.Err()
}

func scanSession(row pgx.Row) (models.PushupSessionRow, error) {
	var s models.PushupSessionRow
	err := row.Scan(&s.ID, &s.UserID, &s.Source, &s.StartedAt, &s.EndedAt, &s.Reps, &s.Frames,
		&s.FramesHidden, &s.FramesMisaligned, &s.DownAngle, &s.UpAngle, &s.HipTolerance, &s.TipCounts)
	return s, err
}
