package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/counter"
)

// Frame is the JSON form of one frame of joint angles.
type Frame struct {
	ElbowAngle   float64 `json:"elbow_angle"`
	HipAngle     float64 `json:"hip_angle"`
	VisibilityOK bool    `json:"visibility_ok"`
}

// Metrics converts a frame to counter input. A nil frame stays nil.
func (f *Frame) Metrics() *counter.Metrics {
	if f == nil {
		return nil
	}
	return &counter.Metrics{
		ElbowAngle:   f.ElbowAngle,
		HipAngle:     f.HipAngle,
		VisibilityOK: f.VisibilityOK,
	}
}

// RepEvent marks the frame at which a repetition was completed.
type RepEvent struct {
	Number     int       `json:"number"`
	FrameIndex int       `json:"frame_index"`
	Time       time.Time `json:"time"`
}

// SessionSummary is the outcome of a finished push-up session.
type SessionSummary struct {
	ID               uuid.UUID      `json:"id"`
	Source           string         `json:"source"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at"`
	Reps             int            `json:"reps"`
	Frames           int            `json:"frames"`
	FramesHidden     int            `json:"frames_hidden"`
	FramesMisaligned int            `json:"frames_misaligned"`
	Tips             map[string]int `json:"tips"`
	Config           counter.Config `json:"config"`
	RepEvents        []RepEvent     `json:"rep_events"`
}

// PushupSessionRow is a row for the pushup_sessions table.
type PushupSessionRow struct {
	ID               uuid.UUID      `json:"id"`
	UserID           int            `json:"user_id"`
	Source           string         `json:"source"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at"`
	Reps             int            `json:"reps"`
	Frames           int            `json:"frames"`
	FramesHidden     int            `json:"frames_hidden"`
	FramesMisaligned int            `json:"frames_misaligned"`
	DownAngle        float64        `json:"down_angle"`
	UpAngle          float64        `json:"up_angle"`
	HipTolerance     float64        `json:"hip_tolerance"`
	TipCounts        map[string]int `json:"tip_counts"`
}

// PushupRepRow is a row for the pushup_reps table.
type PushupRepRow struct {
	SessionID  uuid.UUID `json:"session_id"`
	UserID     int       `json:"user_id"`
	RepNumber  int       `json:"rep_number"`
	FrameIndex int       `json:"frame_index"`
	Time       time.Time `json:"time"`
}

// Rows converts a summary to storage rows for the given user.
func (s *SessionSummary) Rows(userID int) (PushupSessionRow, []PushupRepRow) {
	row := PushupSessionRow{
		ID:               s.ID,
		UserID:           userID,
		Source:           s.Source,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
		Reps:             s.Reps,
		Frames:           s.Frames,
		FramesHidden:     s.FramesHidden,
		FramesMisaligned: s.FramesMisaligned,
		DownAngle:        s.Config.DownAngle,
		UpAngle:          s.Config.UpAngle,
		HipTolerance:     s.Config.HipTolerance,
		TipCounts:        s.Tips,
	}
	reps := make([]PushupRepRow, 0, len(s.RepEvents))
	for _, e := range s.RepEvents {
		reps = append(reps, PushupRepRow{
			SessionID:  s.ID,
			UserID:     userID,
			RepNumber:  e.Number,
			FrameIndex: e.FrameIndex,
			Time:       e.Time,
		})
	}
	return row, reps
}
