package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/ingest"
	"github.com/meltforce/repcoach/internal/models"
	"github.com/meltforce/repcoach/internal/session"
	"github.com/meltforce/repcoach/internal/storage"
)

// maxFrameBody bounds a frames request; a batch of a few thousand frames fits.
const maxFrameBody = 4 << 20

// framesResponse is returned by the frames endpoint. Results is set only
// for batch requests.
type framesResponse struct {
	session.FrameResult
	Results []session.FrameResult `json:"results,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var overrides counter.Config
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	live, err := s.sessions.Start(userIDFromContext(r), overrides)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, live.State())
}

func (s *Server) handleGetLiveSession(w http.ResponseWriter, r *http.Request) {
	live, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, live.State())
}

// handleFrames accepts one frame, null (no pose this frame) or an array of
// frames and nulls.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	live, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}

	frames, batch, err := decodeFrames(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if !batch {
		res, err := live.Feed(frames[0])
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, framesResponse{FrameResult: res})
		return
	}

	results, err := live.FeedAll(frames)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	resp := framesResponse{Results: results}
	if len(results) > 0 {
		resp.FrameResult = results[len(results)-1]
	} else {
		st := live.State()
		resp.FrameResult = session.FrameResult{Count: st.Count, Tip: st.LastTip, Stage: st.Stage}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRestartSession zeroes the count of a live session, keeping its ID
// and thresholds.
func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	live, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	if err := live.Restart(); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("session restarted", "session", live.ID(), "user", live.UserID())
	writeJSON(w, http.StatusOK, live.State())
}

// decodeFrames parses a frames body. An empty body or "null" is a single
// absent frame.
func decodeFrames(body []byte) (frames []*models.Frame, batch bool, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []*models.Frame{nil}, false, nil
	}
	if body[0] == '[' {
		if err := json.Unmarshal(body, &frames); err != nil {
			return nil, true, err
		}
		return frames, true, nil
	}
	var f *models.Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, false, err
	}
	return []*models.Frame{f}, false, nil
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	uid := userIDFromContext(r)

	summary, err := s.sessions.Finish(id, uid)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	if r.URL.Query().Get("discard") == "true" || summary.Frames == 0 {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if _, err := s.ingest.Ingest(r.Context(), []*models.SessionSummary{summary}, uid); err != nil {
		s.log.Error("persisting finished session", "session", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleIngestSessions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}

	var sessions []*models.SessionSummary
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &sessions)
	} else {
		var one models.SessionSummary
		err = json.Unmarshal(body, &one)
		sessions = []*models.SessionSummary{&one}
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	result, err := s.ingest.Ingest(r.Context(), sessions, userIDFromContext(r))
	if errors.Is(err, ingest.ErrInvalid) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		// Storage failures are retryable; clients back off on 5xx only.
		s.log.Error("session ingest error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := s.store.QuerySessions(r.Context(), start, end, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.PushupSessionRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	detail, err := s.store.GetSession(r.Context(), id, userIDFromContext(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	bucket := "1 day"
	switch agg := r.URL.Query().Get("agg"); agg {
	case "daily", "":
	case "weekly":
		bucket = "1 week"
	case "monthly":
		bucket = "1 month"
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown agg %q", agg)})
		return
	}

	periods, err := s.store.GetRepSummary(r.Context(), start, end, bucket, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if periods == nil {
		periods = []storage.RepPeriod{}
	}
	writeJSON(w, http.StatusOK, periods)
}

func (s *Server) handleCounterDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Defaults())
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

// liveSession resolves the {id} URL parameter to a live session of the
// caller, writing the error response if it cannot.
func (s *Server) liveSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return nil, false
	}
	live, err := s.sessions.Get(id, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return nil, false
	}
	return live, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}

	if startStr == "" {
		// Default: last 30 days
		start = end.AddDate(0, 0, -30)
		return
	}
	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return
}
