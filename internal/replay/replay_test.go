package replay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/models"
)

const oneRepCSV = `elbow_angle,hip_angle,visibility_ok
170,178,true
70,178,true
60,178,true
60,178,true
,,
175,178,true
175,178,true
175,178,true
`

const twoRepJSONL = `{"elbow_angle":170,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":60,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":60,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":60,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":175,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":175,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":60,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":60,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":60,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":175,"hip_angle":178,"visibility_ok":true}
{"elbow_angle":175,"hip_angle":178,"visibility_ok":true}
`

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type ingestServer struct {
	mu       sync.Mutex
	sessions []*models.SessionSummary
	seen     map[string]bool
}

func newIngestServer(t *testing.T) (*ingestServer, *httptest.Server) {
	t.Helper()
	is := &ingestServer{seen: map[string]bool{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ingest/sessions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != "key" {
			http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
			return
		}
		var batch []*models.SessionSummary
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		is.mu.Lock()
		res := IngestResult{SessionsReceived: len(batch)}
		for _, s := range batch {
			if is.seen[s.ID.String()] {
				res.SessionsDuplicated++
				continue
			}
			is.seen[s.ID.String()] = true
			is.sessions = append(is.sessions, s)
			res.SessionsInserted++
		}
		is.mu.Unlock()
		json.NewEncoder(w).Encode(res)
	}))
	t.Cleanup(ts.Close)
	return is, ts
}

func TestReplayUploadsAndSkips(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mon.csv", oneRepCSV)
	writeFile(t, root, "week2/tue.jsonl", twoRepJSONL)
	writeFile(t, root, "notes.txt", "not a log")

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	srv, ts := newIngestServer(t)
	client := NewClient(ts.URL, "key")

	stats, err := New(client, state, root, counter.DefaultConfig(), 0, false, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesTotal != 2 || stats.FilesUploaded != 2 || stats.FilesErrored != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Reps != 3 {
		t.Errorf("reps = %d, want 3", stats.Reps)
	}
	if len(srv.sessions) != 2 {
		t.Fatalf("server received %d sessions, want 2", len(srv.sessions))
	}
	for _, s := range srv.sessions {
		if s.Source != "replay" {
			t.Errorf("source = %q, want replay", s.Source)
		}
	}

	// Second run: nothing changed, everything skipped.
	stats, err = New(client, state, root, counter.DefaultConfig(), 0, false, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 2 || stats.FilesUploaded != 0 {
		t.Errorf("second run stats = %+v", stats)
	}
}

func TestReplaySummary(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "set.csv", oneRepCSV)
	end := time.Date(2026, 4, 2, 7, 30, 0, 0, time.UTC)
	if err := os.Chtimes(path, end, end); err != nil {
		t.Fatal(err)
	}

	stats, err := New(nil, nil, root, counter.DefaultConfig(), 10, true, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(stats.Sessions))
	}
	sum := stats.Sessions[0].Summary

	if sum.Frames != 8 || sum.Reps != 1 || sum.FramesHidden != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !sum.EndedAt.Equal(end) {
		t.Errorf("ended_at = %v, want %v", sum.EndedAt, end)
	}
	if got := sum.EndedAt.Sub(sum.StartedAt); got != 800*time.Millisecond {
		t.Errorf("duration = %v, want 800ms at 10 fps", got)
	}
	if len(sum.RepEvents) != 1 || sum.RepEvents[0].FrameIndex != 6 {
		t.Errorf("rep events = %+v, want one at frame 6", sum.RepEvents)
	}
	if stats.FilesUploaded != 0 {
		t.Errorf("dry run uploaded %d files", stats.FilesUploaded)
	}
}

func TestReplayStableSessionID(t *testing.T) {
	a := writeFile(t, t.TempDir(), "a.jsonl", twoRepJSONL)
	b := writeFile(t, t.TempDir(), "b.jsonl", twoRepJSONL)

	ha, _ := HashFile(a)
	hb, _ := HashFile(b)
	cfg := counter.DefaultConfig()
	if sessionID(ha, cfg) != sessionID(hb, cfg) {
		t.Error("identical logs should map to the same session ID")
	}
	if sessionID(ha, cfg) != sessionID(ha, counter.Config{}) {
		t.Error("zero thresholds should resolve to the defaults")
	}
	if sessionID(ha, cfg) == sessionID(ha+"x", cfg) {
		t.Error("different hashes should map to different session IDs")
	}
	strict := cfg
	strict.DownAngle = 60
	if sessionID(ha, cfg) == sessionID(ha, strict) {
		t.Error("different thresholds should map to different session IDs")
	}
}

// TestReplayThresholdsChangeIdentity verifies a log replayed with other
// thresholds is uploaded again as a new session rather than skipped.
func TestReplayThresholdsChangeIdentity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mon.csv", oneRepCSV)

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	srv, ts := newIngestServer(t)
	client := NewClient(ts.URL, "key")

	if _, err := New(client, state, root, counter.DefaultConfig(), 0, false, discardLog()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	strict := counter.DefaultConfig()
	strict.DownAngle = 55
	stats, err := New(client, state, root, strict, 0, false, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesUploaded != 1 || stats.FilesSkipped != 0 {
		t.Errorf("stats = %+v, want the file uploaded again", stats)
	}
	if len(srv.sessions) != 2 || srv.sessions[0].ID == srv.sessions[1].ID {
		t.Fatalf("server sessions = %d, want 2 distinct", len(srv.sessions))
	}
	// 60 degrees never gets below 55, so the stricter run counts nothing.
	if srv.sessions[0].Reps != 1 || srv.sessions[1].Reps != 0 {
		t.Errorf("reps = %d/%d, want 1/0", srv.sessions[0].Reps, srv.sessions[1].Reps)
	}

	// Same thresholds again: skipped.
	stats, err = New(client, state, root, strict, 0, false, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("third run stats = %+v, want skipped", stats)
	}
}

func TestReplayCountsBadFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.csv", "elbow_angle,hip_angle\n1,2\n")
	writeFile(t, root, "empty.jsonl", "\n\n")

	stats, err := New(nil, nil, root, counter.DefaultConfig(), 0, true, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 || stats.FilesSkipped != 1 {
		t.Errorf("stats = %+v, want 1 errored and 1 skipped", stats)
	}
}

func TestReplayRejectedKey(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mon.csv", oneRepCSV)
	_, ts := newIngestServer(t)

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	stats, err := New(NewClient(ts.URL, "wrong"), state, root, counter.DefaultConfig(), 0, false, discardLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 {
		t.Errorf("errored = %d, want 1", stats.FilesErrored)
	}
	uploaded, err := state.IsUploaded("mon.csv", int64(len(oneRepCSV)), "")
	if err != nil || uploaded {
		t.Errorf("rejected file marked uploaded: %v %v", uploaded, err)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"sessions_received":1,"sessions_inserted":1}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", "key")
	c.backoff = time.Millisecond

	res, err := c.SendSessions(context.Background(), []*models.SessionSummary{{}})
	if err != nil {
		t.Fatalf("SendSessions: %v", err)
	}
	if calls != 3 || res.SessionsInserted != 1 {
		t.Errorf("calls = %d, result = %+v", calls, res)
	}
}

// TestClientRetriesStoreOutage verifies a 500 from a server whose database is
// down is retried, while a 400 is not.
func TestClientRetriesStoreOutage(t *testing.T) {
	tests := []struct {
		status    int
		wantCalls int
	}{
		{http.StatusInternalServerError, 3},
		{http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		var calls int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"error":"storing session: connection refused"}`)
		}))

		c := NewClient(ts.URL, "key")
		c.backoff = time.Millisecond
		if _, err := c.SendSessions(context.Background(), nil); err == nil {
			t.Errorf("status %d: expected error", tt.status)
		}
		if calls != tt.wantCalls {
			t.Errorf("status %d: calls = %d, want %d", tt.status, calls, tt.wantCalls)
		}
		ts.Close()
	}
}

func TestClientGivesUp(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "key")
	c.backoff = time.Millisecond

	_, err := c.SendSessions(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err = %v", err)
	}
}
