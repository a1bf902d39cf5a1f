// Package replay runs recorded frame logs through the rep counter and
// uploads the resulting sessions to a RepCoach server.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/framelog"
	"github.com/meltforce/repcoach/internal/models"
	"github.com/meltforce/repcoach/internal/session"
)

// DefaultFPS is the frame rate assumed for logs without timing information.
const DefaultFPS = 30

// Stats tracks replay progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	Frames int
	Reps   int

	// Sessions holds the summary of every file that was replayed.
	Sessions []FileSession
}

// FileSession pairs a frame log with the session computed from it.
type FileSession struct {
	Path    string
	Summary *models.SessionSummary
}

// Replayer walks a directory of frame logs and replays each one.
type Replayer struct {
	client *Client
	state  *StateDB
	root   string
	cfg    counter.Config
	fps    float64
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a Replayer. client and state may be nil in dry-run mode.
func New(client *Client, state *StateDB, root string, cfg counter.Config, fps float64, dryRun bool, log *slog.Logger) *Replayer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Replayer{
		client: client,
		state:  state,
		root:   root,
		cfg:    cfg.WithDefaults(),
		fps:    fps,
		dryRun: dryRun,
		log:    log,
	}
}

// Run replays every *.csv, *.jsonl and *.ndjson file under the root
// directory. Per-file failures are logged and counted; Run only fails if the
// directory cannot be walked or the context is cancelled.
func (r *Replayer) Run(ctx context.Context) (*Stats, error) {
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, err := framelog.FormatOf(path); err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.stats.FilesTotal++
		if err := r.replayFile(ctx, path); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.log.Warn("replay failed", "file", path, "error", err)
			r.stats.FilesErrored++
		}
		return nil
	})
	if err != nil {
		return &r.stats, fmt.Errorf("walking %s: %w", r.root, err)
	}
	return &r.stats, nil
}

func (r *Replayer) replayFile(ctx context.Context, path string) error {
	relPath, err := filepath.Rel(r.root, path)
	if err != nil {
		relPath = path
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	// The same log replayed with other thresholds is a different session.
	key := hash + "@" + configKey(r.cfg)

	if r.state != nil {
		uploaded, err := r.state.IsUploaded(relPath, info.Size(), key)
		if err != nil {
			return fmt.Errorf("state check: %w", err)
		}
		if uploaded {
			r.stats.FilesSkipped++
			return nil
		}
	}

	frames, err := framelog.ParseFile(path)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		r.log.Info("empty frame log", "file", relPath)
		r.stats.FilesSkipped++
		return nil
	}

	summary := r.replay(sessionID(hash, r.cfg), frames, info.ModTime())
	r.stats.Frames += summary.Frames
	r.stats.Reps += summary.Reps
	r.stats.Sessions = append(r.stats.Sessions, FileSession{Path: relPath, Summary: summary})

	if r.dryRun {
		r.log.Info("dry-run: would send",
			"file", relPath,
			"reps", summary.Reps,
			"frames", summary.Frames,
			"hidden", summary.FramesHidden,
			"misaligned", summary.FramesMisaligned,
		)
		return nil
	}

	result, err := r.client.SendSessions(ctx, []*models.SessionSummary{summary})
	if err != nil {
		return err
	}
	if r.state != nil {
		if err := r.state.MarkUploaded(relPath, info.Size(), key, summary.ID, summary.Reps); err != nil {
			r.log.Warn("failed to mark uploaded", "file", relPath, "error", err)
		}
	}
	r.stats.FilesUploaded++
	r.log.Info("uploaded session",
		"file", relPath,
		"session", summary.ID,
		"reps", summary.Reps,
		"duplicate", result.SessionsDuplicated > 0,
	)
	return nil
}

// replay feeds frames through a fresh session. The log is assumed to end at
// its modification time, one frame every 1/fps seconds.
func (r *Replayer) replay(id uuid.UUID, frames []*models.Frame, end time.Time) *models.SessionSummary {
	step := time.Duration(float64(time.Second) / r.fps)
	t := end.Add(-step * time.Duration(len(frames)))
	clock := func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}

	s := session.NewWithClock(id, 0, "replay", r.cfg, clock)
	// A fresh session is never closed.
	_, _ = s.FeedAll(frames)
	return s.Summary()
}

// sessionID derives a stable session ID from the file content and the
// thresholds, so the server deduplicates a log replayed from two machines
// but keeps a re-count under different thresholds as its own session.
func sessionID(hash string, cfg counter.Config) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("repcoach:framelog:"+hash+":"+configKey(cfg)))
}

// configKey renders the thresholds that change a replay's outcome.
func configKey(cfg counter.Config) string {
	cfg = cfg.WithDefaults()
	return fmt.Sprintf("down=%g,up=%g,hip=%g,alpha=%g,window=%d,range=%g",
		cfg.DownAngle, cfg.UpAngle, cfg.HipTolerance, cfg.SmoothingAlpha, cfg.WindowSize, cfg.MinRange)
}
