package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/replay"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "RepCoach server URL (e.g. https://repcoach.tail1234.ts.net)")
	logPath := flag.String("path", "", "directory of recorded frame logs (*.csv, *.jsonl)")
	apiKey := flag.String("api-key", os.Getenv("REPCOACH_AUTH_API_KEY"), "ingest API key (default $REPCOACH_AUTH_API_KEY)")
	dryRun := flag.Bool("dry-run", false, "replay and print results but don't send to server")
	fps := flag.Float64("fps", replay.DefaultFPS, "frame rate the logs were recorded at")
	downAngle := flag.Float64("down-angle", counter.DefaultDownAngle, "elbow angle below which a rep reaches depth")
	upAngle := flag.Float64("up-angle", counter.DefaultUpAngle, "elbow angle above which a rep locks out")
	hipTolerance := flag.Float64("hip-tolerance", counter.DefaultHipTolerance, "allowed hip deviation from straight, in degrees")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *logPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-replay -server <URL> -path <log dir> [-api-key KEY] [-dry-run]\n\n")
		fmt.Fprintf(os.Stderr, "A log replayed with different thresholds is uploaded as a new session.\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if !*dryRun && (*serverURL == "" || *apiKey == "") {
		fmt.Fprintf(os.Stderr, "Error: -server and -api-key are required (or use -dry-run)\n")
		os.Exit(1)
	}

	cfg := counter.Config{
		DownAngle:    *downAngle,
		UpAngle:      *upAngle,
		HipTolerance: *hipTolerance,
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid thresholds", "error", err)
		os.Exit(1)
	}

	info, err := os.Stat(*logPath)
	if err != nil || !info.IsDir() {
		log.Error("log directory not found", "path", *logPath)
		os.Exit(1)
	}

	var client *replay.Client
	var state *replay.StateDB
	if *dryRun {
		log.Info("DRY RUN mode: logs are replayed but not sent")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		state, err = replay.OpenStateDB(filepath.Join(homeDir, ".repcoach-replay"))
		if err != nil {
			log.Error("failed to open state database", "error", err)
			os.Exit(1)
		}
		defer state.Close()
		client = replay.NewClient(*serverURL, *apiKey)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := replay.New(client, state, *logPath, cfg, *fps, *dryRun, log).Run(ctx)
	printStats(stats)
	if err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}
	log.Info("replay complete")
}

func printStats(stats *replay.Stats) {
	fmt.Println()
	fmt.Println("=== Replay Summary ===")
	for _, s := range stats.Sessions {
		fmt.Printf("  %-32s %4d reps  %6d frames  (%d hidden, %d misaligned)\n",
			s.Path, s.Summary.Reps, s.Summary.Frames, s.Summary.FramesHidden, s.Summary.FramesMisaligned)
	}
	fmt.Println()
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files uploaded:   %d\n", stats.FilesUploaded)
	fmt.Printf("  Files skipped:    %d (already uploaded or empty)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Printf("  Frames:           %d\n", stats.Frames)
	fmt.Printf("  Reps:             %d\n", stats.Reps)
	fmt.Println()
}
