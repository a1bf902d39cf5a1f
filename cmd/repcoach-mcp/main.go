// Command repcoach-mcp serves the RepCoach MCP tools over stdio, reading
// data from a remote RepCoach server. Identity is whatever the server
// resolves for this machine on the tailnet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "RepCoach server URL (e.g. https://repcoach.tail1234.ts.net)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-mcp", Version)
		return
	}
	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-mcp -server <URL>\n")
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client := mcp.NewHTTPClient(*serverURL)
	defaults, err := client.CounterDefaults(context.Background())
	if err != nil {
		log.Warn("fetching counter defaults, using built-in values", "error", err)
		defaults = counter.DefaultConfig()
	}

	s := mcp.New(client, defaults, Version, log)
	if err := mcpserver.ServeStdio(s); err != nil {
		log.Error("mcp stdio server failed", "error", err)
		os.Exit(1)
	}
}
