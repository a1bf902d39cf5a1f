package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/meltforce/repcoach/internal/counter"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
// defaults are the thresholds reported by get_counter_defaults.
func New(ds DataSource, defaults counter.Config, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepCoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepCoach push-up tracker. Query finished push-up sessions, per-rep timing and rep totals per period. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, defaults: defaults, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolGetPushupSessions, Handler: h.getPushupSessions},
		server.ServerTool{Tool: toolGetPushupSession, Handler: h.getPushupSession},
		server.ServerTool{Tool: toolGetRepSummary, Handler: h.getRepSummary},
		server.ServerTool{Tool: toolGetCounterDefaults, Handler: h.getCounterDefaults},
	)

	s.AddResources(
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
		server.ServerResource{Resource: resCoachingTips, Handler: h.coachingTips},
	)

	return s
}

type handlers struct {
	ds       DataSource
	defaults counter.Config
	log      *slog.Logger
}

var resRecentSessions = mcp.NewResource(
	"repcoach://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("Push-up sessions from the last 14 days"),
	mcp.WithMIMEType("application/json"),
)

var resCoachingTips = mcp.NewResource(
	"repcoach://coaching_tips",
	"Coaching Tips",
	mcp.WithResourceDescription("Every tip the counter can give, in priority order"),
	mcp.WithMIMEType("application/json"),
)
