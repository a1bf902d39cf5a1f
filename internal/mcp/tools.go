package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/meltforce/repcoach/internal/storage"
)

// defaultTimeRange returns start/end, defaulting to the `days` days before end.
func defaultTimeRange(startStr, endStr string, days int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -days)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Tool definitions ---

var toolGetPushupSessions = mcp.NewTool("get_pushup_sessions",
	mcp.WithDescription("List finished push-up sessions with rep count, frame counts, tip tallies and the thresholds used."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetPushupSession = mcp.NewTool("get_pushup_session",
	mcp.WithDescription("Get one push-up session with the frame index and time of every completed rep."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session ID (UUID)")),
)

var toolGetRepSummary = mcp.NewTool("get_rep_summary",
	mcp.WithDescription("Push-up totals per period: sessions, total and max reps, active time and share of misaligned frames."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 90 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Aggregation period. Defaults to '1 week'."), mcp.Enum("1 day", "1 week", "1 month")),
)

var toolGetCounterDefaults = mcp.NewTool("get_counter_defaults",
	mcp.WithDescription("Return the elbow/hip thresholds, smoothing factor and range window the counter uses by default."),
)

// --- Tool handlers ---

func (h *handlers) getPushupSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 7)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	sessions, err := h.ds.QuerySessions(ctx, start, end, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_pushup_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getPushupSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("invalid session id: " + err.Error()), nil
	}

	detail, err := h.ds.GetSession(ctx, id, UserIDFromContext(ctx))
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("session not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_pushup_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(detail)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRepSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 90)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	bucket := req.GetString("bucket", "1 week")

	periods, err := h.ds.GetRepSummary(ctx, start, end, bucket, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_rep_summary", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(periods)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getCounterDefaults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(h.defaults)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
