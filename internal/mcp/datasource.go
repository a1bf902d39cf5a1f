package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/models"
	"github.com/meltforce/repcoach/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.PushupSessionRow, error)
	GetSession(ctx context.Context, id uuid.UUID, userID int) (*storage.SessionDetail, error)
	GetRepSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.RepPeriod, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
