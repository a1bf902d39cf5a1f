package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/repcoach/internal/counter"
	"github.com/meltforce/repcoach/internal/models"
	"github.com/meltforce/repcoach/internal/storage"
)

// HTTPClient implements DataSource by calling the RepCoach REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// bucketToAgg maps MCP bucket values to REST API agg parameter values.
func bucketToAgg(bucket string) string {
	switch bucket {
	case "1 week":
		return "weekly"
	case "1 month":
		return "monthly"
	default:
		return "daily"
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	default:
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

// QuerySessions lists finished sessions. The server resolves the user from
// the caller's identity, so userID is ignored.
func (c *HTTPClient) QuerySessions(ctx context.Context, start, end time.Time, _ int) ([]models.PushupSessionRow, error) {
	body, err := c.get(ctx, "/api/v1/history", timeParams(start, end))
	if err != nil {
		return nil, err
	}

	var sessions []models.PushupSessionRow
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("httpclient: decode sessions: %w", err)
	}
	return sessions, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, id uuid.UUID, _ int) (*storage.SessionDetail, error) {
	body, err := c.get(ctx, "/api/v1/history/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var detail storage.SessionDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return &detail, nil
}

func (c *HTTPClient) GetRepSummary(ctx context.Context, start, end time.Time, bucket string, _ int) ([]storage.RepPeriod, error) {
	params := timeParams(start, end)
	params.Set("agg", bucketToAgg(bucket))

	body, err := c.get(ctx, "/api/v1/summary", params)
	if err != nil {
		return nil, err
	}

	var periods []storage.RepPeriod
	if err := json.Unmarshal(body, &periods); err != nil {
		return nil, fmt.Errorf("httpclient: decode rep summary: %w", err)
	}
	return periods, nil
}

// CounterDefaults fetches the thresholds the server uses for new sessions.
func (c *HTTPClient) CounterDefaults(ctx context.Context) (counter.Config, error) {
	body, err := c.get(ctx, "/api/v1/counter/defaults", nil)
	if err != nil {
		return counter.Config{}, err
	}

	var cfg counter.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return counter.Config{}, fmt.Errorf("httpclient: decode counter defaults: %w", err)
	}
	return cfg.WithDefaults(), nil
}
