package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meltforce/repcoach/internal/models"
)

// IngestResult mirrors the server's ingest response.
type IngestResult struct {
	SessionsReceived   int `json:"sessions_received"`
	SessionsInserted   int `json:"sessions_inserted"`
	SessionsDuplicated int `json:"sessions_duplicated"`
	RepsInserted       int `json:"reps_inserted"`
}

// Client sends finished sessions to the RepCoach server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the RepCoach server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// SendSessions POSTs summaries to the ingest endpoint. Server errors and
// transport failures are retried up to 3 times with exponential backoff;
// a 4xx response is returned at once.
func (c *Client) SendSessions(ctx context.Context, sessions []*models.SessionSummary) (*IngestResult, error) {
	data, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("marshaling sessions: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.serverURL+"/api/v1/ingest/sessions", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var result IngestResult
			if err := json.Unmarshal(body, &result); err != nil {
				return nil, fmt.Errorf("decoding ingest result: %w", err)
			}
			return &result, nil
		case resp.StatusCode < 500:
			return nil, fmt.Errorf("ingest rejected (status %d): %s", resp.StatusCode, body)
		}
		lastErr = fmt.Errorf("ingest failed (status %d): %s", resp.StatusCode, body)
	}

	return nil, fmt.Errorf("after 3 attempts: %w", lastErr)
}
