// Package remote pushes finished run reports to a central nbcheck server.
// Nothing in this package runs unless the user passed --report-to or set
// remote.url in config; local-only usage never touches the network.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/models"
)

// Client is a minimal HTTP client for the nbcheck server API. It is
// intentionally thin — only report push and a health probe are implemented.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a Client configured from cfg. Returns nil when no remote URL is
// configured; callers treat a nil client as "reporting disabled".
func New(cfg config.RemoteConfig) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	return NewWithTarget(cfg.URL, cfg.Token)
}

// NewWithTarget returns a Client pointing at baseURL. Used by the --report-to
// flag, which overrides any configured remote.
func NewWithTarget(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// BaseURL reports the server this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// ImportResponse is returned by POST /api/runs/import.
type ImportResponse struct {
	ID int64 `json:"id"`
}

// PushRun submits a finished run (run row, notebook results, findings) to the
// server's import endpoint and returns the run id assigned there.
func (c *Client) PushRun(ctx context.Context, report *models.RunReport) (int64, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("encoding run report: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/runs/import", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	var out ImportResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	return out.ID, nil
}

// Health probes GET /api/health. Used by `nbcheck doctor`.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	return err
}

// do executes an authenticated request and returns the response body.
// Non-2xx responses are converted to descriptive errors.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.baseURL+path, err)
	}
	defer res.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		// Try to extract a human-readable error from the response body.
		var apiErr struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(b, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server error (%d): %s", res.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", res.StatusCode)
	}

	return b, nil
}
