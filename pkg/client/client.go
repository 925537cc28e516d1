// Package client talks to a running appvisor daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/appvisor/internal/registry"
	"github.com/loykin/appvisor/internal/supervisor"
)

// Config holds client configuration.
type Config struct {
	BaseURL string        // e.g. http://127.0.0.1:8900/api
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the configuration matching the daemon defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8900/api",
		Timeout: 30 * time.Second,
	}
}

// Client is an HTTP client for the appvisor daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable reports whether the daemon answers on the configured URL.
func (c *Client) IsReachable(ctx context.Context) bool {
	var out []supervisor.Status
	err := c.do(ctx, http.MethodGet, "/apps", nil, &out)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// Register creates a new application definition.
func (c *Client) Register(ctx context.Context, def registry.Definition) (registry.Definition, error) {
	var out registry.Definition
	err := c.do(ctx, http.MethodPost, "/apps", def, &out)
	return out, err
}

// Get fetches one application definition.
func (c *Client) Get(ctx context.Context, id int64) (registry.Definition, error) {
	var out registry.Definition
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/apps/%d", id), nil, &out)
	return out, err
}

// Update replaces the definition stored under id. The daemon rejects the
// update while the application is active.
func (c *Client) Update(ctx context.Context, id int64, def registry.Definition) (registry.Definition, error) {
	var out registry.Definition
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/apps/%d", id), def, &out)
	return out, err
}

// Unregister deletes the definition stored under id.
func (c *Client) Unregister(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/apps/%d", id), nil, nil)
}

// ImportYAML asks the daemon to upsert definitions from an apps.yaml
// file readable on the daemon's host.
func (c *Client) ImportYAML(ctx context.Context, path string) ([]string, error) {
	var out struct {
		Imported []string `json:"imported"`
	}
	err := c.do(ctx, http.MethodPost, "/apps/import", map[string]string{"path": path}, &out)
	return out.Imported, err
}

// Start starts the application and returns its status plus a startup log
// tail.
func (c *Client) Start(ctx context.Context, id int64) (supervisor.StartResult, error) {
	var out supervisor.StartResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/apps/%d/start", id), nil, &out)
	return out, err
}

// Stop stops the application.
func (c *Client) Stop(ctx context.Context, id int64) (supervisor.Status, error) {
	var out supervisor.Status
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/apps/%d/stop", id), nil, &out)
	return out, err
}

// Restart restarts the application.
func (c *Client) Restart(ctx context.Context, id int64) (supervisor.StartResult, error) {
	var out supervisor.StartResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/apps/%d/restart", id), nil, &out)
	return out, err
}

// Status fetches the derived status of one application.
func (c *Client) Status(ctx context.Context, id int64) (supervisor.Status, error) {
	var out supervisor.Status
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/apps/%d/status", id), nil, &out)
	return out, err
}

// Logs fetches a snapshot of the application's captured output.
func (c *Client) Logs(ctx context.Context, id int64) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/apps/%d/logs", id), nil, &out)
	return out.Lines, err
}

// List fetches every definition with its derived state.
func (c *Client) List(ctx context.Context) ([]supervisor.Status, error) {
	var out []supervisor.Status
	err := c.do(ctx, http.MethodGet, "/apps", nil, &out)
	return out, err
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx daemon response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: er.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
