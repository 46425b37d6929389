package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running parishd over its HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the given bind address. The token is sent as
// a bearer credential when non-empty.
func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListEvents returns summaries for all events.
func (c *Client) ListEvents(ctx context.Context) ([]EventSummary, error) {
	var resp EventListResponse
	if err := c.do(ctx, http.MethodGet, "/api/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// CreateEvent creates a new event.
func (c *Client) CreateEvent(ctx context.Context, req CreateEventRequest) (*EventView, error) {
	var view EventView
	if err := c.do(ctx, http.MethodPost, "/api/events", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DescribeEvent fetches an event with its state and progress.
func (c *Client) DescribeEvent(ctx context.Context, eventID string) (*EventDetail, error) {
	var detail EventDetail
	if err := c.do(ctx, http.MethodGet, c.eventPath(eventID, ""), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// AttachVideo records a source video on an event.
func (c *Client) AttachVideo(ctx context.Context, eventID, path string) (*EventView, error) {
	var view EventView
	if err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "attach"), AttachVideoRequest{Path: path}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SetModule toggles a module on an event document.
func (c *Client) SetModule(ctx context.Context, eventID, module string, enabled bool) (*EventView, error) {
	var view EventView
	if err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "modules"), SetModuleRequest{Module: module, Enabled: enabled}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Run starts a background pipeline run for an event.
func (c *Client) Run(ctx context.Context, eventID string, force bool) (*RunAccepted, error) {
	path := c.eventPath(eventID, "workflow/run")
	if force {
		path += "?force=1"
	}
	var accepted RunAccepted
	if err := c.do(ctx, http.MethodPost, path, nil, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// RunModule starts a background single-module run for an event.
func (c *Client) RunModule(ctx context.Context, eventID, module string, force bool) (*RunAccepted, error) {
	path := c.eventPath(eventID, "modules/"+url.PathEscape(module)+"/run")
	if force {
		path += "?force=1"
	}
	var accepted RunAccepted
	if err := c.do(ctx, http.MethodPost, path, nil, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Progress fetches the live progress for an event.
func (c *Client) Progress(ctx context.Context, eventID string) (*ProgressView, error) {
	var view ProgressView
	if err := c.do(ctx, http.MethodGet, c.eventPath(eventID, "progress"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// State fetches the persisted run state for an event.
func (c *Client) State(ctx context.Context, eventID string) (*RunStateView, error) {
	var view RunStateView
	if err := c.do(ctx, http.MethodGet, c.eventPath(eventID, "state"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) eventPath(eventID, suffix string) string {
	path := "/api/events/" + url.PathEscape(eventID)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
