// Package client provides a Go SDK for the plandash HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/plandash/plandash/pkg/models"
)

// Client calls the plandash HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3274"
	APIKey     string       // optional; set for X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3274").
// APIKey is optional; when set, requests carry the X-API-Key header.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var out models.Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return &out, err
}

// State returns the derived plan snapshot.
func (c *Client) State(ctx context.Context) (*models.State, error) {
	var out models.State
	err := c.doJSON(ctx, http.MethodGet, "/state", nil, &out)
	return &out, err
}

// OverrideStatus marks a task DONE or BLOCKED from outside the agent.
func (c *Client) OverrideStatus(ctx context.Context, taskID, status, reason string) error {
	body := map[string]string{"taskId": taskID, "status": status, "reason": reason}
	return c.doJSON(ctx, http.MethodPost, "/state/override", body, nil)
}

// Sessions lists live sessions. days > 0 sets the recency window; 0 omits
// the parameter and the server applies its 7-day default. model "" means no
// model filter.
func (c *Client) Sessions(ctx context.Context, days int, model string) (*models.SessionList, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	if model != "" {
		q.Set("model", model)
	}
	path := "/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out models.SessionList
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

// Session returns one session by id.
func (c *Client) Session(ctx context.Context, id string) (*models.Session, error) {
	var out models.Session
	err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// ResumeCommand returns the shell command that resumes the given session.
func (c *Client) ResumeCommand(ctx context.Context, id string) (string, error) {
	var out struct {
		Command string `json:"command"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/resume-cmd", nil, &out)
	return out.Command, err
}

// Dismiss hides one task from session listings.
func (c *Client) Dismiss(ctx context.Context, sessionID, taskID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/tasks/" + url.PathEscape(taskID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// PostHook sends one lifecycle signal and returns the ingestion ack.
func (c *Client) PostHook(ctx context.Context, payload map[string]any) (*models.HookAck, error) {
	var out models.HookAck
	err := c.doJSON(ctx, http.MethodPost, "/hook", payload, &out)
	return &out, err
}

// HookEvents returns the buffered hook events, newest first.
func (c *Client) HookEvents(ctx context.Context) ([]models.HookEvent, error) {
	var out struct {
		Events []models.HookEvent `json:"events"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/hook/events", nil, &out)
	return out.Events, err
}
