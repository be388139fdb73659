package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/loopydev/flowboard/pkg/cerr"
)

var _ TaskGateway = (*Client)(nil)

// Client talks JSON to the task gateway over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) List(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &t); err != nil {
		return Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

func (c *Client) Update(ctx context.Context, id string, patch Patch) (Task, error) {
	var t Task
	path := "/tasks/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, patch, &t); err != nil {
		return Task{}, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return t, nil
}

// Archive sets the soft-archive flag. The backend keeps archived entries
// around for its archive browser, so this is a patch rather than a delete.
func (c *Client) Archive(ctx context.Context, id string) error {
	archived := true
	if _, err := c.Update(ctx, id, Patch{IsArchived: &archived}); err != nil {
		return fmt.Errorf("failed to archive task %s: %w", id, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return cerr.NewError(cerr.Internal, "request could not be encoded", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return cerr.NewError(cerr.Internal, "request could not be built", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cerr.NewError(cerr.Unavailable, "could not reach the task service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := cerr.NewCodeFromHTTPStatus(resp.StatusCode)
		msg := "the task service rejected the request"
		var eb errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&eb); decodeErr == nil && eb.Error != "" {
			msg = eb.Error
		}
		return cerr.NewError(code, msg, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cerr.NewError(cerr.Internal, "the task service returned an unreadable response", err)
	}
	return nil
}
