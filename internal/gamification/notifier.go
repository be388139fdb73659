// Package gamification reports task completions to the dopamine-plant
// service. Everything here is best effort: the board never depends on it.
package gamification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Progress is the plant's growth state returned after a completion.
type Progress struct {
	Phase             int    `json:"phase"`
	Variant           string `json:"variant"`
	TasksSinceAdvance int    `json:"tasks_since_advance"`
	Advanced          bool   `json:"advanced"`
	Asset             string `json:"asset,omitempty"`
}

// Notifier delivers the "task completed" side effect.
type Notifier interface {
	NotifyCompletion(ctx context.Context, userID, taskID string, points int) (*Progress, error)
}

var _ Notifier = (*Client)(nil)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type completionRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id,omitempty"`
	Points int    `json:"points"`
}

func (c *Client) NotifyCompletion(ctx context.Context, userID, taskID string, points int) (*Progress, error) {
	body, err := json.Marshal(completionRequest{UserID: userID, TaskID: taskID, Points: points})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dopamine/task-complete", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to notify completion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion notify returned status %d", resp.StatusCode)
	}

	var progress Progress
	if err := json.NewDecoder(resp.Body).Decode(&progress); err != nil {
		return nil, fmt.Errorf("failed to decode plant progress: %w", err)
	}
	return &progress, nil
}
