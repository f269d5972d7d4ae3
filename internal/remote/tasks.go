package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nhle/taskpulse/internal/model"
)

// FetchTasks returns the caller's current task snapshot.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/tasks", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching tasks: %w", err)
	}
	if err := validate(tasksSchema, raw); err != nil {
		return nil, fmt.Errorf("fetching tasks: %w", err)
	}

	var resp struct {
		Tasks []model.Task `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("fetching tasks: %w: %v", ErrMalformed, err)
	}
	return resp.Tasks, nil
}

// StatusUpdate is the body of a task status mutation.
type StatusUpdate struct {
	Status      model.TaskStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at"`
}

// UpdateTaskStatus persists a status transition for one task.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID string, update StatusUpdate) error {
	path := "/v1/tasks/" + url.PathEscape(taskID)
	if err := c.do(ctx, http.MethodPatch, path, update, nil); err != nil {
		return fmt.Errorf("updating task %s to %s: %w", taskID, update.Status, err)
	}
	return nil
}
