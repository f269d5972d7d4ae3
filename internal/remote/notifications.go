package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/taskpulse/internal/model"
)

type idsRequest struct {
	IDs []string `json:"ids"`
}

// FetchPending returns the caller's unread notifications that no session has
// popped yet. Rows with an unknown kind are dropped and logged.
func (c *Client) FetchPending(ctx context.Context) ([]model.Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/notifications?unread=1&unpopped=1", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching pending notifications: %w", err)
	}
	if err := validate(pendingSchema, raw); err != nil {
		return nil, fmt.Errorf("fetching pending notifications: %w", err)
	}

	var resp struct {
		Notifications []WireNotification `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("fetching pending notifications: %w: %v", ErrMalformed, err)
	}

	out := make([]model.Notification, 0, len(resp.Notifications))
	for _, w := range resp.Notifications {
		n, err := w.Normalize()
		if errors.Is(err, model.ErrUnknownKind) {
			c.logf("skipping notification: %v", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching pending notifications: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkPopped records that the given notifications were displayed.
func (c *Client) MarkPopped(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/popped", idsRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("marking %d notifications popped: %w", len(ids), err)
	}
	return nil
}

// MarkRead marks the given notifications read.
func (c *Client) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/read", idsRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("marking %d notifications read: %w", len(ids), err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the caller read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}
