package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nhle/taskpulse/internal/model"
)

// NotificationSchema describes a single notification row as the backend
// serializes it, both in REST responses and in push records.
const NotificationSchema = `{
	"type": "object",
	"required": ["id", "type", "created_at"],
	"properties": {
		"id":         {"type": "string", "minLength": 1},
		"user_id":    {"type": "string"},
		"type":       {"type": "string", "minLength": 1},
		"title":      {"type": "string"},
		"message":    {"type": "string"},
		"metadata":   {"type": ["object", "null"]},
		"created_at": {"type": "string", "minLength": 1},
		"is_read":    {"type": "boolean"},
		"read_at":    {"type": ["string", "null"]},
		"popped_at":  {"type": ["string", "null"]}
	}
}`

const notificationListSchema = `{
	"type": "object",
	"required": ["notifications"],
	"properties": {
		"notifications": {
			"type": "array",
			"items": {"$ref": "notification.json"}
		}
	}
}`

const taskListSchema = `{
	"type": "object",
	"required": ["tasks"],
	"properties": {
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "title", "status"],
				"properties": {
					"id":           {"type": "string", "minLength": 1},
					"title":        {"type": "string"},
					"status":       {"enum": ["not_started", "in_progress", "completed"]},
					"start_at":     {"type": ["string", "null"]},
					"deadline":     {"type": ["string", "null"]},
					"completed_at": {"type": ["string", "null"]},
					"updated_at":   {"type": "string"}
				}
			}
		}
	}
}`

var (
	notificationSchema = mustCompile(NotificationSchema, "notification.json")
	pendingSchema      = mustCompile(notificationListSchema, "notification-list.json")
	tasksSchema        = mustCompile(taskListSchema, "task-list.json")
)

// mustCompile compiles src registered under loc. notification.json is always
// registered so other schemas can reference it.
func mustCompile(src, loc string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	for name, doc := range map[string]string{
		"notification.json": NotificationSchema,
		loc:                 src,
	} {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
		if err != nil {
			panic(fmt.Sprintf("parsing schema %s: %v", name, err))
		}
		if err := c.AddResource(name, parsed); err != nil {
			panic(fmt.Sprintf("adding schema %s: %v", name, err))
		}
	}
	return c.MustCompile(loc)
}

// validate checks raw against sch, wrapping failures in ErrMalformed.
func validate(sch *jsonschema.Schema, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// WireNotification is the backend's JSON representation of a notification.
type WireNotification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *string        `json:"read_at"`
	PoppedAt  *string        `json:"popped_at"`
}

// Normalize converts the wire row into the closed model type. Unknown kinds
// surface as model.ErrUnknownKind; bad timestamps as ErrMalformed.
func (w WireNotification) Normalize() (model.Notification, error) {
	kind, err := model.ParseKind(w.Type)
	if err != nil {
		return model.Notification{}, fmt.Errorf("notification %s: %w", w.ID, err)
	}

	created, err := parseTime(w.CreatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("notification %s created_at: %w", w.ID, err)
	}
	if created == nil {
		return model.Notification{}, fmt.Errorf("notification %s: %w: missing created_at", w.ID, ErrMalformed)
	}

	n := model.Notification{
		ID:        w.ID,
		Kind:      kind,
		Title:     w.Title,
		Message:   w.Message,
		Metadata:  w.Metadata,
		CreatedAt: *created,
		Read:      w.IsRead,
	}
	if n.ReadAt, err = parseTime(deref(w.ReadAt)); err != nil {
		return model.Notification{}, fmt.Errorf("notification %s read_at: %w", w.ID, err)
	}
	if n.PoppedAt, err = parseTime(deref(w.PoppedAt)); err != nil {
		return model.Notification{}, fmt.Errorf("notification %s popped_at: %w", w.ID, err)
	}
	if n.ReadAt != nil {
		n.Read = true
	}
	return n, nil
}

// DecodeNotification validates a single notification document and
// normalizes it.
func DecodeNotification(raw []byte) (model.Notification, error) {
	if err := validate(notificationSchema, raw); err != nil {
		return model.Notification{}, err
	}
	var w WireNotification
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.Normalize()
}

// ToWire converts n back into its wire form.
func ToWire(n model.Notification, userID string) WireNotification {
	w := WireNotification{
		ID:        n.ID,
		UserID:    userID,
		Type:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsRead:    n.Read,
	}
	if n.ReadAt != nil {
		s := n.ReadAt.UTC().Format(time.RFC3339Nano)
		w.ReadAt = &s
	}
	if n.PoppedAt != nil {
		s := n.PoppedAt.UTC().Format(time.RFC3339Nano)
		w.PoppedAt = &s
	}
	return w
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
