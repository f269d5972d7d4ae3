// Package push subscribes to the backend's live notification stream.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"nhooyr.io/websocket"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/remote"
)

// ErrInvalidPayload is returned by Stream.Next for a frame that is not a
// valid change record. The stream itself stays usable.
var ErrInvalidPayload = errors.New("invalid push payload")

// MessageType is the kind of row change the backend announces.
type MessageType string

const (
	Insert MessageType = "INSERT"
	Update MessageType = "UPDATE"
)

// Message is one validated, normalized change record.
type Message struct {
	Type         MessageType
	Notification model.Notification
}

// Envelope is the wire form of a change record.
type Envelope struct {
	Type   MessageType     `json:"type"`
	Record json.RawMessage `json:"record"`
}

const envelopeSchema = `{
	"type": "object",
	"required": ["type", "record"],
	"properties": {
		"type":   {"enum": ["INSERT", "UPDATE"]},
		"record": {"type": "object"}
	}
}`

var envelope = func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		panic(fmt.Sprintf("parsing envelope schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.json", doc); err != nil {
		panic(fmt.Sprintf("adding envelope schema: %v", err))
	}
	return c.MustCompile("envelope.json")
}()

// Subscriber opens push streams scoped to one user.
type Subscriber struct {
	streamURL  string
	token      string
	httpClient *http.Client
}

// NewSubscriber returns a Subscriber for streamURL. A nil httpClient uses
// http.DefaultClient.
func NewSubscriber(streamURL, token string, httpClient *http.Client) *Subscriber {
	return &Subscriber{
		streamURL:  streamURL,
		token:      token,
		httpClient: httpClient,
	}
}

// StreamURL derives the websocket endpoint from the REST base URL.
func StreamURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/stream"
}

// Subscribe dials the stream for userID.
func (s *Subscriber) Subscribe(ctx context.Context, userID string) (*Stream, error) {
	u, err := url.Parse(s.streamURL)
	if err != nil {
		return nil, fmt.Errorf("parsing stream url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing push stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Stream is one open subscription.
type Stream struct {
	conn *websocket.Conn
}

// Next blocks until the next change record arrives. Errors wrapping
// ErrInvalidPayload or model.ErrUnknownKind concern a single frame; any
// other error means the connection is gone.
func (s *Stream) Next(ctx context.Context) (Message, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("reading push stream: %w", err)
	}
	return Decode(data)
}

// Close ends the subscription.
func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// Decode validates and normalizes a single frame.
func Decode(data []byte) (Message, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := envelope.Validate(doc); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	n, err := remote.DecodeNotification(env.Record)
	if errors.Is(err, model.ErrUnknownKind) {
		return Message{}, err
	}
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Message{Type: env.Type, Notification: n}, nil
}

// IsFrameError reports whether err concerns a single frame rather than the
// connection.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) || errors.Is(err, model.ErrUnknownKind)
}
