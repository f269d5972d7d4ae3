package devserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/push"
	"github.com/nhle/taskpulse/internal/remote"
)

const (
	insertType = push.Insert
	updateType = push.Update

	writeTimeout = 5 * time.Second
)

// hub fans change records out to every open stream of a user.
type hub struct {
	mu    sync.RWMutex
	users map[string]map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{users: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *hub) register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[*websocket.Conn]struct{})
	}
	h.users[userID][conn] = struct{}{}
}

func (h *hub) unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
}

func (h *hub) count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *hub) broadcast(userID string, typ push.MessageType, n model.Notification) {
	record, err := json.Marshal(remote.ToWire(n, userID))
	if err != nil {
		return
	}
	env := push.Envelope{Type: typ, Record: record}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.users[userID]))
	for conn := range h.users[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = wsjson.Write(ctx, conn, env)
		cancel()
	}
}
