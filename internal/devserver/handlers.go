package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/remote"
)

type idsBody struct {
	IDs []string `json:"ids" binding:"required"`
}

// GET /v1/notifications?unread=1&unpopped=1
func (s *Server) listNotifications(c *gin.Context) {
	userID := currentUser(c)
	unread := c.Query("unread") == "1"
	unpopped := c.Query("unpopped") == "1"

	s.mu.Lock()
	out := make([]remote.WireNotification, 0)
	for _, n := range s.user(userID).notifications {
		if unread && n.Read {
			continue
		}
		if unpopped && n.Popped() {
			continue
		}
		out = append(out, remote.ToWire(*n, userID))
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// updateMany applies fn to the listed notifications (all of them when ids is
// nil) and broadcasts every row fn reports as changed.
func (s *Server) updateMany(userID string, ids []string, fn func(n *model.Notification) bool) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	var changed []model.Notification
	for _, n := range s.user(userID).notifications {
		if ids != nil && !want[n.ID] {
			continue
		}
		if fn(n) {
			changed = append(changed, *n)
		}
	}
	s.mu.Unlock()

	for _, n := range changed {
		s.hub.broadcast(userID, updateType, n)
	}
	return len(changed)
}

// POST /v1/notifications/popped { "ids": [...] }
func (s *Server) markPopped(c *gin.Context) {
	var body idsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.popCalls = append(s.popCalls, append([]string(nil), body.IDs...))
	s.mu.Unlock()

	now := s.now()
	n := s.updateMany(currentUser(c), body.IDs, func(n *model.Notification) bool {
		if n.Popped() {
			return false
		}
		n.MarkPopped(now)
		return true
	})
	s.logf("[devserver][popped] user=%s ids=%d changed=%d", currentUser(c), len(body.IDs), n)
	c.Status(http.StatusNoContent)
}

// POST /v1/notifications/read { "ids": [...] }
func (s *Server) markRead(c *gin.Context) {
	var body idsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := s.now()
	n := s.updateMany(currentUser(c), body.IDs, func(n *model.Notification) bool {
		if n.Read {
			return false
		}
		n.MarkRead(now)
		return true
	})
	s.logf("[devserver][read] user=%s ids=%d changed=%d", currentUser(c), len(body.IDs), n)
	c.Status(http.StatusNoContent)
}

// POST /v1/notifications/read-all
func (s *Server) markAllRead(c *gin.Context) {
	now := s.now()
	n := s.updateMany(currentUser(c), nil, func(n *model.Notification) bool {
		if n.Read {
			return false
		}
		n.MarkRead(now)
		return true
	})
	s.logf("[devserver][read-all] user=%s changed=%d", currentUser(c), n)
	c.Status(http.StatusNoContent)
}

// GET /v1/tasks
func (s *Server) listTasks(c *gin.Context) {
	s.mu.Lock()
	tasks := s.sortedTasks(currentUser(c))
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// PATCH /v1/tasks/:id { "status": "completed", "completed_at": "..." }
func (s *Server) updateTaskStatus(c *gin.Context) {
	userID := currentUser(c)
	id := c.Param("id")

	var body remote.StatusUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := model.ParseTaskStatus(string(body.Status))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	now := s.now()
	s.statusCalls = append(s.statusCalls, StatusCall{TaskID: id, Status: status, ReceivedAt: now})
	if s.failTasks[id] {
		s.mu.Unlock()
		s.logf("[devserver][status][fail] id=%s", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}
	t, ok := s.user(userID).tasks[id]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	t.ApplyStatus(status, now)
	if body.CompletedAt != nil && status == model.StatusCompleted {
		at := *body.CompletedAt
		t.CompletedAt = &at
	}
	updated := *t
	s.mu.Unlock()

	s.logf("[devserver][status][ok] id=%s new=%q", id, status)
	c.JSON(http.StatusOK, updated)
}

// GET /v1/stream?user_id=... (websocket)
func (s *Server) stream(c *gin.Context) {
	userID := currentUser(c)
	if requested := c.Query("user_id"); requested != "" && requested != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot subscribe to another user"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logf("[devserver][stream][err] accept: %v", err)
		return
	}

	s.hub.register(userID, conn)
	defer s.hub.unregister(userID, conn)
	s.logf("[devserver][stream] user=%s subscribed", userID)

	ctx := conn.CloseRead(c.Request.Context())
	<-ctx.Done()
	conn.CloseNow()
}

// POST /v1/dev/notifications { "type": "update", "title": "...", "message": "..." }
func (s *Server) createNotification(c *gin.Context) {
	var body struct {
		Type     string         `json:"type" binding:"required"`
		Title    string         `json:"title"`
		Message  string         `json:"message"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := model.ParseKind(body.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUser(c)
	n := s.Publish(userID, model.Notification{
		Kind:     kind,
		Title:    body.Title,
		Message:  body.Message,
		Metadata: body.Metadata,
	})
	c.JSON(http.StatusCreated, remote.ToWire(n, userID))
}

// POST /v1/dev/tasks { "title": "...", "deadline": "..." }
func (s *Server) createTask(c *gin.Context) {
	var t model.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusNotStarted
	}
	if _, err := model.ParseTaskStatus(string(t.Status)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUser(c)
	s.PutTask(userID, t)
	stored, _ := s.Task(userID, t.ID)
	c.JSON(http.StatusCreated, stored)
}
