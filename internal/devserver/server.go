// Package devserver is an in-memory implementation of the notification and
// task API, including the push stream. It backs `taskpulse devserver` and the
// test suites.
package devserver

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nhle/taskpulse/internal/model"
)

// Logger is the minimal logging surface the server needs.
type Logger interface {
	Printf(format string, args ...any)
}

// StatusCall records one task status mutation received by the server.
type StatusCall struct {
	TaskID     string
	Status     model.TaskStatus
	ReceivedAt time.Time
}

type userData struct {
	notifications []*model.Notification
	tasks         map[string]*model.Task
}

// Server holds every user's notifications and tasks in memory.
type Server struct {
	mu          sync.Mutex
	secret      []byte
	users       map[string]*userData
	statusCalls []StatusCall
	popCalls    [][]string
	failTasks   map[string]bool
	hub         *hub
	engine      *gin.Engine
	logger      Logger
	now         func() time.Time
}

// New creates a Server that signs and verifies tokens with secret.
func New(secret []byte, logger Logger) *Server {
	s := &Server{
		secret:    secret,
		users:     make(map[string]*userData),
		failTasks: make(map[string]bool),
		hub:       newHub(),
		logger:    logger,
		now:       time.Now,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(s.authMiddleware())
	{
		v1.GET("/notifications", s.listNotifications)
		v1.POST("/notifications/popped", s.markPopped)
		v1.POST("/notifications/read", s.markRead)
		v1.POST("/notifications/read-all", s.markAllRead)

		v1.GET("/tasks", s.listTasks)
		v1.PATCH("/tasks/:id", s.updateTaskStatus)

		v1.GET("/stream", s.stream)

		v1.POST("/dev/notifications", s.createNotification)
		v1.POST("/dev/tasks", s.createTask)
	}
	return r
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// user returns the data of userID, creating it. Callers hold s.mu.
func (s *Server) user(userID string) *userData {
	u, ok := s.users[userID]
	if !ok {
		u = &userData{tasks: make(map[string]*model.Task)}
		s.users[userID] = u
	}
	return u
}

// Publish stores n for userID and announces it on the push stream. An empty
// ID is replaced by a fresh uuid.
func (s *Server) Publish(userID string, n model.Notification) model.Notification {
	s.mu.Lock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	stored := n
	u := s.user(userID)
	u.notifications = append(u.notifications, &stored)
	snapshot := stored
	s.mu.Unlock()

	s.hub.broadcast(userID, insertType, snapshot)
	return snapshot
}

// Touch applies fn to a stored notification and announces the new row as an
// UPDATE. It reports whether the notification exists.
func (s *Server) Touch(userID, id string, fn func(n *model.Notification)) bool {
	s.mu.Lock()
	var updated *model.Notification
	for _, n := range s.user(userID).notifications {
		if n.ID == id {
			fn(n)
			updated = n
			break
		}
	}
	var snapshot model.Notification
	if updated != nil {
		snapshot = *updated
	}
	s.mu.Unlock()

	if updated == nil {
		return false
	}
	s.hub.broadcast(userID, updateType, snapshot)
	return true
}

// Notification returns a copy of a stored notification.
func (s *Server) Notification(userID, id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.user(userID).notifications {
		if n.ID == id {
			return *n, true
		}
	}
	return model.Notification{}, false
}

// PutTask inserts or replaces a task of userID.
func (s *Server) PutTask(userID string, t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now()
	}
	stored := t
	s.user(userID).tasks[t.ID] = &stored
}

// Task returns a copy of a stored task.
func (s *Server) Task(userID, id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.user(userID).tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *t, true
}

// FailTask makes every status update of taskID answer 500.
func (s *Server) FailTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTasks[taskID] = true
}

// StatusCalls returns the status mutations received so far, in arrival
// order.
func (s *Server) StatusCalls() []StatusCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StatusCall, len(s.statusCalls))
	copy(out, s.statusCalls)
	return out
}

// PopCalls returns the id batches received by the popped endpoint.
func (s *Server) PopCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, len(s.popCalls))
	copy(out, s.popCalls)
	return out
}

// Subscribers returns how many push streams userID has open.
func (s *Server) Subscribers(userID string) int {
	return s.hub.count(userID)
}

func (s *Server) sortedTasks(userID string) []model.Task {
	u := s.user(userID)
	tasks := make([]model.Task, 0, len(u.tasks))
	for _, t := range u.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}
