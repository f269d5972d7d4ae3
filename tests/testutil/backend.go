package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskpulse/internal/devserver"
)

// TestUserID is the subject of tokens issued by NewBackend.
const TestUserID = "user-1"

// Backend bundles an in-memory API server with a token for TestUserID.
type Backend struct {
	*devserver.Server
	HTTP  *httptest.Server
	Token string
}

// NewBackend starts a devserver behind httptest. It is shut down when the
// test completes.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := devserver.New([]byte("test-secret"), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := srv.IssueToken(TestUserID, time.Hour)
	if err != nil {
		t.Fatalf("issuing test token: %v", err)
	}

	return &Backend{Server: srv, HTTP: ts, Token: token}
}

// WaitForSubscribers blocks until userID has n open push streams.
func (b *Backend) WaitForSubscribers(t *testing.T, userID string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for b.Subscribers(userID) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers of %s", n, userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
