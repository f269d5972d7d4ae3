package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/devserver"
	"github.com/nhle/taskpulse/internal/model"
)

// DevSecretEnv overrides the signing secret of the development server.
const DevSecretEnv = "TASKPULSE_DEV_SECRET"

type devserverOptions struct {
	addr     string
	userID   string
	tokenTTL time.Duration
	seed     bool
	every    time.Duration
}

func addDevserver(topLevel *cobra.Command) {
	opts := devserverOptions{}

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory notification and task backend",
		Long: `Run an in-memory notification and task backend.

The server prints a bearer token for --user on startup. Store it with
"taskpulse login --token <token>" or export it as TASKPULSE_TOKEN.`,
		Example: `
taskpulse devserver --addr 127.0.0.1:8787 --every 30s
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveDev(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&opts.userID, "user", "demo", "user id the printed token is issued for")
	cmd.Flags().DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed token")
	cmd.Flags().BoolVar(&opts.seed, "seed", true, "create demo tasks and notifications")
	cmd.Flags().DurationVar(&opts.every, "every", 0, "publish a demo notification at this interval (0 disables)")

	topLevel.AddCommand(cmd)
}

func serveDev(ctx context.Context, opts devserverOptions, out io.Writer) error {
	gin.SetMode(gin.ReleaseMode)

	secret := os.Getenv(DevSecretEnv)
	if secret == "" {
		secret = uuid.NewString()
	}
	srv := devserver.New([]byte(secret), log.Default())

	token, err := srv.IssueToken(opts.userID, opts.tokenTTL)
	if err != nil {
		return err
	}
	if opts.seed {
		seedDemo(srv, opts.userID, time.Now())
	}

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	fmt.Fprintf(out, "Listening on http://%s\n", opts.addr)
	fmt.Fprintf(out, "Token for %s:\n%s\n", opts.userID, token)

	var ticker <-chan time.Time
	if opts.every > 0 {
		t := time.NewTicker(opts.every)
		defer t.Stop()
		ticker = t.C
	}

	for n := 1; ; n++ {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker:
			srv.Publish(opts.userID, demoNotification(n))
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	}
}

var demoKinds = []model.Kind{
	model.KindUpdate,
	model.KindTask,
	model.KindEarning,
	model.KindWalletTransaction,
}

func demoNotification(n int) model.Notification {
	kind := demoKinds[n%len(demoKinds)]
	return model.Notification{
		Kind:    kind,
		Title:   fmt.Sprintf("Demo %s #%d", kind, n),
		Message: "Published by the development server.",
	}
}

// seedDemo gives userID a small board with one deadline inside the default
// reminder window, and one unpopped notification.
func seedDemo(srv *devserver.Server, userID string, now time.Time) {
	at := func(d time.Duration) *time.Time {
		t := now.Add(d).UTC()
		return &t
	}

	tasks := []model.Task{
		{ID: "demo-1", Title: "Review pull request", Status: model.StatusNotStarted, Deadline: at(90 * time.Minute)},
		{ID: "demo-2", Title: "Write release notes", Status: model.StatusInProgress, StartAt: at(-time.Hour), Deadline: at(6 * time.Hour)},
		{ID: "demo-3", Title: "Update dependencies", Status: model.StatusNotStarted},
		{ID: "demo-4", Title: "Fix flaky test", Status: model.StatusCompleted, CompletedAt: at(-2 * time.Hour)},
	}
	for _, t := range tasks {
		t.UpdatedAt = now.UTC()
		srv.PutTask(userID, t)
	}

	srv.Publish(userID, model.Notification{
		Kind:    model.KindUpdate,
		Title:   "Welcome to taskpulse",
		Message: "Press m to mark this read or x to close it.",
	})
}
