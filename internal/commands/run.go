package commands

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/app"
	"github.com/nhle/taskpulse/internal/credential"
	"github.com/nhle/taskpulse/internal/delivery"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/notify"
	"github.com/nhle/taskpulse/internal/push"
	"github.com/nhle/taskpulse/internal/reminder"
	"github.com/nhle/taskpulse/internal/remote"
	"github.com/nhle/taskpulse/internal/store"
)

func addRun(topLevel *cobra.Command, opts *globalOptions) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the task board",
		Example: `
taskpulse run
TASKPULSE_API_BASE_URL=http://127.0.0.1:8787 taskpulse run
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runBoard(cmd.Context(), cfg)
		},
	}

	topLevel.AddCommand(cmd)
}

func runBoard(ctx context.Context, cfg *model.AppConfig) error {
	token, err := credential.Token()
	if err != nil {
		return err
	}
	userID, err := remote.UserIDFromToken(token)
	if err != nil {
		return fmt.Errorf("reading user from token: %w", err)
	}

	logFile, err := tea.LogToFile(filepath.Join(model.ConfigDir(), "taskpulse.log"), "taskpulse")
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	s, err := store.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := log.Default()
	client := remote.NewClient(cfg.API.BaseURL, token, remote.Options{
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	})

	streamURL := cfg.API.StreamURL
	if streamURL == "" {
		streamURL = push.StreamURL(cfg.API.BaseURL)
	}

	svc, err := notify.New(notify.Options{
		Store:             s,
		Remote:            client,
		Subscribe:         delivery.PushSubscribe(push.NewSubscriber(streamURL, token, nil)),
		UserID:            userID,
		Computer:          reminder.DeadlineComputer{},
		Logger:            logger,
		ReminderThreshold: time.Duration(cfg.Reminder.ThresholdMin) * time.Minute,
		PopupDuration:     cfg.PopupDuration(),
		OffsetRows:        cfg.Popup.OffsetRows,
		QueueDelay:        cfg.QueueDelay(),
		PollInterval:      cfg.PollInterval(),
	})
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	log.Printf("session started for %s against %s", userID, cfg.API.BaseURL)

	_, runErr := tea.NewProgram(app.New(svc), tea.WithAltScreen()).Run()

	if err := svc.Close(); err != nil {
		log.Printf("session closed with undelivered changes: %v", err)
	}
	return runErr
}
