package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/store"
)

func addDedup(topLevel *cobra.Command, opts *globalOptions) {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect or clear the local record of shown pop-ups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List shown notification ids and dismissed reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(s store.Store) error {
				return listDedup(cmd.Context(), s, cmd.OutOrStdout())
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every shown id and dismissal",
		Long:  "Forget every shown id and dismissal. Notifications still unpopped on the server may be displayed again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(s store.Store) error {
				if err := s.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Local dedup record cleared.")
				return nil
			})
		},
	}

	cmd.AddCommand(list, clearCmd)
	topLevel.AddCommand(cmd)
}

func withStore(opts *globalOptions, fn func(store.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func listDedup(ctx context.Context, s store.AdmissionStore, w io.Writer) error {
	shown, err := s.ShownIDs(ctx)
	if err != nil {
		return err
	}
	dismissed, err := s.DismissedReminders(ctx)
	if err != nil {
		return err
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("ID", "SHOWN", "DISMISSED", "DEADLINE")

	ids := make([]string, 0, len(shown)+len(dismissed))
	for id := range shown {
		ids = append(ids, id)
	}
	for id := range dismissed {
		if _, ok := shown[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		_, isShown := shown[id]
		d, isDismissed := dismissed[id]
		dismissedAt, deadline := "-", "-"
		if isDismissed {
			dismissedAt = d.DismissedAt.Local().Format(time.DateTime)
			if d.Deadline != nil {
				deadline = d.Deadline.Local().Format(time.DateTime)
			}
		}
		tbl.AddRow(id, yesNo(isShown), dismissedAt, deadline)
	}

	_, err = fmt.Fprintln(w, tbl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d shown, %d dismissed\n", len(shown), len(dismissed))
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
