package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/config"
	"github.com/ASHISH26940/manim-studio/pkg/pipeline"
	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

// eventLogger stands in for the notification hub; nobody is subscribed to a
// CLI process, so events only go to the debug log.
type eventLogger struct{}

func (eventLogger) Publish(event any) {
	log.Debugf("event: %+v", event)
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Settle runs interrupted by a restart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			orchestrator := pipeline.New(store, nil, nil, eventLogger{}, nil)
			n, err := orchestrator.Reconcile(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settled %d interrupted run(s).\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", config.FromEnv().StaleTaskAfter,
		"Only settle runs idle for longer than this; use 0 when the API server is stopped")
	return cmd
}

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and adjust generation quotas",
	}
	quotaCmd.AddCommand(&cobra.Command{
		Use:   "set <email> <remaining>",
		Short: "Set the remaining generations of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remaining, err := strconv.Atoi(args[1])
			if err != nil || remaining < 0 {
				return fmt.Errorf("remaining must be a non-negative integer, got %q", args[1])
			}
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			user, err := store.FindUserByEmail(cmd.Context(), strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user with email %s", args[0])
			}
			if err := store.SetUserGenerations(cmd.Context(), user.ID, remaining); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d generations remaining\n", user.Email, user.GenerationsRemaining, remaining)
			return nil
		},
	})
	return quotaCmd
}

func newAnimationsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "animations <email>",
		Short: "List a user's animations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			user, err := store.FindUserByEmail(cmd.Context(), strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user with email %s", args[0])
			}
			animations, err := store.FindAnimationsByUserID(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(animations) == 0 {
				fmt.Fprintf(out, "%s has no animations (%d generations remaining).\n", user.Email, user.GenerationsRemaining)
				return nil
			}

			const stampLayout = "2006-01-02 15:04"
			rows := make([][]string, 0, len(animations))
			for _, a := range animations {
				video := "-"
				if a.VideoURL.Valid {
					video = a.VideoURL.String
				}
				rows = append(rows, []string{
					a.ID.String(),
					a.Title,
					string(a.Status),
					string(a.AIModel),
					strconv.Itoa(a.Duration),
					a.CreatedAt.Local().Format(stampLayout),
					video,
				})
			}
			headers := []string{"ID", "Title", "Status", "Model", "Duration", "Created", "Video"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintf(out, "%d animation(s), %d generations remaining.\n", len(animations), user.GenerationsRemaining)
			return nil
		},
	}
}
