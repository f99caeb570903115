package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
)

func newResumeCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume every unfinished enrollment and wait for them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, root)
		},
	}

	return cmd
}

func runResume(cmd *cobra.Command, root *rootFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())

	app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	enrollments, err := app.Host.List(ctx)
	if err != nil {
		return newCommandError("resume", "reading enrollments", err, "Verify the store configuration.")
	}
	pending := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if !e.Failed && !e.State.IsCompleted() {
			pending = append(pending, e.ID)
		}
	}

	resumed, err := app.Host.Recover(ctx)
	if err != nil {
		return newCommandError("resume", "recovering enrollments", err, "Verify the store configuration.")
	}

	out := cmd.OutOrStdout()
	if resumed == 0 {
		fmt.Fprintln(out, "Nothing to resume.")
		return nil
	}
	fmt.Fprintf(out, "Resumed %d enrollment(s).\n", resumed)

	failed := 0
	for _, id := range pending {
		state, err := app.Host.Await(ctx, id)
		if ctx.Err() != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted. Continue with: cadence resume")
			return nil
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: failed at step %d: %v\n", id, state.CurrentStepIndex, err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", id, state.Status)
	}

	if failed > 0 {
		return fmt.Errorf("%d enrollment(s) failed", failed)
	}
	return nil
}
