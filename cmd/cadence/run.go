package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/host"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
)

type runOptions struct {
	CadencePath string
	Email       string
	ID          string
	UpdatePath  string
	UpdateAfter time.Duration
	JSON        bool
}

var runCmdRunner = runRun

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run <cadence.yaml>",
		Short: "Enroll a contact in a cadence and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CadencePath = args[0]
			if err := validateRunOptions(opts); err != nil {
				return err
			}
			return runCmdRunner(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "Contact email address")
	cmd.Flags().StringVar(&opts.ID, "id", "", "Enrollment id (generated when empty)")
	cmd.Flags().StringVar(&opts.UpdatePath, "update", "", "Steps file sent as an update while the enrollment runs")
	cmd.Flags().DurationVar(&opts.UpdateAfter, "after", 0, "Delay before the update is sent")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	cmd.MarkFlagRequired("email") //nolint:errcheck

	return cmd
}

func runRun(cmd *cobra.Command, root *rootFlags, opts runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())

	app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	tmpl, err := app.Loader.Load(ctx, opts.CadencePath)
	if err != nil {
		return newCommandError("run", "loading cadence", err, "Fix the cadence file and try again.")
	}

	var update []cadence.Step
	if opts.UpdatePath != "" {
		update, err = app.Loader.LoadSteps(ctx, opts.UpdatePath)
		if err != nil {
			return newCommandError("run", "loading update steps", err, "Fix the update file and try again.")
		}
	}

	handle, err := app.Host.Start(ctx, host.StartRequest{
		EnrollmentID: opts.ID,
		CadenceID:    tmpl.ID,
		ContactEmail: opts.Email,
		Steps:        tmpl.Steps,
	})
	if err != nil {
		return newCommandError("run", "starting enrollment", err, "Check the enrollment id and store configuration.")
	}
	if handle.Existing {
		app.Logger.Info(ctx, "enrollment already exists", "enrollment_id", handle.ID)
	}

	if opts.UpdatePath != "" {
		if err := sendUpdate(ctx, app, handle, update, opts.UpdateAfter); err != nil {
			return err
		}
	}

	if _, err := app.Host.Await(ctx, handle.ID); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted. Continue with: cadence resume\n")
			return nil
		}
		return newCommandError("run", "executing enrollment "+handle.ID, err, "Inspect it with: cadence show "+handle.ID)
	}

	enrollment, err := app.Host.Enrollment(context.WithoutCancel(ctx), handle.ID)
	if err != nil {
		return newCommandError("run", "reading enrollment "+handle.ID, err, "Inspect it with: cadence show "+handle.ID)
	}
	return renderEnrollment(cmd, enrollment, opts.JSON)
}

// sendUpdate waits for after to elapse and signals the new steps. It gives up
// quietly when the enrollment finishes first.
func sendUpdate(ctx context.Context, app *AppContext, handle *host.Handle, steps []cadence.Step, after time.Duration) error {
	timer := time.NewTimer(after)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-handle.Done():
		app.Logger.Warn(ctx, "enrollment finished before the update was sent", "enrollment_id", handle.ID)
		return nil
	case <-ctx.Done():
		return nil
	}

	err := app.Host.Signal(ctx, handle.ID, steps)
	if cadence.CodeOf(err) == cadence.ErrCodeState {
		app.Logger.Warn(ctx, "update rejected", "enrollment_id", handle.ID, "error", err)
		return nil
	}
	if err != nil {
		return newCommandError("run", "updating enrollment "+handle.ID, err, "Check the update file.")
	}
	app.Logger.Info(ctx, "update sent", "enrollment_id", handle.ID, "steps", len(steps))
	return nil
}

func renderEnrollment(cmd *cobra.Command, enrollment host.Enrollment, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(enrollment)
	}
	return renderEnrollmentText(cmd, enrollment)
}
