package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/host"
)

type showOptions struct {
	jsonOutput bool
}

func newShowCmd(root *rootFlags) *cobra.Command {
	opts := &showOptions{}

	cmd := &cobra.Command{
		Use:   "show <enrollment-id>",
		Short: "Show the state of one enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, root, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runShow(cmd *cobra.Command, root *rootFlags, id string, opts *showOptions) error {
	ctx := cmd.Context()

	app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	enrollment, err := app.Host.Enrollment(ctx, id)
	if err != nil {
		if cadence.IsNotFound(err) {
			return newCommandError("show", fmt.Sprintf("enrollment '%s' not found", id), err, "Run 'cadence list' to see stored enrollments.")
		}
		return newCommandError("show", "reading enrollment "+id, err, "Verify the store configuration.")
	}

	return renderEnrollment(cmd, enrollment, opts.jsonOutput)
}

func renderEnrollmentText(cmd *cobra.Command, e host.Enrollment) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Enrollment: %s\n", e.ID)
	fmt.Fprintf(out, "Cadence:    %s\n", valueOrFallback(e.CadenceID, "(none)"))
	fmt.Fprintf(out, "Contact:    %s\n", e.ContactEmail)
	fmt.Fprintf(out, "Status:     %s\n", formatStatus(e))
	fmt.Fprintf(out, "Progress:   %d/%d steps (version %d)\n", e.State.CurrentStepIndex, len(e.State.Steps), e.State.StepsVersion)
	fmt.Fprintf(out, "Updated:    %s\n", formatRelativeTime(e.UpdatedAt))
	if e.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", e.LastError)
	}

	if len(e.State.Steps) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tID\tTYPE\tDETAIL\tDONE")
	for i, step := range e.State.Steps {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n",
			i,
			step.ID,
			step.Type,
			stepDetail(step),
			completionTime(e.State, i),
		)
	}
	return writer.Flush()
}

func stepDetail(step cadence.Step) string {
	switch step.Type {
	case cadence.StepTypeWait:
		return (time.Duration(step.Seconds) * time.Second).String()
	case cadence.StepTypeSendEmail:
		return fmt.Sprintf("%q", step.Subject)
	}
	return ""
}

func completionTime(state cadence.ExecutionState, index int) string {
	if index >= state.CurrentStepIndex || index >= len(state.StepCompletionTimes) {
		return "-"
	}
	return formatRelativeTime(state.StepCompletionTimes[index])
}

func formatStatus(e host.Enrollment) string {
	status := string(e.State.Status)
	switch {
	case e.Failed:
		status += " (failed)"
	case e.Running:
		status += " (running)"
	}
	return status
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}
	return humanize.Time(ts)
}

func valueOrFallback(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
