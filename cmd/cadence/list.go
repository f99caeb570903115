package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/cadence/internal/host"
)

type listOptions struct {
	jsonOutput bool
}

func newListCmd(root *rootFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored enrollments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runList(cmd *cobra.Command, root *rootFlags, opts *listOptions) error {
	ctx := cmd.Context()

	app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	enrollments, err := app.Host.List(ctx)
	if err != nil {
		return newCommandError("list", "reading enrollments", err, "Verify the store configuration.")
	}

	if opts.jsonOutput {
		return renderListJSON(cmd, enrollments)
	}
	if len(enrollments) == 0 {
		return renderEmptyList(cmd)
	}
	return renderListTable(cmd, enrollments)
}

func renderEmptyList(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "No enrollments found.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Start one with:")
	fmt.Fprintln(out, "  cadence run <cadence.yaml> --email <address>")
	return nil
}

func renderListTable(cmd *cobra.Command, enrollments []host.Enrollment) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tCADENCE\tCONTACT\tSTATUS\tSTEP\tUPDATED")
	for _, e := range enrollments {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			e.ID,
			valueOrFallback(e.CadenceID, "-"),
			e.ContactEmail,
			formatStatus(e),
			e.State.CurrentStepIndex,
			len(e.State.Steps),
			formatRelativeTime(e.UpdatedAt),
		)
	}
	return writer.Flush()
}

type listJSONPayload struct {
	Version     string            `json:"version"`
	Count       int               `json:"count"`
	Enrollments []host.Enrollment `json:"enrollments"`
}

func renderListJSON(cmd *cobra.Command, enrollments []host.Enrollment) error {
	if enrollments == nil {
		enrollments = []host.Enrollment{}
	}
	payload := listJSONPayload{
		Version:     "1.0",
		Count:       len(enrollments),
		Enrollments: enrollments,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
