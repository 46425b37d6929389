package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"parish/internal/api"
	"parish/internal/progress"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var wait bool

	cmd := &cobra.Command{
		Use:   "run <event-id>",
		Short: "Run the full module pipeline for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			accepted, err := client.Run(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run started for %s\n", accepted.EventID)
			if !wait {
				return nil
			}
			return waitForRun(cmd.Context(), cmd.OutOrStdout(), client, accepted.EventID)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-run modules that already succeeded")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish, reporting progress")
	return cmd
}

func newRunModuleCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var wait bool

	cmd := &cobra.Command{
		Use:   "run-module <event-id> <module>",
		Short: "Run a single module for an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			accepted, err := client.RunModule(cmd.Context(), args[0], args[1], force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Module %s started for %s\n", accepted.Module, accepted.EventID)
			if !wait {
				return nil
			}
			return waitForRun(cmd.Context(), cmd.OutOrStdout(), client, accepted.EventID)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-run the module even if it already succeeded")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish, reporting progress")
	return cmd
}

// waitForRun polls progress until the run reaches a terminal status. Step
// changes are echoed as they happen.
func waitForRun(ctx context.Context, out io.Writer, client *api.Client, eventID string) error {
	colorize := shouldColorize(out)
	var lastLine string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}

		view, err := client.Progress(ctx, eventID)
		if err != nil {
			return err
		}
		line := formatProgress(*view, colorize)
		if line != lastLine {
			fmt.Fprintln(out, line)
			lastLine = line
		}
		switch view.Status {
		case progress.StatusCompleted:
			return nil
		case progress.StatusFailed:
			if view.Error != "" {
				return fmt.Errorf("run failed: %s", view.Error)
			}
			return fmt.Errorf("run failed")
		}
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and module health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			running := "stopped"
			if status.Running {
				running = "running"
			}
			fmt.Fprintln(out, statusLine("Daemon", colorizeStatus(running, colorize)))
			fmt.Fprintln(out, statusLine("PID", fmt.Sprintf("%d", status.PID)))
			fmt.Fprintln(out, statusLine("State DB", status.StateDBPath))
			fmt.Fprintln(out, statusLine("Lock file", status.LockFilePath))
			fmt.Fprintln(out, statusLine("Events", fmt.Sprintf("%d", status.Events)))
			for _, id := range status.ActiveRuns {
				fmt.Fprintln(out, statusLine("Active run", id))
			}

			if len(status.ModuleHealth) > 0 {
				rows := make([][]string, 0, len(status.ModuleHealth))
				for _, health := range status.ModuleHealth {
					ready := "ready"
					if !health.Ready {
						ready = "not ready"
					}
					rows = append(rows, []string{
						health.Name,
						colorizeStatus(ready, colorize),
						health.Detail,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"MODULE", "READY", "DETAIL"}, rows))
			}
			return nil
		},
	}
}
