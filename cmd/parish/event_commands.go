package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"parish/internal/api"
	"parish/internal/events"
	"parish/internal/registry"
)

func newEventCommand(ctx *commandContext) *cobra.Command {
	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Manage events",
	}

	eventCmd.AddCommand(newEventCreateCommand(ctx))
	eventCmd.AddCommand(newEventListCommand(ctx))
	eventCmd.AddCommand(newEventShowCommand(ctx))
	eventCmd.AddCommand(newEventAttachCommand(ctx))
	eventCmd.AddCommand(newEventModuleCommand(ctx))

	return eventCmd
}

func newEventCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateEventRequest
	var enable, disable []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(enable) > 0 || len(disable) > 0 {
				modules := events.DefaultModules()
				for _, name := range enable {
					modules[strings.TrimSpace(name)] = true
				}
				for _, name := range disable {
					modules[strings.TrimSpace(name)] = false
				}
				req.Modules = modules
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.CreateEvent(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created event %s\n", view.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "Event title (required)")
	cmd.Flags().StringVar(&req.Speaker, "speaker", "", "Speaker name")
	cmd.Flags().StringVar(&req.Series, "series", "", "Series name")
	cmd.Flags().StringVar(&req.Scripture, "scripture", "", "Scripture reference")
	cmd.Flags().StringVar(&req.Date, "date", "", "Event date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&req.Time, "time", "", "Event time (HHMM, defaults to now)")
	cmd.Flags().StringVar(&req.Language, "language", "", "Transcription language (defaults to auto)")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "Modules to enable on top of the defaults")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "Modules to disable")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newEventListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			summaries, err := client.ListEvents(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No events")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(summaries))
			for _, summary := range summaries {
				rows = append(rows, []string{
					summary.ID,
					summary.Title,
					summary.Speaker,
					summary.Date,
					colorizeStatus(summary.OverallStatus, colorize),
					yesNo(summary.Running),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "TITLE", "SPEAKER", "DATE", "STATUS", "RUNNING"}, rows))
			return nil
		},
	}
}

func newEventShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show event details, module state, and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			detail, err := client.DescribeEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			event := detail.Event
			fmt.Fprintln(out, statusLine("ID", event.ID))
			fmt.Fprintln(out, statusLine("Title", event.Title))
			if event.Speaker != "" {
				fmt.Fprintln(out, statusLine("Speaker", event.Speaker))
			}
			if event.Series != "" {
				fmt.Fprintln(out, statusLine("Series", event.Series))
			}
			if event.Scripture != "" {
				fmt.Fprintln(out, statusLine("Scripture", event.Scripture))
			}
			fmt.Fprintln(out, statusLine("Date", event.Date+" "+event.Time))
			fmt.Fprintln(out, statusLine("Language", event.Language))
			fmt.Fprintln(out, statusLine("Videos", strconv.Itoa(len(event.VideoFiles))))
			fmt.Fprintln(out, statusLine("Status", colorizeStatus(detail.State.OverallStatus, colorize)))

			rows := make([][]string, 0, len(registry.All()))
			for _, entry := range registry.All() {
				status := "disabled"
				if event.Modules[entry.Name] {
					status = "pending"
				}
				forced := ""
				errMsg := ""
				if rec, ok := detail.State.Modules[entry.Name]; ok {
					status = rec.Status
					forced = yesNo(rec.LastRunForced)
					errMsg = rec.Error
				}
				rows = append(rows, []string{
					entry.Name,
					colorizeStatus(status, colorize),
					forced,
					errMsg,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"MODULE", "STATUS", "FORCED", "ERROR"}, rows))

			fmt.Fprintln(out, statusLine("Progress", formatProgress(detail.Progress, colorize)))
			return nil
		},
	}
}

func formatProgress(view api.ProgressView, colorize bool) string {
	line := fmt.Sprintf("%s %d%% (%d/%d modules)",
		colorizeStatus(view.Status, colorize),
		view.ProgressPercent,
		len(view.CompletedModules),
		view.TotalModules,
	)
	if view.CurrentModule != "" {
		line += " " + view.CurrentModule
		if view.CurrentStep != "" {
			line += ": " + view.CurrentStep
		}
	}
	if view.Error != "" {
		line += " (" + view.Error + ")"
	}
	return line
}

func newEventAttachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <event-id> <video-file>",
		Short: "Attach a source video to an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.AttachVideo(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Attached video to %s (%d total)\n", view.ID, len(view.VideoFiles))
			return nil
		},
	}
}

func newEventModuleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "module <event-id> <module> <on|off>",
		Short: "Toggle a module on an event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[2]) {
			case "on", "true", "enable":
				enabled = true
			case "off", "false", "disable":
				enabled = false
			default:
				return fmt.Errorf("invalid toggle %q (use on or off)", args[2])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.SetModule(cmd.Context(), args[0], args[1], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Module %s on %s: %s\n", args[1], view.ID, yesNo(view.Modules[args[1]]))
			return nil
		},
	}
}
