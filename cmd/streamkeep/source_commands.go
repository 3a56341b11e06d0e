package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"streamkeep/internal/ipc"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"source"},
		Short:   "Manage monitored sources",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SourceList()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Sources)
				}
				out := cmd.OutOrStdout()
				if len(resp.Sources) == 0 {
					fmt.Fprintln(out, "No sources registered")
					return nil
				}
				rows := make([][]string, 0, len(resp.Sources))
				for _, src := range resp.Sources {
					state := "idle"
					if src.Session != nil {
						state = humanLabel(string(src.Session.State))
					}
					rows = append(rows, []string{
						strconv.FormatInt(src.ID, 10),
						src.Name,
						src.Address,
						state,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Address", "State"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print sources as JSON")

	addCmd := &cobra.Command{
		Use:   "add <name> <address>",
		Short: "Register a source to monitor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SourceAdd(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added source %s (id %d)\n", resp.Source.Name, resp.Source.ID)
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <id|name>",
		Aliases: []string{"rm"},
		Short:   "Remove a source, stopping its recording first",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SourceRemove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s\n", args[0])
				return nil
			})
		},
	}

	sourcesCmd.AddCommand(listCmd, addCmd, removeCmd)
	return sourcesCmd
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Probe whether a source is live right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CheckLive(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !resp.Result.Live {
					reason := resp.Result.Reason
					if reason == "" {
						reason = "no streams available"
					}
					fmt.Fprintf(out, "%s is offline (%s)\n", args[0], reason)
					return nil
				}
				fmt.Fprintf(out, "%s is live", args[0])
				if len(resp.Result.Streams) > 0 {
					fmt.Fprintf(out, " (streams: %s)", strings.Join(resp.Result.Streams, ", "))
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Start or stop recordings manually",
	}

	startCmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start recording a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordStart(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recording %s (%s) to %s\n",
					resp.Session.Source, humanLabel(string(resp.Session.Mode)), resp.Session.Output)
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop recording a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.RecordStop(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for %s\n", args[0])
				return nil
			})
		},
	}

	recordCmd.AddCommand(startCmd, stopCmd)
	return recordCmd
}
