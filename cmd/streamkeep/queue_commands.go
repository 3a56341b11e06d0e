package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"streamkeep/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and process the segment queue",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List batches waiting to merge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Items)
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Items))
				for _, item := range resp.Items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.SourceName,
						item.Batch.FinalFilename,
						strconv.Itoa(item.SegmentCount),
						formatTimestamp(item.CreatedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Source", "Output", "Segments", "Queued"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print queue items as JSON")

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Merge every queued batch now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueProcess()
				if err != nil {
					return err
				}
				r := resp.Result
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d batches: %d merged, %d failed, %d empty\n",
					r.Processed, r.Merged, r.Failed, r.Empty)
				return nil
			})
		},
	}

	queueCmd.AddCommand(listCmd, processCmd)
	return queueCmd
}

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	recordingsCmd := &cobra.Command{
		Use:   "recordings",
		Short: "List finished recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Recordings()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Recordings)
				}
				out := cmd.OutOrStdout()
				if len(resp.Recordings) == 0 {
					fmt.Fprintln(out, "No recordings yet")
					return nil
				}
				rows := make([][]string, 0, len(resp.Recordings))
				for _, rec := range resp.Recordings {
					rows = append(rows, []string{rec.Name, formatBytes(rec.Size), formatTimestamp(rec.ModTime)})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Name", "Size", "Modified"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	recordingsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print recordings as JSON")

	pathCmd := &cobra.Command{
		Use:   "path <name>",
		Short: "Print the absolute path of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordingPath(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Path)
				return nil
			})
		},
	}
	recordingsCmd.AddCommand(pathCmd)
	return recordingsCmd
}
