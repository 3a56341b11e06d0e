package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:   "streamkeep",
		Short: "Record live streams and keep the archive tidy",
		Long: "streamkeep watches a list of stream sources, records them while they are live,\n" +
			"merges low-power segment batches, and replicates finished recordings.\n" +
			"Most commands talk to the background daemon; see `streamkeep start`.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.socketOverride, "socket", "", "Path to the streamkeep daemon socket")
	flags.StringVarP(&ctx.configOverride, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newDaemonCommands(ctx)...)
	rootCmd.AddCommand(
		newDaemonRunCommand(ctx),
		newSourcesCommand(ctx),
		newCheckCommand(ctx),
		newRecordCommand(ctx),
		newQueueCommand(ctx),
		newRecordingsCommand(ctx),
		newConfigCommand(ctx),
		newLogsCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return rootCmd
}
