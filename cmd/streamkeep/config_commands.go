package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"streamkeep/internal/config"
	"streamkeep/internal/ipc"
)

const redacted = "********"

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigApplyCommand(ctx))
	configCmd.AddCommand(newConfigReloadCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Add sources with `streamkeep sources add` once the daemon is running.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := ctx.resolvedConfigPath()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config file does not exist; defaults are in use")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		reveal     bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		Long:  "Print the daemon's active configuration, or the local file when the daemon is not running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source := activeConfig(ctx)
			if !reveal {
				cfg = redactSecrets(cfg)
			}
			if jsonOutput {
				return writeJSON(cmd, cfg)
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n", source)
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print configuration as JSON")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Include replication passwords")
	return cmd
}

func newConfigApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file>",
		Short: "Validate a configuration file and make it the daemon's active settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, _, exists, err := config.Load(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			if !exists {
				return fmt.Errorf("config file %s not found", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UpdateSettings(*next)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Path != "" {
					fmt.Fprintf(out, "Settings applied and saved to %s\n", resp.Path)
					return nil
				}
				fmt.Fprintln(out, "Settings applied")
				return nil
			})
		},
	}
}

func newConfigReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the daemon to re-read its configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReloadConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration reloaded from %s\n", resp.Path)
				return nil
			})
		},
	}
}

// activeConfig prefers the daemon's in-memory settings over the local file.
func activeConfig(ctx *commandContext) (config.Config, string) {
	if client, err := ctx.dialClient(); err == nil {
		defer client.Close()
		if resp, err := client.Settings(); err == nil {
			return resp.Config, "daemon"
		}
	}
	if cfg := ctx.configValue(); cfg != nil {
		return *cfg, ctx.resolvedConfigPath()
	}
	return config.Default(), "defaults"
}

func redactSecrets(cfg config.Config) config.Config {
	if cfg.Replication.FTP.Password != "" {
		cfg.Replication.FTP.Password = redacted
	}
	if cfg.Replication.S3.SecretKey != "" {
		cfg.Replication.S3.SecretKey = redacted
	}
	if cfg.Replication.SMB.Password != "" {
		cfg.Replication.SMB.Password = redacted
	}
	return cfg
}
