package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"streamkeep/internal/daemon"
	"streamkeep/internal/daemonctl"
	"streamkeep/internal/daemonrun"
	"streamkeep/internal/deps"
)

const (
	startWaitTimeout = 10 * time.Second
	// stopGracePeriod covers capture stop escalation plus a final merge.
	stopGracePeriod = 30 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the streamkeep daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the streamkeep daemon, ending active recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), daemonrun.PIDPath(ctx.configValue()), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the streamkeep daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			if _, err := daemonctl.StopAndTerminate(ctx.socketPath(), daemonrun.PIDPath(ctx.configValue()), stopGracePeriod); err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}

	var jsonOutput bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, recording, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			renderStatus(stdout, status, shouldColorize(stdout), time.Now())
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(out io.Writer, status daemon.Status, colorize bool, now time.Time) {
	system := make([]string, 0, 8)
	if status.Running {
		system = append(system, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		system = append(system, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	monitorKind := statusInfo
	if status.MonitorRunning {
		monitorKind = statusOK
	}
	system = append(system,
		renderStatusLine("Live monitor", monitorKind, yesNo(status.MonitorRunning), colorize),
		renderStatusLine("Capture mode", statusInfo, captureMode(status.LowPowerMode), colorize),
		renderStatusLine("Smart processing", statusInfo, yesNo(status.SmartProcessing), colorize),
		renderStatusLine("Auto replicate", statusInfo, yesNo(status.AutoReplicate), colorize),
	)
	nextMerge := "disabled"
	if status.NextMerge != nil {
		nextMerge = formatTimestamp(*status.NextMerge)
	}
	system = append(system, renderStatusLine("Next merge", statusInfo, nextMerge, colorize))
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusWarn
		}
		system = append(system, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	printSection(out, "System Status", colorize, system)

	printSection(out, "Dependencies", colorize, dependencyLines(status.Dependencies, colorize))

	sessions := []string{fmt.Sprintf("%d active, %d segment batches in flight", status.ActiveCount, status.ActiveBatches)}
	if len(status.Sessions) > 0 {
		rows := make([][]string, 0, len(status.Sessions))
		for _, session := range status.Sessions {
			rows = append(rows, []string{
				session.Source,
				humanLabel(string(session.Mode)),
				humanLabel(string(session.State)),
				formatElapsed(session.StartTime, now),
				session.Output,
			})
		}
		sessions = append(sessions, renderTable(
			[]string{"Source", "Mode", "State", "Elapsed", "Output"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
	printSection(out, "Recordings", colorize, sessions)

	queueLines := []string{fmt.Sprintf("%d batches waiting to merge", status.QueueLength)}
	if len(status.QueueBySource) > 0 {
		rows := make([][]string, 0, len(status.QueueBySource))
		for _, name := range sortedKeys(status.QueueBySource) {
			rows = append(rows, []string{name, fmt.Sprintf("%d", status.QueueBySource[name])})
		}
		queueLines = append(queueLines, renderTable([]string{"Source", "Batches"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	printSection(out, "Queue", colorize, queueLines)
}

func captureMode(lowPower bool) string {
	if lowPower {
		return "low power (segmented)"
	}
	return "normal"
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	var missing []string
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = dep.Version
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{ConfigPath: ctx.resolvedConfigPath()}
}
