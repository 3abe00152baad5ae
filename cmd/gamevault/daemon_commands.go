package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gamevault/internal/api"
	"gamevault/internal/daemonctl"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start or stop the background gamevaultd process",
	}

	var binary string
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch gamevaultd unless it is already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe := strings.TrimSpace(binary)
			if exe == "" {
				self, _ := os.Executable()
				resolved, err := daemonctl.DaemonExecutable(self)
				if err != nil {
					return err
				}
				exe = resolved
			}
			opts := daemonctl.LaunchOptions{ConfigPath: strings.TrimSpace(*ctx.configFlag), LogLevel: logLevel}
			return ctx.withClient(func(client *api.Client) error {
				result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, opts, 10*time.Second)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				switch result.State {
				case daemonctl.StartStateStarted:
					fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.Status.PID)
				case daemonctl.StartStateAlreadyRunning:
					fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.Status.PID)
				}
				return nil
			})
		},
	}
	startCmd.Flags().StringVar(&binary, "binary", "", "Path to the gamevaultd executable")
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running gamevaultd process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				stopped, err := daemonctl.Stop(cmd.Context(), client, 15*time.Second)
				if err != nil {
					return err
				}
				if !stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
				return nil
			})
		},
	}

	cmd.AddCommand(startCmd, stopCmd)
	return cmd
}
