package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/fastdrop/internal/daemon"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running agent",
	Long: `Send SIGTERM to the agent recorded in the PID file and wait for it to exit.
The agent stops its workers, closes the receive queues and leaves
promiscuous mode before exiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(pidFile, stopTimeout, cmd.OutOrStdout())
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the rule file of a running agent",
	Long: `Send SIGHUP to the agent recorded in the PID file. The agent re-reads its
rule file; if the file does not load, the previous rules stay active.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(pidFile, cmd.OutOrStdout())
	},
}

func init() {
	stopCmd.Flags().DurationVarP(&stopTimeout, "timeout", "t", 10*time.Second,
		"how long to wait for the agent to exit")
}

func runStop(pidFile string, timeout time.Duration, out io.Writer) error {
	if err := daemon.StopAgent(pidFile, timeout); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Agent stopped")
	return nil
}

func runReload(pidFile string, out io.Writer) error {
	if err := daemon.SignalReload(pidFile); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Reload requested, check the agent log for the result")
	return nil
}
