package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/fastdrop/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground",
	Long: `Run the filtering agent in the foreground.

The agent will:
  1. Load the configuration and the rule file
  2. Check the environment and bring the port up
  3. Open the receive queues and launch one worker per queue
  4. Serve Prometheus metrics (if enabled)
  5. Reload rules on SIGHUP and shut down on SIGINT or SIGTERM

Examples:
  fastdrop run -c /etc/fastdrop/fastdrop.yml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent()
	},
}

func runAgent() error {
	d, err := daemon.New(configFile, pidFile)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	return d.Run()
}
