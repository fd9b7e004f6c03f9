// Package cmd implements the fastdrop command line using cobra.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	pidFile    string
)

var rootCmd = &cobra.Command{
	Use:   "fastdrop",
	Short: "fastdrop - line-rate packet filtering agent",
	Long: `fastdrop receives frames from one network port, decodes Ethernet, IPv4,
IPv6 and TCP/UDP headers and drops traffic matching an ordered rule list.
Rules are matched first-match-wins on source address and source port;
frames no rule matches are allowed.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/fastdrop/fastdrop.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "/var/run/fastdrop.pid",
		"PID file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(decodeCmd)
}
