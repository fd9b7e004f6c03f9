package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/fastdrop/internal/filter"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule files",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a rule file loads",
	Long: `Load a rule file (JSON, or YAML by .yaml/.yml extension) without starting
the agent. Entries with an unparseable address are skipped with a warning;
a structurally invalid document fails.

Examples:
  fastdrop rules validate /etc/fastdrop/rules.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesValidate(args[0], cmd.OutOrStdout())
	},
}

var rulesVerbose bool

var rulesShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "List the rules of a rule file with their comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesShow(args[0], rulesVerbose, cmd.OutOrStdout())
	},
}

func init() {
	rulesShowCmd.Flags().BoolVarP(&rulesVerbose, "verbose", "v", false, "also print each rule's match fields")
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesShowCmd)
}

func runRulesValidate(path string, out io.Writer) error {
	rs, err := filter.LoadFile(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	blocking := 0
	for _, r := range rs {
		if r.Block {
			blocking++
		}
	}
	fmt.Fprintf(out, "VALID: %d rule(s), %d blocking, %d allowing\n", len(rs), blocking, len(rs)-blocking)
	return nil
}

func runRulesShow(path string, verbose bool, out io.Writer) error {
	rs, err := filter.LoadFile(path)
	if err != nil {
		return err
	}
	lines := filter.NewEngine(rs).Describe()
	for i, line := range lines {
		if verbose {
			fmt.Fprintf(out, "%s  [%s]\n", line, rs[i])
			continue
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
