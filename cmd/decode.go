package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/fastdrop/internal/config"
	"firestige.xyz/fastdrop/internal/core/decoder"
	"firestige.xyz/fastdrop/internal/filter"
	"firestige.xyz/fastdrop/internal/nic"
)

type decodeOptions struct {
	rules string
	limit int
	hex   bool
}

var decodeOpts decodeOptions

var decodeCmd = &cobra.Command{
	Use:   "decode <capture>",
	Short: "Classify the frames of a pcap or pcapng file offline",
	Long: `Decode every frame of an Ethernet capture and print a one-line summary
with the verdict the rule set gives it. The rule file is taken from
--rules, or from the configuration file when the flag is not set.

Examples:
  fastdrop decode trace.pcap --rules rules.json
  fastdrop decode trace.pcapng -c fastdrop.yml --limit 100 --hex`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := decodeOpts
		if opts.rules == "" {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			opts.rules = cfg.Rules.Path
		}
		return runDecode(args[0], opts, cmd.OutOrStdout())
	},
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeOpts.rules, "rules", "r", "", "rule file (default: rules.path of the config)")
	decodeCmd.Flags().IntVarP(&decodeOpts.limit, "limit", "n", 0, "stop after this many frames (0 = all)")
	decodeCmd.Flags().BoolVar(&decodeOpts.hex, "hex", false, "print the leading bytes of each frame")
}

// decodeTally counts verdicts of a decode run.
type decodeTally struct {
	frames, allowed, blocked, malformed int
}

func runDecode(capture string, opts decodeOptions, out io.Writer) error {
	rs, err := filter.LoadFile(opts.rules)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	engine := filter.NewEngine(rs)

	f, err := os.Open(capture)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := nic.ReadCapture(f)
	if err != nil {
		return err
	}

	var tally decodeTally
	for opts.limit <= 0 || tally.frames < opts.limit {
		data, _, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read frame %d: %w", tally.frames+1, err)
		}
		tally.frames++

		pkt, err := decoder.Parse(data, len(data))
		switch {
		case err != nil:
			tally.malformed++
			fmt.Fprintf(out, "%6d  %-9s %v\n", tally.frames, "MALFORMED", err)
		case engine.MatchPacket(&pkt):
			tally.allowed++
			fmt.Fprintf(out, "%6d  %-9s %s\n", tally.frames, "ALLOW", decoder.Summary(pkt))
		default:
			tally.blocked++
			fmt.Fprintf(out, "%6d  %-9s %s\n", tally.frames, "BLOCK", decoder.Summary(pkt))
		}

		if opts.hex {
			for _, row := range decoder.HexDump(data, decoder.DefaultDumpLen) {
				fmt.Fprintf(out, "        %s\n", row)
			}
		}
	}

	fmt.Fprintf(out, "frames=%d allowed=%d blocked=%d malformed=%d\n",
		tally.frames, tally.allowed, tally.blocked, tally.malformed)
	return nil
}
