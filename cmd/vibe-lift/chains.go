package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-lift/internal/chain"
)

func newChainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains <map.chain>",
		Short: "Summarize a chain file",
		Long:  "Print per-sequence chain, block and aligned-base counts for a chain file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChains(cmd, args[0])
		},
	}
}

func runChains(cmd *cobra.Command, path string) error {
	set, err := chain.Open(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Sequence\tChains\tBlocks\tAlignedBases\tNewSequences")

	var totalChains, totalBlocks int
	var totalAligned int64
	for _, name := range set.SequenceNames() {
		chains := set.Chains(name)
		blocks := 0
		var aligned int64
		targets := map[string]bool{}
		for _, c := range chains {
			blocks += len(c.Blocks)
			for _, b := range c.Blocks {
				aligned += b.Size
			}
			targets[c.QName] = true
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", name, len(chains), blocks, aligned, len(targets))
		totalChains += len(chains)
		totalBlocks += blocks
		totalAligned += aligned
	}
	fmt.Fprintf(w, "total\t%d\t%d\t%d\t\n", totalChains, totalBlocks, totalAligned)

	return w.Flush()
}
