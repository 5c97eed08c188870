package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-lift/internal/chain"
	"github.com/inodb/vibe-lift/internal/chaindb"
)

func newChainDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chaindb",
		Short: "Manage chain-extension databases",
		Long: `A chain database holds a full, un-netted chain file in DuckDB. During
'lift --multiple --chain-db', blocks that the netted over.chain file
pruned (duplicated segments) are recovered from it.`,
	}
	cmd.AddCommand(newChainDBBuildCmd())
	cmd.AddCommand(newChainDBInfoCmd())
	return cmd
}

func newChainDBBuildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build --out <file.duckdb> <map.chain>",
		Short: "Ingest a chain file into a DuckDB database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChainDBBuild(out, args[0])
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output database file (required)")
	cmd.MarkFlagRequired("out")
	return cmd
}

func runChainDBBuild(out, chainFile string) error {
	set, err := chain.Open(chainFile)
	if err != nil {
		return err
	}

	fp, err := chaindb.StatFile(chainFile)
	if err != nil {
		return fmt.Errorf("stat chain file: %w", err)
	}

	store, err := chaindb.Open(out)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Ingest(set, fp); err != nil {
		return fmt.Errorf("ingest chain file: %w", err)
	}

	chains, blocks, err := store.Counts()
	if err != nil {
		return err
	}
	logger.Info("chain database built",
		zap.String("db", out),
		zap.Int64("chains", chains),
		zap.Int64("blocks", blocks))
	fmt.Printf("Ingested %d chains (%d blocks) into %s\n", chains, blocks, out)
	return nil
}

func newChainDBInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.duckdb>",
		Short: "Show the contents of a chain database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := chaindb.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			chains, blocks, err := store.Counts()
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d chains, %d blocks\n", args[0], chains, blocks)
			return nil
		},
	}
}
