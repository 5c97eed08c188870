// Package main provides the vibe-lift command-line tool: liftover of
// genomic annotations between assemblies using UCSC chain files.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logger = zap.NewNop()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:     "vibe-lift",
		Short:   "Move annotations from one genome assembly to another",
		Version: fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Long: `vibe-lift remaps genomic features (BED, GFF, genePred, PSL, sample,
position files) from one assembly to another using a UCSC chain file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			return initLogger(verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newLiftCmd())
	cmd.AddCommand(newChainsCmd())
	cmd.AddCommand(newChainDBCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// initConfig loads ~/.vibe-lift.yaml and VIBE_LIFT_* environment
// variables. A missing config file is fine; flags always win.
func initConfig() error {
	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".vibe-lift")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VIBE_LIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func initLogger(verbose bool) error {
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		logger, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	return nil
}

// defaultDataDir returns where downloaded chain files live.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vibe-lift")
}
