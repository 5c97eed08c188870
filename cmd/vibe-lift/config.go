package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// settableKeys maps each config key the lift command reads to the parser
// for its value, so a typo'd key or value fails here instead of being
// silently ignored at lift time.
var settableKeys = map[string]func(string) (any, error){
	"lift.min-match":  parseFraction,
	"lift.min-blocks": parseFraction,
	"lift.workers":    parseWorkerCount,
}

func parseFraction(s string) (any, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return nil, fmt.Errorf("expected a fraction between 0 and 1, got %q", s)
	}
	return v, nil
}

func parseWorkerCount(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("expected a non-negative worker count, got %q", s)
	}
	return n, nil
}

// parseConfigValue validates key against settableKeys and parses value
// with the key's parser.
func parseConfigValue(key, value string) (any, error) {
	parse, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q (known keys: %s)", key, knownKeys())
	}
	return parse(value)
}

func knownKeys() string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-lift configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.vibe-lift.yaml.",
		Example: `  vibe-lift config                        # show all config
  vibe-lift config set lift.min-match 0.9 # change the default threshold
  vibe-lift config get lift.min-match     # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func runConfigShow() error {
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("# No configuration set. Config file: ~/.vibe-lift.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigSet(key, value string) error {
	parsed, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, parsed)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".vibe-lift.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %v in %s\n", key, parsed, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set (known keys: %s)", key, knownKeys())
	}
	fmt.Println(val)
	return nil
}
