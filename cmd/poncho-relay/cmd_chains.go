package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ilkoid/poncho-relay/pkg/app"
	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/chainstore"
	"github.com/ilkoid/poncho-relay/pkg/nodes"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Inspect and validate chain definitions",
}

var chainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chains from the configured source in routing order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := chainstore.Open(cfg)
		if err != nil {
			return err
		}
		if cl, ok := store.(io.Closer); ok {
			defer cl.Close()
		}
		router := chain.NewRouter(chain.NewMatcher())
		active, err := chainstore.Reload(cmd.Context(), store, router, builtinRegistry())
		if err != nil {
			return err
		}
		printChains(cmd, active)
		return nil
	},
}

var chainsValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a chains YAML file against the built-in nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		chains, err := chain.ParseChainsYAML(data)
		if err != nil {
			return err
		}
		if err := chain.Validate(chains, builtinRegistry()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d chain(s)\n", len(chains))
		return nil
	},
}

func init() {
	chainsCmd.AddCommand(chainsListCmd)
	chainsCmd.AddCommand(chainsValidateCmd)
}

// builtinRegistry — реестр для проверки имён узлов (без провайдера).
func builtinRegistry() *chain.Registry {
	reg := chain.NewRegistry()
	_ = nodes.RegisterBuiltins(reg, nodes.Deps{})
	return reg
}

func printChains(cmd *cobra.Command, chains []*chain.Config) {
	out := cmd.OutOrStdout()
	for i, c := range chains {
		state := "on"
		if !c.Enabled {
			state = "off"
		}
		names := make([]string, 0, len(c.Nodes))
		for _, n := range c.Nodes {
			names = append(names, n.Name)
		}
		fmt.Fprintf(out, "%d. %s [%s] sort=%d nodes=%s\n", i+1, c.ID, state, c.SortOrder, strings.Join(names, " → "))
	}
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List config presets",
	Run: func(cmd *cobra.Command, _ []string) {
		for _, name := range app.ListPresets() {
			p, _ := app.GetPreset(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, p.Description)
		}
	},
}
