// Command sentinelctl renders discovery trees and manages the schema from a
// terminal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cybersentinel/internal/adapters/memory"
	"cybersentinel/internal/logging"
	"cybersentinel/internal/seed"
	"cybersentinel/internal/services/discovery"
	"cybersentinel/internal/subdomain"
)

var (
	seedFile string
	rootName string
	noColor  bool

	rootCmd = &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Attack surface discovery tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&seedFile, "seed", "", "YAML seed file (default: embedded snapshot)")
	rootCmd.PersistentFlags().StringVar(&rootName, "root", "", "Registrable root to show (default: first root in the seed)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

// loadSeed imports the seed into an in-memory store and resolves which root
// to show.
func loadSeed(ctx context.Context) (*discovery.Service, *memory.Store, string, error) {
	t := seed.Default()
	if seedFile != "" {
		var err error
		if t, err = seed.LoadFile(seedFile); err != nil {
			return nil, nil, "", err
		}
	}
	store := memory.New()
	disc, err := discovery.New(store, store, nil, 1, logging.Discard())
	if err != nil {
		return nil, nil, "", err
	}
	if err := disc.Import(ctx, t); err != nil {
		return nil, nil, "", err
	}
	root, err := pickRoot(t, rootName)
	if err != nil {
		return nil, nil, "", err
	}
	return disc, store, root, nil
}

func pickRoot(t *subdomain.Tree, name string) (string, error) {
	if name != "" {
		return discovery.RegistrableRoot(name)
	}
	roots := t.Roots()
	if len(roots) == 0 {
		return "", fmt.Errorf("seed is empty")
	}
	n, _ := t.Get(roots[0])
	return discovery.RegistrableRoot(n.Name)
}
