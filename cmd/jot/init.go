package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/jot"
	"github.com/aretw0/jot/pkg/adapters/fs"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Mark a directory as a jot notes root",
	Long: `Create the .jot directory that 'jot' discovers from any subdirectory.
With --versioning the directory is also turned into a git repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve directory: %w", err)
		}
		if err := os.MkdirAll(filepath.Join(abs, fs.DefaultSystemDir), 0o755); err != nil {
			return fmt.Errorf("failed to create system directory: %w", err)
		}

		opts := append(storeOptions(cmd), jot.WithAdapter(jot.AdapterFS), jot.WithWatch(false), jot.WithDevSafety(false))
		store, err := jot.OpenStore(cmd.Context(), abs, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize notes root: %w", err)
		}
		closeStore(store)

		fmt.Fprintln(cmd.OutOrStdout(), "Initialized jot notes in", abs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
