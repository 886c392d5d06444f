package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	jotlifecycle "github.com/aretw0/jot/pkg/adapters/lifecycle"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the view every time it changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nb, err := openNotebook(cmd)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer closeNotebook(nb)

		ctx := cmd.Context()
		src := jotlifecycle.NewSource(nb.Watch(ctx))
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watching: %w", err)
		}

		out := cmd.OutOrStdout()
		encoder := json.NewEncoder(out)
		for e := range src.Events() {
			ve, ok := e.(jotlifecycle.ViewEvent)
			if !ok {
				continue
			}
			if watchJSON {
				if err := encoder.Encode(ve.View); err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
				continue
			}
			fmt.Fprintln(out, ve.String())
			current := ""
			if ve.View.Current != nil {
				current = ve.View.Current.ID
			}
			printNotes(out, ve.View.Notes, current)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Emit one JSON view per line")
}
