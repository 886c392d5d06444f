package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/jot"
)

var newBody string

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a note and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var extra []jot.Option
		if cmd.Flag("body").Changed {
			extra = append(extra, jot.WithDefaultBody(newBody))
		}
		nb, err := openNotebook(cmd, extra...)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer closeNotebook(nb)

		id, err := nb.CreateNote(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to create note: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVar(&newBody, "body", "", "Body of the new note (default \"# Title of notes\")")
}
