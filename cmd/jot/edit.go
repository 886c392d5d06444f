package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/jot"
)

var editStdin bool

var editCmd = &cobra.Command{
	Use:   "edit <id> [text...]",
	Short: "Replace the body of a note",
	Long: `Select the note, put the text in the edit buffer and flush it to the store.
With --stdin the text is read from standard input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		text := strings.Join(args[1:], " ")
		if editStdin {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}

		nb, err := openNotebook(cmd)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer closeNotebook(nb)

		if err := editNote(cmd.Context(), nb, id, text); err != nil {
			return fmt.Errorf("failed to edit note: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved", id)
		return nil
	},
}

// editNote waits for id to be listed, selects it and writes text to it.
func editNote(ctx context.Context, nb *jot.Notebook, id, text string) error {
	if _, err := waitFor(ctx, nb, waitTimeout, hasNote(id)); err != nil {
		return fmt.Errorf("note %s: %w", id, err)
	}
	if err := nb.SelectNote(ctx, id); err != nil {
		return err
	}
	if err := nb.EditBuffer(ctx, text); err != nil {
		return err
	}
	return nb.Flush(ctx)
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().BoolVar(&editStdin, "stdin", false, "Read the text from standard input")
}
