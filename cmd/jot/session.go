package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/jot"
)

const sessionHelp = `:ls          list notes
:new         create a note and select it
:sel <id>    select a note
:rm <id>     delete a note
:w           write the buffer now
:q           quit
anything else replaces the edit buffer`

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Edit notes interactively, one line at a time",
	Long:  "Read commands from standard input.\n\n" + sessionHelp,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nb, err := openNotebook(cmd)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer closeNotebook(nb)

		if err := runSession(cmd.Context(), nb, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("session failed: %w", err)
		}
		return nil
	},
}

// runSession executes commands read from in until :q, EOF or ctx is done.
// Store failures are reported on out and the session goes on.
func runSession(ctx context.Context, nb *jot.Notebook, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := sessionLine(ctx, nb, line, out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func sessionLine(ctx context.Context, nb *jot.Notebook, line string, out io.Writer) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ":q":
		return true, nb.Flush(ctx)
	case ":ls":
		v := nb.View()
		current := ""
		if v.Current != nil {
			current = v.Current.ID
		}
		printNotes(out, v.Notes, current)
	case ":new":
		id, err := nb.CreateNote(ctx)
		if err != nil {
			return false, err
		}
		if _, err := waitFor(ctx, nb, waitTimeout, selected(id)); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "created", id)
	case ":sel":
		if arg == "" {
			return false, errors.New("usage: :sel <id>")
		}
		if err := nb.SelectNote(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(out, nb.View().Buffer)
	case ":rm":
		if arg == "" {
			return false, errors.New("usage: :rm <id>")
		}
		if err := nb.DeleteNote(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "deleted", arg)
	case ":w":
		if err := nb.Flush(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "written")
	case ":help", ":h":
		fmt.Fprintln(out, sessionHelp)
	default:
		if strings.HasPrefix(cmd, ":") {
			return false, fmt.Errorf("unknown command %s", cmd)
		}
		return false, nb.EditBuffer(ctx, line)
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}
