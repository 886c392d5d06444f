package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/jot"
)

var (
	verbose     bool
	storeURI    string
	adapterName string
	quiescence  time.Duration
	token       string
	readOnly    bool
	versioning  bool
	waitTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jot",
	Short: "A note-taking client over files, SQLite or a jot server",
	Long: `jot keeps a live list of notes, a sticky selection and an edit buffer
that is written back to the store after a quiet period.

The store is a URI: a directory of Markdown files, sqlite:<path>, mem:,
or ws://host:port of a running 'jot serve'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and runs it until it
// returns or the process is interrupted. Commands report failures as errors so
// that their deferred closes, including the final flush, always run.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&storeURI, "store", "s", "", "Store URI (default: $JOT_STORE, the nearest .jot root, or ~/.jot/notes)")
	flags.StringVar(&adapterName, "adapter", "", "Force the adapter: fs, sqlite, memory or remote")
	flags.DurationVar(&quiescence, "quiescence", 0, "Quiet period before an edit is written (default 500ms)")
	flags.StringVar(&token, "token", os.Getenv("JOT_TOKEN"), "Bearer token for a remote store")
	flags.BoolVar(&readOnly, "read-only", false, "Reject every write")
	flags.BoolVar(&versioning, "versioning", false, "Commit every write with git (fs only; default: on inside a git repository)")
	flags.DurationVar(&waitTimeout, "timeout", 10*time.Second, "How long to wait for the store to report changes")
}

// resolveStore returns the store URI from --store, $JOT_STORE or discovery.
func resolveStore() (string, error) {
	if storeURI != "" {
		return storeURI, nil
	}
	if env := os.Getenv("JOT_STORE"); env != "" {
		return env, nil
	}
	return jot.DefaultStore()
}

func storeOptions(cmd *cobra.Command) []jot.Option {
	opts := []jot.Option{
		jot.WithLogger(slog.Default()),
		jot.WithAdapter(adapterName),
		jot.WithToken(token),
		jot.WithReadOnly(readOnly),
		jot.WithQuiescence(quiescence),
	}
	if f := cmd.Flag("versioning"); f != nil && f.Changed {
		opts = append(opts, jot.WithVersioning(versioning), jot.WithAutoInit(versioning))
	}
	return opts
}

// openNotebook opens the configured store and starts a core on it.
func openNotebook(cmd *cobra.Command, extra ...jot.Option) (*jot.Notebook, error) {
	uri, err := resolveStore()
	if err != nil {
		return nil, err
	}
	slog.Debug("opening store", "uri", uri)
	return jot.New(cmd.Context(), uri, append(storeOptions(cmd), extra...)...)
}

// openStore opens the configured store without a core.
func openStore(cmd *cobra.Command, extra ...jot.Option) (jot.Store, error) {
	uri, err := resolveStore()
	if err != nil {
		return nil, err
	}
	slog.Debug("opening store", "uri", uri)
	return jot.OpenStore(cmd.Context(), uri, append(storeOptions(cmd), extra...)...)
}

// closeNotebook flushes pending edits, bounded by --timeout.
func closeNotebook(nb *jot.Notebook) {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := nb.Close(ctx); err != nil {
		slog.Error("close failed", "error", err)
	}
}

func closeStore(store jot.Store) {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Error("close failed", "error", err)
		}
	}
}
