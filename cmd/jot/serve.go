package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/jot/pkg/adapters/remote"
)

var (
	serveAddr   string
	serveSecret string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Share the configured store over websocket",
	Long: `Serve the configured store to 'jot --store ws://host:port' clients.
With --secret, clients must present a token issued by 'jot token'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer closeStore(store)

		if serveSecret == "" {
			slog.Warn("serving without authentication")
		}
		server := remote.NewServer(store, remote.ServerConfig{
			Secret: []byte(serveSecret),
			Logger: slog.Default(),
		})
		if err := server.ListenAndServe(cmd.Context(), serveAddr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7070", "Listen address")
	serveCmd.Flags().StringVar(&serveSecret, "secret", os.Getenv("JOT_SECRET"), "HS256 secret for client tokens")
}
