// Command raknetd runs a raknet listener on a UDP socket and manages its block list.
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "raknetd",
		Short: "A raknet server",
		Long: `raknetd accepts raknet connections on a UDP socket.

It answers discovery pings with the configured descriptor, completes the
connection handshake and keeps every session alive until it times out or
disconnects. Session state and protocol counters are served over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		blockCmd(),
		unblockCmd(),
		blocksCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
