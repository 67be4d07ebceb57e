package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/DaylightNebula/RakNet/internal/protocol"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("raknetd %s (%s)\n", version, commit)
			fmt.Printf("  Protocol:   %d\n", protocol.PROTOCOL_VERSION)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
