package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for aptscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aptscan",
		Short: "Client for the security-scanning dashboard service",
		Long: `aptscan drives scans on a remote scanning service: it creates and
starts scans, tracks them through their lifecycle, polls and streams
progress, and keeps bounded local history across sessions.

Run against a live service, or start the bundled demo service
(cmd/demoserver) and point aptscan at it. With --offline no network is
used at all; a deterministic simulator answers every request.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: XDG config dir)")
	cmd.PersistentFlags().Bool("offline", false, "Use the offline transport simulator instead of the network")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewStopCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
