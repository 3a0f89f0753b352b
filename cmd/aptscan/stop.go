package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewStopCmd creates the stop command.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <scan-id>",
		Short: "Stop a running or paused scan",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	if err := a.orchestrator.Stop(ctx, id); err != nil {
		return fmt.Errorf("stop scan %s: %w", id, err)
	}

	s, err := a.orchestrator.Get(id)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), s)
	return nil
}
