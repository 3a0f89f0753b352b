package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/orchestrator"
)

// NewScanCmd creates the scan command: it registers a scan for the
// given target, starts it, and follows it until a terminal state.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Start a scan and follow it to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	cmd.Flags().StringP("profile", "p", "", "Scan profile (quick, balanced, thorough)")
	cmd.Flags().StringP("type", "t", "network", "Scan type")
	cmd.Flags().StringSliceP("tag", "T", nil, "Tags to attach to the scan (repeatable)")
	cmd.Flags().Bool("force", false, "Start even if target validation fails")
	cmd.Flags().Bool("no-validate", false, "Skip target validation entirely")
	cmd.Flags().Bool("report", false, "Request a report once the scan completes")
	cmd.Flags().Bool("detach", false, "Start the scan and exit without watching it")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	profile, _ := cmd.Flags().GetString("profile")
	scanType, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	force, _ := cmd.Flags().GetBool("force")
	noValidate, _ := cmd.Flags().GetBool("no-validate")
	report, _ := cmd.Flags().GetBool("report")
	detach, _ := cmd.Flags().GetBool("detach")

	scan, err := a.orchestrator.Create(ctx, orchestrator.CreateRequest{
		Target:  args[0],
		Type:    scanType,
		Profile: profile,
		Tags:    tags,
		Options: model.ScanOptions{
			AutoReport:     report,
			ValidateTarget: !noValidate,
			Force:          force,
		},
		CreatedBy: "cli",
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scan %s created (target=%s profile=%s)\n", scan.ID, scan.Target, scan.Profile)

	// Subscribe before starting so no event is missed.
	events, cancel := a.orchestrator.Subscribe()
	defer cancel()

	if err := a.orchestrator.StartScan(ctx, scan.ID); err != nil {
		return err
	}
	if detach {
		fmt.Fprintf(cmd.OutOrStdout(), "scan %s started\n", scan.ID)
		return nil
	}

	return watchScan(ctx, cmd, a, scan.ID, events)
}

// watchScan follows a running scan until it reaches a terminal state.
// Interrupting the watch stops the scan before exiting.
func watchScan(ctx context.Context, cmd *cobra.Command, a *app, id string, events <-chan orchestrator.Event) error {
	out := cmd.OutOrStdout()
	lastProgress := -1

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "interrupted, stopping scan")
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.orchestrator.Stop(stopCtx, id); err != nil {
				return fmt.Errorf("stopping scan: %w", err)
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			if ev.Scan == nil || ev.Scan.ID != id {
				continue
			}
			if ev.Type == orchestrator.EventRemoved {
				return fmt.Errorf("scan %s was removed remotely", id)
			}
			if ev.Scan.Progress != lastProgress {
				lastProgress = ev.Scan.Progress
				fmt.Fprintf(out, "%3d%%  %-12s %s\n", ev.Scan.Progress, ev.Scan.Status, ev.Scan.Phase)
			}
			if ev.Scan.Status.IsTerminal() {
				printSummary(out, ev.Scan)
				if ev.Scan.Status != model.StatusCompleted {
					return fmt.Errorf("scan finished with status %s", ev.Scan.Status)
				}
				return nil
			}
		}
	}
}
