package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kelll31/aptscan/internal/model"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics over all known scans",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	stats := a.orchestrator.Stats()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "total scans:      %d\n", stats.Total)
	fmt.Fprintf(out, "today:            %d\n", stats.Today)
	fmt.Fprintf(out, "this week:        %d\n", stats.ThisWeek)
	fmt.Fprintf(out, "this month:       %d\n", stats.ThisMonth)
	fmt.Fprintf(out, "success rate:     %.1f%%\n", stats.SuccessRate*100)
	fmt.Fprintf(out, "average duration: %s\n", stats.AverageDuration.Round(time.Second))
	fmt.Fprintf(out, "total findings:   %d\n", stats.TotalFindings)
	fmt.Fprintf(out, "hosts seen:       %d\n", stats.TotalHosts)
	fmt.Fprintf(out, "services seen:    %d\n", stats.TotalServices)
	fmt.Fprintf(out, "open ports seen:  %d\n", stats.TotalOpenPorts)

	if len(stats.ByStatus) > 0 {
		fmt.Fprintln(out, "by status:")
		keys := make([]string, 0, len(stats.ByStatus))
		for k := range stats.ByStatus {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-10s %d\n", k, stats.ByStatus[model.ScanStatus(k)])
		}
	}
	return nil
}
