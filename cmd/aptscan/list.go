package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kelll31/aptscan/internal/model"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active scans and recent history",
		RunE:  runList,
	}
	cmd.Flags().IntP("history", "H", 10, "Number of history entries to show (0 to hide)")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	historyLimit, _ := cmd.Flags().GetInt("history")
	out := cmd.OutOrStdout()

	active := a.orchestrator.List()
	if len(active) == 0 {
		fmt.Fprintln(out, "no active scans")
	} else {
		tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tPROGRESS\tPHASE\tCREATED")
		for _, s := range active {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
				s.ID, s.Target, s.Status, s.Progress, s.Phase, s.CreatedAt.Format(time.RFC3339))
		}
		tw.Flush()
	}

	if historyLimit > 0 {
		history := a.orchestrator.History(historyLimit)
		if len(history) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "history:")
			tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tDURATION\tFINDINGS")
			for _, s := range history {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
					s.ID, s.Target, s.Status, s.Duration.Round(time.Second), len(s.Results.Vulnerabilities))
			}
			tw.Flush()
		}
	}
	return nil
}

// printSummary writes a short result summary for a finished scan.
func printSummary(out io.Writer, s *model.Scan) {
	fmt.Fprintf(out, "scan %s %s in %s\n", s.ID, s.Status, s.Duration.Round(time.Second))
	fmt.Fprintf(out, "  hosts: %d  open ports: %d  services: %d  risk score: %.1f\n",
		len(s.Results.Hosts), len(s.Results.OpenPorts), len(s.Results.Services), s.Results.RiskScore)
	counts := model.CountBySeverity(s.Results.Vulnerabilities)
	if counts.Total() > 0 {
		fmt.Fprintf(out, "  vulnerabilities: %d (critical=%d high=%d medium=%d low=%d info=%d)\n",
			counts.Total(), counts.Critical, counts.High, counts.Medium, counts.Low, counts.Info)
	}
	for _, d := range s.Errors {
		fmt.Fprintf(out, "  error: [%s] %s\n", d.Type, d.Message)
	}
	for _, d := range s.Warnings {
		fmt.Fprintf(out, "  warning: [%s] %s\n", d.Type, d.Message)
	}
}
