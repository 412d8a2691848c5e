package main

import (
	"context"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and connectivity state",
	RunE:  runStatus,
}

var statusDashboard bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusDashboard, "dashboard", false,
		"Include condition aggregates and worst fittings")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	online := tsClient.Probe.CheckNow(ctx)
	counts := tsClient.Queue.Summarize()

	if jsonOutput {
		out := map[string]interface{}{
			"online": online,
			"queue":  counts,
		}
		if statusDashboard {
			dashboard, err := tsClient.Report.Dashboard(ctx)
			if err != nil {
				return err
			}
			out["dashboard"] = dashboard
		}
		printJSON(out)
		return nil
	}

	if online {
		printSuccess("Online")
	} else {
		printWarning("Offline: entries queue locally until connectivity returns")
	}

	printInfo("Queue: %d pending, %d partial, %d failed",
		counts.Pending, counts.Partial, counts.Terminal)

	if counts.Terminal > 0 {
		printWarning("Failed entries stay visible until discarded; see 'tracksync entries --state failed'")
	}

	if statusDashboard {
		dashboard, err := tsClient.Report.Dashboard(ctx)
		if err != nil {
			return err
		}

		printInfo("\nEntries: %d total", dashboard.TotalEntries)
		for kind, n := range dashboard.ByKind {
			printInfo("  %-11s %d", kind, n)
		}
		if len(dashboard.WorstFittings) > 0 {
			printInfo("\nWorst fittings:")
			for _, grade := range dashboard.WorstFittings {
				printInfo("  %-9s %s", grade.Condition, grade.SubjectID)
			}
		}
	}

	return nil
}
