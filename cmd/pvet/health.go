package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipevet/internal/monitor"
	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

var healthJSON bool

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output as JSON")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show pipeline health rollups",
	Long: `Show the pipeline health tier and per-stage validation rollups from a
running pipevetd daemon.

Examples:
  # Human-readable health summary
  pvet health

  # Machine-readable output
  pvet health --json

  # Query a different daemon
  pvet health --server http://pipeline-host:9190`,
	RunE: runHealthCmd,
}

func runHealthCmd(cmd *cobra.Command, args []string) error {
	var health v1.HealthResponse
	if err := getJSON(serverURL+"/v1/health", &health); err != nil {
		return err
	}

	if healthJSON {
		return outputJSON(cmd.OutOrStdout(), health)
	}

	printHealth(cmd.OutOrStdout(), health)
	return nil
}

func printHealth(w io.Writer, health v1.HealthResponse) {
	fmt.Fprintf(w, "Tier:            %s\n", health.Tier)
	fmt.Fprintf(w, "Active sessions: %d\n", health.ActiveSessions)
	fmt.Fprintf(w, "Generated at:    %s\n\n", health.GeneratedAt.Format("2006-01-02 15:04:05"))

	printWindow(w, "Short window", health.Short)
	printWindow(w, "Long window", health.Long)
}

func printWindow(w io.Writer, label string, window v1.WindowReport) {
	fmt.Fprintf(w, "%s (%s):\n", label, time.Duration(window.WindowSeconds)*time.Second)

	if len(window.Stages) == 0 {
		fmt.Fprintln(w, "  no validations in window")
		fmt.Fprintln(w)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STAGE\tTOTAL\tPASSED\tSUCCESS\tAVG MS\tFIXED")
	for _, stage := range window.Stages {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\t%.0f\t%d\n",
			stage.Stage,
			stage.Total,
			stage.Passed,
			monitor.FormatPercentage(stage.SuccessRate),
			stage.AvgDurationMS,
			stage.AutoFixed,
		)
	}
	tw.Flush()
	fmt.Fprintln(w)
}
