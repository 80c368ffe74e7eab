package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

var reportJSON bool

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Output as JSON")
}

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Show the validation report for one session",
	Long: `Show the validation report for one session, active or archived.

The command exits with status 2 when the session failed validation, so
scripts can gate on the outcome.

Examples:
  # Human-readable report
  pvet report sess-20260824-001

  # Full report as JSON
  pvet report sess-20260824-001 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReportCmd,
}

func runReportCmd(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	var report v1.SessionReport
	if err := getJSON(serverURL+"/v1/sessions/"+sessionID+"/report", &report); err != nil {
		return err
	}

	if reportJSON {
		if err := outputJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if report.Status == "failed" {
		return validationFailed("session %s failed validation", sessionID)
	}
	return nil
}

func printReport(w io.Writer, report v1.SessionReport) {
	fmt.Fprintf(w, "Session: %s", report.SessionID)
	if report.Owner != "" {
		fmt.Fprintf(w, " (owner %s)", report.Owner)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "State:   %s\n", report.State)
	fmt.Fprintf(w, "Status:  %s\n", report.Status)
	fmt.Fprintf(w, "Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	if report.CompletedAt != nil {
		fmt.Fprintf(w, "Completed: %s\n", report.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)

	if len(report.Stages) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tATTEMPTS\tPASSED\tSEVERITY\tMS\tFIXED")
		for _, row := range report.Stages {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n",
				row.Stage, row.Attempts, yesNo(row.Passed), row.Severity, row.DurationMS, yesNo(row.AutoFixed))
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(report.Issues) > 0 {
		fmt.Fprintf(w, "Issues (%d):\n", len(report.Issues))
		for _, issue := range report.Issues {
			source := issue.Type
			if issue.Stage != "" {
				source = issue.Stage + "/" + issue.Type
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", issue.Severity, source, issue.Description)
		}
		fmt.Fprintln(w)
	}

	if len(report.AutoFixes) > 0 {
		fmt.Fprintf(w, "Auto fixes (%d):\n", len(report.AutoFixes))
		for _, fix := range report.AutoFixes {
			fmt.Fprintf(w, "  %s: %s\n", fix.Stage, fix.FixType)
		}
		fmt.Fprintln(w)
	}

	if report.Quality != nil {
		fmt.Fprintf(w, "Quality (overall valid: %s):\n", yesNo(report.Quality.OverallValid))
		printScores(w, report.Quality.Scores)
		for _, rec := range report.Quality.Recommendations {
			fmt.Fprintf(w, "  recommendation: %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	if report.Performance != nil {
		fmt.Fprintf(w, "Performance: %d ms total, score %d\n", report.Performance.TotalDurationMS, report.Performance.Score)
	}
}

func printScores(w io.Writer, scores map[string]float64) {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %.2f\n", k, scores[k])
	}
}
