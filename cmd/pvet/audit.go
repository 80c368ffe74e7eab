package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

var auditJSON bool

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output as JSON")
}

var auditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Deep-scan a session's persisted context for credentials",
	Long: `Run the deep credential scan over the persisted context snapshots of one
session. The scan uses the daemon's gitleaks ruleset, so it catches
credentials the inline scrubber's faster rules miss.

Findings carry a rule ID, the dotted context location, and a four-character
preview; the matched secret itself is never printed.

The command exits with status 2 when credentials are found, so it can gate
pipelines in CI.

Examples:
  # Audit an archived session
  pvet audit sess-20260824-001

  # Machine-readable findings
  pvet audit sess-20260824-001 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	var report v1.SessionReport
	if err := getJSON(serverURL+"/v1/sessions/"+sessionID+"/report?audit=1", &report); err != nil {
		return err
	}

	if auditJSON {
		if err := outputJSON(cmd.OutOrStdout(), report.Audit); err != nil {
			return err
		}
	} else {
		printAudit(cmd.OutOrStdout(), sessionID, report.Audit)
	}

	if len(report.Audit) > 0 {
		return validationFailed("%d credential finding(s) in session %s", len(report.Audit), sessionID)
	}
	return nil
}

func printAudit(w io.Writer, sessionID string, findings []v1.AuditFinding) {
	if len(findings) == 0 {
		fmt.Fprintf(w, "No credentials detected in session %s\n", sessionID)
		return
	}

	fmt.Fprintf(w, "Credential findings in session %s (%d):\n", sessionID, len(findings))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  RULE\tLOCATION\tPREVIEW")
	for _, finding := range findings {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", finding.RuleID, finding.Location, finding.Preview)
	}
	tw.Flush()
}
