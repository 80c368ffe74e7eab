package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipevet/internal/monitor"
)

var monitorInterval time.Duration

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "polling interval")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal dashboard for a running daemon",
	Long: `Run a live terminal dashboard polling a pipevetd daemon for its health
tier, per-stage success rates, request throughput, and latency.

Key bindings:
  q  quit
  r  force a refresh

Examples:
  # Watch the local daemon
  pvet monitor

  # Watch a remote daemon, polling every 2 seconds
  pvet monitor --server http://pipeline-host:9190 --interval 2s`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	model := monitor.NewModel(serverURL, monitorInterval)

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}
