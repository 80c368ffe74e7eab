package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the BubbleTea dashboard model.
type Model struct {
	serverURL  string
	interval   time.Duration
	lastUpdate time.Time
	sample     Sample
	err        error
	quitting   bool

	// Derived request throughput in req/s from consecutive samples.
	throughput float64

	latencyHistory    []float64
	throughputHistory []float64

	successProgress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	degradedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard model polling the daemon at serverURL.
func NewModel(serverURL string, interval time.Duration) Model {
	return Model{
		serverURL:         serverURL,
		interval:          interval,
		latencyHistory:    make([]float64, 0, historySize),
		throughputHistory: make([]float64, 0, historySize),
		successProgress: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// overallSuccessRate folds per-stage rollups weighted by sample count. A
// window without samples reads as fully passing.
func overallSuccessRate(stages []v1.StageHealth) float64 {
	var total, passed int
	for _, st := range stages {
		total += st.Total
		passed += st.Passed
	}
	if total == 0 {
		return 1.0
	}
	return float64(passed) / float64(total)
}

// tierBadge renders the health tier as a colored badge.
func tierBadge(tier string) string {
	switch tier {
	case "healthy":
		return healthyStyle.Render("✓ HEALTHY")
	case "warning":
		return warningStyle.Render("⚠ WARNING")
	case "degraded":
		return degradedStyle.Render("⚠ DEGRADED")
	case "critical":
		return errorStyle.Render("✗ CRITICAL")
	default:
		return dimStyle.Render("? UNKNOWN")
	}
}

// rateBadge marks a stage success rate against the health thresholds.
func rateBadge(successRate float64) string {
	if successRate >= 0.80 {
		return healthyStyle.Render("[✓]")
	} else if successRate >= 0.50 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline renders a sparkline chart from historical data.
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type sampleMsg Sample
type errMsg error

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSample(m.serverURL),
	)
}

// tick creates a tick command for auto-refresh.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSample polls the daemon once.
func fetchSample(serverURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sample, err := NewClient(serverURL).Fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return sampleMsg(sample)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSample(m.serverURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchSample(m.serverURL),
		)

	case sampleMsg:
		next := Sample(msg)
		m.throughput = deriveThroughput(m.sample, next)
		m.latencyHistory = appendToHistory(m.latencyHistory, next.AvgLatencyMS)
		m.throughputHistory = appendToHistory(m.throughputHistory, m.throughput)
		m.sample = next
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// deriveThroughput turns two counter observations into req/s. The first
// sample and counter resets read as zero.
func deriveThroughput(prev, next Sample) float64 {
	if prev.At.IsZero() {
		return 0
	}
	dt := next.At.Sub(prev.At).Seconds()
	delta := next.RequestsTotal - prev.RequestsTotal
	if dt <= 0 || delta < 0 {
		return 0
	}
	return delta / dt
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.err != nil {
		return m.renderError()
	}

	return m.renderDashboard()
}

// renderError renders the unreachable-daemon view.
func (m Model) renderError() string {
	header := headerStyle.Render(" pipevet monitor ")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach pipevetd") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. pipevetd is running") + "\n"
	content += dimStyle.Render("  2. --server points at its listen address") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

// renderDashboard renders the health table and request charts.
func (m Model) renderDashboard() string {
	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	header := headerStyle.Render(" pipevet monitor ")
	headerLine := fmt.Sprintf("%s   %s %s   %s",
		tierBadge(m.sample.Tier),
		dimStyle.Render("Active:"),
		valueStyle.Render(fmt.Sprintf("%d", m.sample.ActiveSessions)),
		dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	content += "\n" + sectionStyle.Render("┃ Stages") + "\n"
	content += m.renderStageTable()

	content += "\n" + sectionStyle.Render("┃ Requests") + "\n"

	throughputSparkline := createSparkline(m.throughputHistory)
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.throughput)) +
		"   " + throughputSparkline + "\n"

	latencySparkline := createSparkline(m.latencyHistory)
	content += labelStyle.Render("  Latency (avg): ") +
		valueStyle.Render(FormatLatency(m.sample.AvgLatencyMS/1000)) +
		"   " + latencySparkline + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))

	content += "\n" + footer

	return containerStyle.Render(content)
}

// renderStageTable renders the per-stage short-window rollup.
func (m Model) renderStageTable() string {
	if len(m.sample.Stages) == 0 {
		return dimStyle.Render("  no validations in window") + "\n"
	}

	var content string
	content += dimStyle.Render(fmt.Sprintf("  %-10s %8s %8s %10s %10s %7s",
		"STAGE", "TOTAL", "PASSED", "SUCCESS", "AVG MS", "FIXED")) + "\n"
	for _, st := range m.sample.Stages {
		content += labelStyle.Render(fmt.Sprintf("  %-10s", st.Stage)) +
			valueStyle.Render(fmt.Sprintf(" %8s %8s",
				FormatCount(st.Total), FormatCount(st.Passed))) +
			fmt.Sprintf(" %6s %s", FormatPercentage(st.SuccessRate), rateBadge(st.SuccessRate)) +
			valueStyle.Render(fmt.Sprintf(" %9.0f", st.AvgDurationMS)) +
			valueStyle.Render(fmt.Sprintf(" %7s", FormatCount(st.AutoFixed))) + "\n"
	}

	overall := overallSuccessRate(m.sample.Stages)
	content += labelStyle.Render("  Overall: ") +
		m.successProgress.ViewAs(overall) +
		" " + dimStyle.Render(FormatPercentage(overall)) + "\n"

	return content
}
