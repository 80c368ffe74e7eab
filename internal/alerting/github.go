package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/pipevet/internal/config"
)

// GitHubSink opens one issue per critical alert in the configured repo.
type GitHubSink struct {
	client *github.Client
	owner  string
	repo   string
	labels []string
	logger *zap.Logger
}

// NewGitHubSink creates a GitHub issue sink with a static-token client.
func NewGitHubSink(ctx context.Context, cfg config.GitHubAlertConfig, logger *zap.Logger) (*GitHubSink, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github sink requires owner and repo")
	}
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("github sink token not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = []string{"pipeline-critical"}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	tc := oauth2.NewClient(ctx, ts)

	return &GitHubSink{
		client: github.NewClient(tc),
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		labels: labels,
		logger: logger,
	}, nil
}

// Name identifies the sink.
func (s *GitHubSink) Name() string { return "github" }

// NotifyCritical opens an issue describing the failed session.
func (s *GitHubSink) NotifyCritical(ctx context.Context, sessionID string, details map[string]interface{}) error {
	title := fmt.Sprintf("Critical pipeline session %s", sessionID)
	body := renderIssueBody(sessionID, details)

	issue, _, err := s.client.Issues.Create(ctx, s.owner, s.repo, &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &s.labels,
	})
	if err != nil {
		return fmt.Errorf("create alert issue: %w", err)
	}

	s.logger.Info("alert issue opened",
		zap.String("session_id", sessionID),
		zap.String("url", issue.GetHTMLURL()))
	return nil
}

// renderIssueBody formats the alert details as a markdown list with
// deterministic key order.
func renderIssueBody(sessionID string, details map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session `%s` failed business validation.\n\n", sessionID)

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- **%s**: %v\n", k, details[k])
	}
	return b.String()
}

var _ Sink = (*GitHubSink)(nil)
