package mcpdiag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/httpapi"
	"github.com/fyrsmithlabs/pipevet/internal/orchestrator"
	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

// Server exposes diagnostic tools over MCP.
type Server struct {
	mcp     *mcp.Server
	svc     orchestrator.Service
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the diagnostic server.
type Config struct {
	// Name is the server implementation name (default: "pipevet-diag")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "pipevet-diag",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates the diagnostic server over an orchestrator service.
func NewServer(cfg *Config, svc orchestrator.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if svc == nil {
		return nil, fmt.Errorf("orchestrator service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		svc:     svc,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pipeline_health",
		Description: "Report the pipeline health tier, per-stage rollups, and the active session count",
	}, s.handlePipelineHealth)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_report",
		Description: "Report one validation session by ID, active or archived",
	}, s.handleSessionReport)
}

type healthArgs struct{}

func (s *Server) handlePipelineHealth(ctx context.Context, _ *mcp.CallToolRequest, _ healthArgs) (*mcp.CallToolResult, v1.HealthResponse, error) {
	start := time.Now()
	var toolErr error
	defer func() {
		s.metrics.RecordInvocation(ctx, "pipeline_health", time.Since(start), toolErr)
	}()

	sys := s.svc.GetSystemHealth(ctx)
	if !sys.Success {
		toolErr = errors.New(sys.Error)
		return nil, v1.HealthResponse{}, toolErr
	}

	out := httpapi.ToHealthResponse(*sys)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("pipeline tier %s with %d active sessions", out.Tier, out.ActiveSessions)},
		},
	}, out, nil
}

type sessionReportArgs struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
}

func (s *Server) handleSessionReport(ctx context.Context, _ *mcp.CallToolRequest, args sessionReportArgs) (*mcp.CallToolResult, v1.SessionReport, error) {
	start := time.Now()
	var toolErr error
	defer func() {
		s.metrics.RecordInvocation(ctx, "session_report", time.Since(start), toolErr)
	}()

	if args.SessionID == "" {
		toolErr = errors.New("session_id is required")
		return nil, v1.SessionReport{}, toolErr
	}

	rep := s.svc.GetSessionReport(ctx, args.SessionID)
	if !rep.Success {
		toolErr = errors.New(rep.Error)
		return nil, v1.SessionReport{}, toolErr
	}

	out := httpapi.ToSessionReport(*rep)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("session %s is %s in state %s", out.SessionID, out.Status, out.State)},
		},
	}, out, nil
}

// Run serves on the stdio transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting diagnostic MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
