package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/orchestrator"
	"github.com/fyrsmithlabs/pipevet/internal/secrets"
	"github.com/fyrsmithlabs/pipevet/internal/store"
	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

// defaultSimilarLimit caps GET /v1/sessions/similar when k is absent.
const defaultSimilarLimit = 5

// Server is the REST facade over the validation engine.
type Server struct {
	echo     *echo.Echo
	svc      orchestrator.Service
	searcher store.SimilaritySearcher
	auditor  *secrets.Detector
	metrics  *httpMetrics
	logger   *zap.Logger
	cfg      config.ServerConfig
}

// NewServer builds the facade. The searcher and auditor are optional; the
// routes backed by an absent one answer 501.
func NewServer(svc orchestrator.Service, searcher store.SimilaritySearcher, auditor *secrets.Detector, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("orchestrator service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		svc:      svc,
		searcher: searcher,
		auditor:  auditor,
		metrics:  newHTTPMetrics(),
		logger:   logger,
		cfg:      cfg,
	}
	e.Use(s.metrics.middleware())

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleLiveness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	g := s.echo.Group("/v1")
	g.GET("/health", s.handleHealth)
	g.GET("/sessions/active/count", s.handleActiveCount)
	g.GET("/sessions/similar", s.handleSimilar)
	g.GET("/sessions/:id/report", s.handleReport)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(c echo.Context) error {
	sys := s.svc.GetSystemHealth(c.Request().Context())
	if !sys.Success {
		return c.JSON(http.StatusServiceUnavailable, v1.NewError(v1.CodeHealthUnavailable, sys.Error))
	}
	return c.JSON(http.StatusOK, ToHealthResponse(*sys))
}

func (s *Server) handleActiveCount(c echo.Context) error {
	return c.JSON(http.StatusOK, v1.ActiveCountResponse{ActiveSessions: s.svc.ActiveSessionCount()})
}

func (s *Server) handleReport(c echo.Context) error {
	id := c.Param("id")
	rep := s.svc.GetSessionReport(c.Request().Context(), id)
	if !rep.Success {
		if strings.HasPrefix(rep.Error, "unknown session") {
			return c.JSON(http.StatusNotFound, v1.NewError(v1.CodeSessionNotFound, rep.Error))
		}
		if strings.Contains(rep.Error, "cannot be empty") {
			return c.JSON(http.StatusBadRequest, v1.NewError(v1.CodeBadRequest, rep.Error))
		}
		return c.JSON(http.StatusInternalServerError, v1.NewError(v1.CodeInternal, rep.Error))
	}

	out := ToSessionReport(*rep)
	if c.QueryParam("audit") == "1" {
		if s.auditor == nil {
			return c.JSON(http.StatusNotImplemented, v1.NewError(v1.CodeAuditUnavailable, "deep audit is not configured"))
		}
		out.Audit = s.auditSnapshots(rep)
	}
	return c.JSON(http.StatusOK, out)
}

// auditSnapshots runs the gitleaks detector over every archived snapshot of
// the report and prefixes each finding location with its stage.
func (s *Server) auditSnapshots(rep *orchestrator.SessionReport) []v1.AuditFinding {
	var all []secrets.AuditFinding
	for _, snap := range rep.Snapshots {
		for _, f := range s.auditor.AuditContext(snap.Context) {
			f.Location = string(snap.Stage) + "." + f.Location
			all = append(all, f)
		}
	}
	if len(all) > 0 {
		s.logger.Warn("credential audit produced findings",
			zap.String("session_id", rep.SessionID),
			zap.Int("findings", len(all)),
		)
	}
	return toAuditFindings(all)
}

func (s *Server) handleSimilar(c echo.Context) error {
	if s.searcher == nil {
		return c.JSON(http.StatusNotImplemented, v1.NewError(v1.CodeSimilarityUnavailable, "session similarity search is not configured"))
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, v1.NewError(v1.CodeBadRequest, "query parameter q is required"))
	}

	k := defaultSimilarLimit
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, v1.NewError(v1.CodeBadRequest, "query parameter k must be a positive integer"))
		}
		k = parsed
	}

	matches, err := s.searcher.SimilarSessions(c.Request().Context(), query, k)
	if err != nil {
		s.logger.Warn("similarity search failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, v1.NewError(v1.CodeInternal, "similarity search failed"))
	}

	return c.JSON(http.StatusOK, v1.SimilarSessionsResponse{
		Query:   query,
		Matches: toSimilarSessions(matches),
	})
}

// Start runs the server until ctx is cancelled, then shuts down within the
// configured timeout. Returns http.ErrServerClosed on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Shutdown stops the server outside the Start lifecycle.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests and embedding.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
