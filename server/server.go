// Package server wires the relay's HTTP and WebSocket surface.
package server

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callscribe/callscribe/config"
	"github.com/callscribe/callscribe/llm"
	"github.com/callscribe/callscribe/metrics"
	"github.com/callscribe/callscribe/session"
	"github.com/callscribe/callscribe/stt"
)

// Analyzer extracts structured insights from a finished transcript.
// Satisfied by *llm.Extractor.
type Analyzer interface {
	Extract(ctx context.Context, transcript string) (*llm.Analysis, error)
}

// Server is the relay's HTTP server. One relay session is created per
// accepted /stream connection; sessions share nothing beyond the read-only
// configuration.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	logger   *log.Logger
	m        *metrics.Metrics
	analyzer Analyzer
}

// New builds the fiber app and registers all routes.
func New(cfg *config.Config, analyzer Analyzer, logger *log.Logger) *Server {
	reg := prometheus.NewRegistry()

	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		cfg:      cfg,
		logger:   logger,
		m:        metrics.New(reg),
		analyzer: analyzer,
	}

	s.app.Use(cors.New())

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	s.app.Post("/analyze", s.handleAnalyze)

	// /stream requires a WebSocket upgrade.
	s.app.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/stream", websocket.New(s.handleStream))

	return s
}

// Listen serves until the listener fails.
func (s *Server) Listen() error {
	addr := ":" + s.cfg.Port
	s.logger.Info("server listening", "addr", addr)
	return s.app.Listen(addr)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// handleStream owns one client connection for its lifetime.
func (s *Server) handleStream(ws *websocket.Conn) {
	defer ws.Close()

	sttCfg := stt.DefaultConfig(s.cfg.AssemblyAIURL, s.cfg.AssemblyAIAPIKey)
	sess := session.New(ws, func(h stt.Handler) session.UpstreamLink {
		return stt.Open(sttCfg, h, s.logger)
	}, s.logger, s.m)
	sess.Run()
}

type analyzeRequest struct {
	Transcript string `json:"transcript"`
}

// handleAnalyze forwards a finished transcript to the analyzer and returns
// the validated structured result.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		s.m.AnalysisRequests.WithLabelValues("bad_request").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if strings.TrimSpace(req.Transcript) == "" {
		s.m.AnalysisRequests.WithLabelValues("bad_request").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`transcript` field is required"})
	}

	analysis, err := s.analyzer.Extract(c.UserContext(), req.Transcript)
	if err != nil {
		s.m.AnalysisRequests.WithLabelValues("failed").Inc()
		s.logger.Error("transcript analysis failed", "err", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "analysis failed"})
	}

	s.m.AnalysisRequests.WithLabelValues("ok").Inc()
	return c.JSON(analysis)
}
