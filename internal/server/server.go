// Package server exposes the HTTP surface of the intake gateway: the
// capture WebSocket, session REST routes, health and metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
	"github.com/Raikerian/go-voice-intake/internal/gateway"
	"github.com/Raikerian/go-voice-intake/internal/metrics"
)

// Server wraps the HTTP listener and its routes.
type Server struct {
	logger   *zap.Logger
	cfg      *config.Config
	gateway  *gateway.Service
	openai   *openai.Client
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	server   *http.Server
}

func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	gatewayService *gateway.Service,
	openaiClient *openai.Client,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		logger:  logger,
		cfg:     cfg,
		gateway: gatewayService,
		openai:  openaiClient,
		metrics: m,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
		// No ReadTimeout: the capture WebSocket and large uploads are
		// long-lived by nature.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupRoutes configures HTTP API routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Capture client WebSocket endpoint
	mux.HandleFunc("GET /realtime/ws", s.handleWS)

	// Session monitoring endpoints
	mux.HandleFunc("GET /realtime/sessions", s.handleSessions)
	mux.HandleFunc("GET /realtime/sessions/{id}", s.handleSessionStatus)

	// Live notes endpoints
	mux.HandleFunc("GET /realtime/sessions/{id}/notes", s.handleGetNotes)
	mux.HandleFunc("PUT /realtime/sessions/{id}/notes", s.handlePutNotes)

	// SOAP finalization outside the voice loop
	mux.HandleFunc("POST /realtime/sessions/{id}/finalize", s.handleFinalize)

	// Session instructions debug aid
	mux.HandleFunc("GET /realtime/prompt", s.handlePrompt)

	// Upload transcription endpoint
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)

	// Health check endpoint
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())
}

// checkOrigin validates the Origin header of WebSocket upgrades against
// the configured allowlist. An empty allowlist admits everything, the
// development default.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin header.
		return true
	}

	if len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}

	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	s.logger.Warn("Rejected WebSocket origin", zap.String("origin", origin))

	return false
}

// Start begins listening. The listener is opened synchronously so bind
// errors fail startup.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
