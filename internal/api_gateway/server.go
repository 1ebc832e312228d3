package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/handler"
	"github.com/pawnmarket-contract-engine/internal/api_gateway/service"
	"github.com/pawnmarket-contract-engine/internal/config"
)

const maxHeaderBytes = 64 << 10

// Server exposes the contract action API over HTTP
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer wires handlers and middleware onto a fresh gin engine.
func NewServer(log *slog.Logger, cfg *config.Config, rdb redis.Cmdable, actionService service.ActionService, evidenceService service.EvidenceService) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	setupRouter(log, engine, cfg,
		rdb,
		handler.NewActionHandler(log, actionService),
		handler.NewEvidenceHandler(log, evidenceService),
	)

	return &Server{
		logger: log,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: engine,
			// Slip uploads can be large, so only the header read is bounded tightly.
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
			MaxHeaderBytes:    maxHeaderBytes,
		},
	}
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop waits for in-flight requests until ctx is done, then closes what is left.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("failed to stop HTTP server gracefully: %w", err)
	}
	return nil
}
