// Package api wires the HTTP server, middleware, and routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/handler"
	"github.com/cardlink/pixel-tracker/internal/logger"
)

// shutdownTimeout bounds how long in-flight requests may finish on shutdown.
const shutdownTimeout = 10 * time.Second

// Deps holds everything the server needs to register its routes.
type Deps struct {
	Config *config.Config
	Track  *handler.TrackHandler
	Admin  *handler.PixelAdminHandler
	Health *handler.HealthHandler
	Log    logger.Logger
}

// Server is the HTTP front of the tracking service.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	log    logger.Logger
}

// NewServer builds the gin engine with middleware and routes.
func NewServer(deps Deps) *Server {
	if !deps.Config.Service.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(Recovery(deps.Log))
	engine.Use(RequestLogger(deps.Log))
	engine.Use(CORS())

	registerRoutes(engine, deps)

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", deps.Config.Service.Port),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: deps.Log,
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", logger.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		s.log.Info("Shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
