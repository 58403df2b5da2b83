// Package server is the HTTP facade in front of the display handle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/AndreRenaud/pidisplay/config"
	"github.com/AndreRenaud/pidisplay/display"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Display is the part of *display.Display the handlers use.
type Display interface {
	Render(ctx context.Context, data []byte, opts display.RenderOptions) error
	Clear(ctx context.Context) error
	Info() display.Info
}

type Server struct {
	cfg    config.ServerConfig
	engine *gin.Engine
}

func New(cfg config.ServerConfig, d Display) *Server {
	engine := gin.New()
	engine.Use(
		RequestIDMiddleware(),
		LoggerMiddleware(),
		RecoveryMiddleware(),
		CORSMiddleware(cfg.CORSOrigins),
	)
	NewHandler(d).RegisterRoutes(engine)
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout(),
		WriteTimeout: s.cfg.WriteTimeout(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("HTTP server stopped gracefully")
	return nil
}
