package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/dagflow/internal/dagflow"
	"github.com/hrygo/dagflow/internal/dagflow/metricsprom"
)

// Server is the thin HTTP surface around an Engine, structured after the
// teacher's server/router services (each a small struct with a Serve(ctx,
// *echo.Echo) method wiring its own routes onto a shared echo instance).
// Transport is explicitly out of the core package's scope (spec §1
// Non-goals); this command is where it lives.
type Server struct {
	echo     *echo.Echo
	engine   *dagflow.Engine
	exporter *metricsprom.Exporter
	addr     string
}

// NewServer builds the echo instance and registers every route.
func NewServer(engine *dagflow.Engine, exporter *metricsprom.Exporter, addr string, ratePerMinute int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(newIPRateLimiter(ratePerMinute).middleware())

	s := &Server{echo: e, engine: engine, exporter: exporter, addr: addr}
	s.registerRoutes()
	return s
}

// Start begins serving in the background, returning once the listener is
// up or immediately failed.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			slog.Error("dagflow-service: listener stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
