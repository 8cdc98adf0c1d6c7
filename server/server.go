// Package server wires the monitoring pipeline, the scheduler and the
// operator API into one process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/internal/profile"
	apiv1 "github.com/hrygo/adpilot/server/router/api/v1"
	"github.com/hrygo/adpilot/store"
)

type Server struct {
	Profile    *profile.Profile
	Store      *store.Store
	Components *Components

	echoServer *echo.Echo
	listener   net.Listener
	logger     *slog.Logger
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	components, err := NewComponents(profile, store, logger, observability.DefaultMetrics())
	if err != nil {
		return nil, err
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())

	apiV1Service := apiv1.NewAPIV1Service(profile.APISecret, profile, apiv1.Services{
		Executor:  components.Executor,
		Targets:   components.Targets,
		Learner:   components.Learner,
		Monitor:   components.Monitor,
		Scheduler: components.Scheduler,
	})
	apiV1Service.SetLogger(logger)
	apiV1Service.RegisterRoutes(echoServer)

	if profile.APISecret == "" && profile.IsDev() {
		logger.WarnContext(ctx, "API secret not configured, operator API is unauthenticated", "mode", profile.Mode)
	}

	return &Server{
		Profile:    profile,
		Store:      store,
		Components: components,
		echoServer: echoServer,
		logger:     logger,
	}, nil
}

// Start starts the scheduler and serves the API in the background.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	if err := s.Components.Scheduler.Start(ctx); err != nil {
		listener.Close()
		return errors.Wrap(err, "failed to start scheduler")
	}

	s.listener = listener
	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start echo server", "error", err)
		}
	}()
	s.logger.Info("adpilot started",
		"address", listener.Addr().String(),
		"accounts", len(s.Profile.MetaAccountIDs),
		"executor_mode", s.Components.Executor.Mode())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the scheduler, drains the API and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.logger.Info("server shutting down")
	s.Components.Scheduler.Stop()
	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Error("failed to close database", "error", err)
	}
	s.logger.Info("adpilot stopped properly")
}
