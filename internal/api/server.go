// Package api provides the HTTP API for Hydroconnect.
//
// Device hubs post usage sessions with their device key; the mobile app
// signs up, logs in and reads usage with a session token.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/audit"
	"github.com/YuMe-02/Hydroconnect/internal/auth"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/config"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
	"github.com/YuMe-02/Hydroconnect/internal/usage"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every component the health endpoint probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Accounts *auth.Accounts
	Gateway  *auth.Gateway
	Devices  *auth.DeviceKeyAuthority
	Usage    *usage.Service
	Audit    *audit.Recorder          // optional
	Health   map[string]HealthChecker // optional, keyed by component name
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	accounts *auth.Accounts
	gateway  *auth.Gateway
	devices  *auth.DeviceKeyAuthority
	usage    *usage.Service
	audit    *audit.Recorder
	health   map[string]HealthChecker
	version  string
	server   *http.Server
}

// New creates a new API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Accounts == nil:
		return nil, fmt.Errorf("accounts service is required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("auth gateway is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device key authority is required")
	case deps.Usage == nil:
		return nil, fmt.Errorf("usage service is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		accounts: deps.Accounts,
		gateway:  deps.Gateway,
		devices:  deps.Devices,
		usage:    deps.Usage,
		audit:    deps.Audit,
		health:   deps.Health,
		version:  deps.Version,
	}, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening in a background goroutine. Stop it with Close.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to 10 seconds for in-flight requests, then closes
// remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
