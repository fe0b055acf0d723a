// Package api provides the HTTP REST API and WebSocket server for the
// parcel box core.
//
// It exposes parcel registration, collection, and box control operations to
// the web client, and provisioning endpoints to hardware agents. Real-time
// owner notifications are relayed from the message bus to WebSocket clients.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parcelbox-dev/parcelbox-core/internal/auth"
	"github.com/parcelbox-dev/parcelbox-core/internal/coordination"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/config"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/logging"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/metrics"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/mqtt"
	"github.com/parcelbox-dev/parcelbox-core/internal/parcel"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// NotificationBus is the subset of the bus client the server needs to relay
// owner notifications to WebSocket clients. Satisfied by *mqtt.Client.
type NotificationBus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Auth        config.AuthConfig
	Logger      *logging.Logger
	Coordinator *coordination.Service
	Parcels     *parcel.Repository
	Boxes       *parcel.BoxRepository
	Users       auth.UserRepository
	Verifier    *auth.GoogleVerifier
	Bus         NotificationBus     // optional; WebSocket relay disabled when nil
	Metrics     metrics.Recorder    // optional; defaults to a no-op recorder
	Gatherer    prometheus.Gatherer // optional; /metrics route omitted when nil
	Version     string
}

// Server is the HTTP API server for the parcel box core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	authCfg     config.AuthConfig
	logger      *logging.Logger
	coordinator *coordination.Service
	parcels     *parcel.Repository
	boxes       *parcel.BoxRepository
	users       auth.UserRepository
	verifier    *auth.GoogleVerifier
	bus         NotificationBus
	metrics     metrics.Recorder
	gatherer    prometheus.Gatherer
	version     string
	topics      mqtt.Topics
	server      *http.Server
	hub         *Hub
	tickets     *ticketStore
	limiter     *rateLimiter
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, coordinator, repositories)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordination service is required")
	}
	if deps.Parcels == nil || deps.Boxes == nil {
		return nil, fmt.Errorf("parcel and box repositories are required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	// Verifier is optional in tests; sign-in returns 503 without it.
	// Bus is optional; notifications still land on the broker, only the
	// WebSocket relay is disabled.

	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	return &Server{
		cfg:         deps.Config,
		authCfg:     deps.Auth,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		parcels:     deps.Parcels,
		boxes:       deps.Boxes,
		users:       deps.Users,
		verifier:    deps.Verifier,
		bus:         deps.Bus,
		metrics:     rec,
		gatherer:    deps.Gatherer,
		version:     deps.Version,
		tickets:     newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.bus, s.topics, s.logger)
	go s.hub.Run(srvCtx)

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if s.cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(s.cfg.RateLimit)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
