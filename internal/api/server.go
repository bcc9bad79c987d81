// Package api provides the HTTP REST API and WebSocket server for Librarium Core.
//
// It exposes login, account management, and catalog endpoints to the web
// client and staff tools, with every protected route passing through the
// auth core (token validation, live principal resolution, role guard).
//
// The server follows the same lifecycle pattern as other infrastructure components:
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

	"github.com/thejerf/abtime"
	"go.opentelemetry.io/otel/trace"

	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/catalog"
	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
	"github.com/nerrad567/librarium-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/librarium-core/internal/infrastructure/logging"
	"github.com/nerrad567/librarium-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/librarium-core/internal/infrastructure/objectstore"
	"github.com/nerrad567/librarium-core/internal/infrastructure/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// DB, Accounts, Books, Hasher and Tokens are required. Everything else is
// optional and the matching feature degrades when it is nil: no audit
// trail, no MQTT catalog events, no InfluxDB auth analytics, no cover URLs.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	DB        *database.DB
	Accounts  auth.AccountRepository
	Books     catalog.Repository
	AuditRepo audit.Repository
	Hasher    *auth.Hasher
	Tokens    *auth.TokenService
	Clock     abtime.AbstractTime // defaults to the real clock
	Tracer    trace.Tracer        // defaults to a no-op tracer
	MQTT      *mqtt.Client
	Influx    *influxdb.Client
	Covers    *objectstore.Store
	Metrics   *telemetry.Metrics
	Version   string
}

// Server is the HTTP API server for Librarium Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	db        *database.DB
	accounts  auth.AccountRepository
	staff     *auth.LastStaffGuard
	books     catalog.Repository
	auditRepo audit.Repository
	audit     *audit.Recorder
	hasher    *auth.Hasher
	tokens    *auth.TokenService
	resolver  *auth.Resolver
	authn     *auth.Authenticator
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	covers    *objectstore.Store
	metrics   *telemetry.Metrics
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, stores, hasher, token service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if deps.Books == nil {
		return nil, fmt.Errorf("book repository is required")
	}
	if deps.Hasher == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("hasher and token service are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		db:        deps.DB,
		accounts:  deps.Accounts,
		staff:     auth.NewLastStaffGuard(deps.DB, deps.DB.Driver() == config.DriverPostgres),
		books:     deps.Books,
		auditRepo: deps.AuditRepo,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		resolver:  auth.NewResolver(deps.Tokens, deps.Accounts, auth.WithResolverTracer(deps.Tracer)),
		authn: auth.NewAuthenticator(deps.Accounts, deps.Hasher, deps.Tokens,
			auth.WithClock(clock),
			auth.WithLogger(deps.Logger.With("component", "auth").Logger),
		),
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		covers:    deps.Covers,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	if deps.AuditRepo != nil {
		s.audit = audit.NewRecorder(deps.AuditRepo, deps.Logger.Logger)
	}
	s.hub = NewHub(s.wsCfg, s.logger, s.metrics)

	return s, nil
}

// now is the single time source for token checks and tickets.
func (s *Server) now() time.Time {
	return s.authn.Now()
}

// Handler returns the fully wired router. Start uses it; tests and
// embedding callers may serve it directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, the audit writer, and ticket cleanup, then
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
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

	go s.hub.Run(srvCtx)

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if s.audit != nil {
		s.audit.Start(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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
			s.logger.Info("API server starting", "address", s.server.Addr)
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
// It waits up to 10 seconds for in-flight requests to complete, then
// flushes any queued audit entries.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	// Cancel background goroutines (hub, ticket cleanup, audit writer)
	if s.cancel != nil {
		s.cancel()
	}
	if s.audit != nil {
		s.audit.Wait()
	}

	if err != nil {
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
