package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight HTTP
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// shutdownReason is sent in the close frame of every client on Close.
const shutdownReason = "server shutting down"

// Dependency is an optional backing service reported by health and status.
// *mqtt.Client and *influxdb.Client satisfy it.
type Dependency interface {
	HealthCheck(ctx context.Context) error
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Gateway *wsapi.Server
	DB      *database.DB

	// MQTT and InfluxDB are optional. Leave them nil (untyped) when disabled.
	MQTT     Dependency
	InfluxDB Dependency

	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the HTTP and WebSocket listener of the gateway.
//
// It is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	gateway   *wsapi.Server
	db        *database.DB
	mqtt      Dependency
	influx    Dependency
	gatherer  prometheus.Gatherer
	version   string
	startTime time.Time

	hub      *Hub
	server   *http.Server
	listener net.Listener

	// ctx outlives individual HTTP requests; it bounds requests arriving
	// on WebSocket connections and is cancelled by Close.
	ctx    context.Context //nolint:containedctx // server lifetime, not request scope
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}

	wsCfg := deps.WS
	if wsCfg.Path == "" {
		wsCfg.Path = "/ws"
	}
	if wsCfg.SendBuffer <= 0 {
		wsCfg.SendBuffer = wsSendBufferSize
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	logger := deps.Logger.With("component", "api")
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:       deps.Config,
		wsCfg:     wsCfg,
		logger:    logger,
		gateway:   deps.Gateway,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		gatherer:  gatherer,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(wsCfg, logger),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// The bind happens synchronously so a port already in use is reported here.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		addr := s.server.Addr
		s.server = nil
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
				"ws_path", s.wsCfg.Path,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String(), "ws_path", s.wsCfg.Path)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close sends a going-away close frame to every client, then shuts the
// HTTP server down, waiting up to 10 seconds for in-flight HTTP requests.
func (s *Server) Close() error {
	s.cancel()
	s.gateway.CloseAll(shutdownReason)
	defer s.hub.closeAll(shutdownReason)

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down", "clients", s.hub.ClientCount())
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("api server closed")
	}
	return nil
}
