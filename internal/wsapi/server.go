package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
)

// Authorizer evaluates one permission for an identity. *auth.Engine
// satisfies it.
type Authorizer interface {
	Check(ctx context.Context, q database.Querier, user *auth.User, perm auth.Permission, param auth.ActionParam) (bool, error)
}

// AuditRecorder persists one audit entry per request. *audit.Recorder
// satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, call *audit.WSAPICall) error
}

// Telemetry receives per-request and per-connection measurements.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteRequestMetric(method, status string, authenticated bool, duration time.Duration)
	WriteConnectionMetric(event string, active int)
}

// Deps holds what the Server needs.
type Deps struct {
	DB         *database.DB
	Registry   *Registry
	Tokens     *auth.TokenService
	Recorder   AuditRecorder
	Logger     *logging.Logger
	Authorizer Authorizer // defaults to auth.NewEngine()
	Metrics    *Metrics   // optional
	Telemetry  Telemetry  // optional
	Config     config.WebSocketConfig
	RateLimit  config.RateLimitConfig
	// IdentityMapSize bounds each request's unit of work.
	IdentityMapSize int
	Version         string
}

// Server turns frames from live connections into audited responses.
//
// Thread Safety: OnOpen, OnClose and OnMessage may be called from any
// goroutine; OnMessage must not be called concurrently for the same
// connection.
type Server struct {
	db              *database.DB
	registry        *Registry
	sessions        *SessionRegistry
	authz           Authorizer
	tokens          *auth.TokenService
	recorder        AuditRecorder
	metrics         *Metrics
	telemetry       Telemetry
	logger          *logging.Logger
	slots           *semaphore.Weighted
	timeout         time.Duration
	identityMapSize int
	version         string
	started         time.Time
}

// New creates a Server. The registry is frozen.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("wsapi: database is required")
	case deps.Registry == nil:
		return nil, errors.New("wsapi: registry is required")
	case deps.Tokens == nil:
		return nil, errors.New("wsapi: token service is required")
	case deps.Recorder == nil:
		return nil, errors.New("wsapi: audit recorder is required")
	case deps.Logger == nil:
		return nil, errors.New("wsapi: logger is required")
	}

	authz := deps.Authorizer
	if authz == nil {
		authz = auth.NewEngine()
	}

	slots := int64(deps.Config.MaxConcurrentRequests)
	if slots <= 0 {
		slots = 1
	}

	deps.Registry.Freeze()

	return &Server{
		db:              deps.DB,
		registry:        deps.Registry,
		sessions:        NewSessionRegistry(limiterFactory(deps.RateLimit)),
		authz:           authz,
		tokens:          deps.Tokens,
		recorder:        deps.Recorder,
		metrics:         deps.Metrics,
		telemetry:       deps.Telemetry,
		logger:          deps.Logger.With("component", "wsapi"),
		slots:           semaphore.NewWeighted(slots),
		timeout:         time.Duration(deps.Config.RequestTimeout) * time.Second,
		identityMapSize: deps.IdentityMapSize,
		version:         deps.Version,
		started:         time.Now(),
	}, nil
}

func limiterFactory(cfg config.RateLimitConfig) func() *rate.Limiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return nil
	}
	every := rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return func() *rate.Limiter { return rate.NewLimiter(every, burst) }
}

// OnOpen registers a new connection.
func (s *Server) OnOpen(conn Conn) *APISession {
	session := s.sessions.OnConnect(conn)
	n := s.sessions.Len()
	s.metrics.setSessions(n)
	if s.telemetry != nil {
		s.telemetry.WriteConnectionMetric("open", n)
	}
	s.logger.Debug("connection opened", "conn", conn.ID(), "remote", conn.RemoteAddr(), "sessions", n)
	return session
}

// OnClose discards the session of a closed connection.
func (s *Server) OnClose(conn Conn) {
	s.sessions.OnDisconnect(conn)
	n := s.sessions.Len()
	s.metrics.setSessions(n)
	if s.telemetry != nil {
		s.telemetry.WriteConnectionMetric("close", n)
	}
	s.logger.Debug("connection closed", "conn", conn.ID(), "sessions", n)
}

// OnMessage handles one inbound frame: it computes the response, records
// the audit entry and sends the response. An audit failure is logged and
// counted; the computed response is still sent.
func (s *Server) OnMessage(ctx context.Context, conn Conn, raw []byte) {
	session := s.sessions.Get(conn)

	start := time.Now()
	resp := s.HandleRequest(ctx, session, raw)
	elapsed := time.Since(start)

	call := &audit.WSAPICall{
		AuthorID:        session.UserID(),
		CorrelationID:   resp.ID,
		Method:          resp.Method,
		StatusCode:      int(resp.StatusCode),
		StatusString:    resp.StatusString,
		ResponseContent: auditContent(resp),
		SourceEndpoint:  conn.RemoteAddr(),
		DurationMS:      elapsed.Milliseconds(),
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), call); err != nil {
		s.metrics.auditFailed()
		s.logger.Error("audit write failed",
			"error", err,
			"conn", conn.ID(),
			"id", resp.ID,
			"method", resp.Method,
			"status", resp.StatusCode.String(),
		)
	}

	s.observe(session, resp, elapsed)

	if err := conn.Send(resp.Serialize()); err != nil {
		s.logger.Warn("sending response failed", "conn", conn.ID(), "id", resp.ID, "error", err)
	}
}

// secretMembers names the response members kept out of the audit trail.
var secretMembers = map[string][]string{
	MethodCreateAuthToken: {"token"},
}

// auditContent is the response content as recorded: members listed in
// secretMembers are removed. Content that is not an object is replaced by
// an empty one.
func auditContent(resp ServerMessage) string {
	secrets, ok := secretMembers[resp.Method]
	if !ok {
		return string(resp.Content)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(resp.Content, &members); err != nil || members == nil {
		return string(emptyContent)
	}
	for _, name := range secrets {
		delete(members, name)
	}
	b, err := json.Marshal(members)
	if err != nil {
		return string(emptyContent)
	}
	return string(b)
}

func (s *Server) observe(session *APISession, resp ServerMessage, elapsed time.Duration) {
	method := resp.Method
	if _, ok := s.registry.Lookup(method); !ok {
		method = "unknown"
	}
	status := resp.StatusCode.String()
	s.metrics.observe(method, status, elapsed)
	if s.telemetry != nil {
		s.telemetry.WriteRequestMetric(method, status, session.User() != nil, elapsed)
	}
}

// CloseAll sends a going-away close to every live connection. The
// transport's close callbacks then remove the sessions.
func (s *Server) CloseAll(reason string) {
	for _, session := range s.sessions.Snapshot() {
		if err := session.conn.Close(reason); err != nil {
			s.logger.Debug("closing connection", "conn", session.conn.ID(), "error", err)
		}
	}
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.sessions.Len()
}

// Version returns the version reported by get_version.
func (s *Server) Version() string {
	return s.version
}
