package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

// fakeDependency is a controllable optional backing service.
type fakeDependency struct {
	err       error
	connected bool
}

func (f fakeDependency) HealthCheck(context.Context) error { return f.err }
func (f fakeDependency) IsConnected() bool                 { return f.connected }

// setupTestDB opens a migrated temp-file database.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// testServer builds an unstarted Server over a real gateway.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *database.DB) {
	t.Helper()
	db := setupTestDB(t)
	logger := logging.Discard()
	promReg := prometheus.NewRegistry()

	reg := wsapi.NewRegistry()
	wsapi.RegisterSessionMethods(reg)

	gateway, err := wsapi.New(wsapi.Deps{
		DB:              db,
		Registry:        reg,
		Tokens:          auth.NewTokenService("api-test-secret-0123456789abcdef", time.Hour),
		Recorder:        audit.NewRecorder(db, logger, nil, ""),
		Logger:          logger,
		Metrics:         wsapi.NewMetrics(promReg),
		Config:          config.WebSocketConfig{MaxConcurrentRequests: 1},
		IdentityMapSize: 16,
		Version:         "test",
	})
	if err != nil {
		t.Fatalf("wsapi.New() error: %v", err)
	}

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   logger,
		Gateway:  gateway,
		DB:       db,
		Gatherer: promReg,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, db
}

// startServer starts srv on an ephemeral port and returns its address.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup
	return srv.Addr()
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, frame string) wsapi.ServerMessage {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := wsapi.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("ParseServerMessage() error: %v", err)
	}
	return resp
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	srv, db := testServer(t, nil)

	tests := []struct {
		name string
		deps Deps
	}{
		{name: "logger", deps: Deps{Gateway: srv.gateway, DB: db}},
		{name: "gateway", deps: Deps{Logger: logging.Discard(), DB: db}},
		{name: "database", deps: Deps{Logger: logging.Discard(), Gateway: srv.gateway}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Errorf("New() without %s succeeded", tt.name)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.WS = config.WebSocketConfig{}
		d.Gatherer = nil
	})

	if srv.wsCfg.Path != "/ws" {
		t.Errorf("ws path = %q, want /ws", srv.wsCfg.Path)
	}
	if srv.wsCfg.SendBuffer != wsSendBufferSize {
		t.Errorf("send buffer = %d, want %d", srv.wsCfg.SendBuffer, wsSendBufferSize)
	}
	if srv.gatherer != prometheus.DefaultGatherer {
		t.Error("gatherer should default to prometheus.DefaultGatherer")
	}
}

// ─── Health and Status ─────────────────────────────────────────────

func getJSON(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %s: %v (body %q)", path, err, w.Body.String())
	}
	return w, body
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, nil)
	w, resp := getJSON(t, srv.buildRouter(), "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if resp["status"] != healthOK {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	checks, _ := resp["checks"].(map[string]any)
	if checks["database"] != healthOK {
		t.Errorf("database check = %v, want ok", checks["database"])
	}
	if _, ok := checks["mqtt"]; ok {
		t.Error("disabled mqtt should not be probed")
	}
}

func TestHealth_DegradedDependency(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.MQTT = fakeDependency{err: errors.New("broker unreachable")}
		d.InfluxDB = fakeDependency{connected: true}
	})
	w, resp := getJSON(t, srv.buildRouter(), "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp["status"] != healthDegraded {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	checks, _ := resp["checks"].(map[string]any)
	if checks["mqtt"] != "broker unreachable" {
		t.Errorf("mqtt check = %v", checks["mqtt"])
	}
	if checks["influxdb"] != healthOK {
		t.Errorf("influxdb check = %v, want ok", checks["influxdb"])
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	srv, db := testServer(t, nil)
	db.Close() //nolint:errcheck // Simulate storage loss

	w, resp := getJSON(t, srv.buildRouter(), "/api/v1/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if resp["status"] != healthUnhealthy {
		t.Errorf("status = %v, want unhealthy", resp["status"])
	}
}

func TestStatus(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.MQTT = fakeDependency{connected: true}
	})
	w, resp := getJSON(t, srv.buildRouter(), "/api/v1/status")

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	ws, _ := resp["websocket"].(map[string]any)
	if ws["connected_clients"] != float64(0) || ws["sessions"] != float64(0) {
		t.Errorf("websocket = %v, want no clients", ws)
	}
	mqtt, _ := resp["mqtt"].(map[string]any)
	if mqtt["connected"] != true {
		t.Errorf("mqtt = %v, want connected", resp["mqtt"])
	}
	if _, ok := resp["influxdb"]; ok {
		t.Error("disabled influxdb should be omitted")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "graylogic_wsapi_active_sessions") {
		t.Errorf("metrics body missing gateway gauge:\n%s", w.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, nil)
	w, resp := getJSON(t, srv.buildRouter(), "/api/v1/nothing")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if resp["code"] != ErrCodeNotFound {
		t.Errorf("code = %v, want %s", resp["code"], ErrCodeNotFound)
	}
	if resp["request_id"] != w.Header().Get(requestIDHeader) {
		t.Errorf("request_id = %v, want the X-Request-ID header", resp["request_id"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(requestIDHeader, "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), ErrCodeInternal) {
		t.Errorf("body = %s, want internal_error code", body)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	addr := srv.Addr()

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start error: %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}

func TestServer_StartTwice(t *testing.T) {
	srv, _ := testServer(t, nil)
	startServer(t, srv)

	if err := srv.Start(t.Context()); err == nil {
		t.Error("second Start() succeeded")
	}
}

func TestServer_PortInUse(t *testing.T) {
	first, _ := testServer(t, nil)
	addr := startServer(t, first)

	_, portStr, _ := strings.Cut(addr, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port of %q: %v", addr, err)
	}
	second, _ := testServer(t, func(d *Deps) {
		d.Config.Port = port
	})
	if err := second.Start(t.Context()); err == nil {
		second.Close() //nolint:errcheck // Test cleanup
		t.Fatal("Start() on a bound port succeeded")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocket_RoundTrip(t *testing.T) {
	srv, db := testServer(t, nil)
	addr := startServer(t, srv)
	ws := dial(t, addr)

	resp := roundTrip(t, ws, `{"id":"v-1","method":"get_version","payload":{}}`)
	if resp.ID != "v-1" || resp.Method != "get_version" {
		t.Errorf("envelope = %s/%s, want v-1/get_version", resp.ID, resp.Method)
	}
	if resp.StatusCode != apierr.Success {
		t.Fatalf("status = %v (%s), want SUCCESS", resp.StatusCode, resp.StatusString)
	}
	var content struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(resp.Content, &content); err != nil || content.Version != "test" {
		t.Errorf("content = %s, want version test", resp.Content)
	}

	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}
	if srv.gateway.SessionCount() != 1 {
		t.Errorf("gateway sessions = %d, want 1", srv.gateway.SessionCount())
	}

	calls, err := audit.NewRepository(db).List(t.Context(), audit.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("listing audit: %v", err)
	}
	if calls.Total != 1 || calls.Calls[0].SourceEndpoint == "" {
		t.Errorf("audit = %+v, want one entry with a source endpoint", calls)
	}
}

func TestWebSocket_RequestsAnsweredInOrder(t *testing.T) {
	srv, _ := testServer(t, nil)
	addr := startServer(t, srv)
	ws := dial(t, addr)

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		frame := `{"id":"` + id + `","method":"get_version","payload":{}}`
		if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	for _, want := range ids {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		resp, err := wsapi.ParseServerMessage(data)
		if err != nil {
			t.Fatalf("ParseServerMessage() error: %v", err)
		}
		if resp.ID != want {
			t.Errorf("response id = %q, want %q", resp.ID, want)
		}
	}
}

func TestWebSocket_MalformedFrame(t *testing.T) {
	srv, _ := testServer(t, nil)
	addr := startServer(t, srv)
	ws := dial(t, addr)

	resp := roundTrip(t, ws, `this is not json`)
	if resp.StatusCode != apierr.Malformed {
		t.Errorf("status = %v, want MALFORMED", resp.StatusCode)
	}

	// The connection survives a bad frame.
	resp = roundTrip(t, ws, `{"id":"after","method":"get_version","payload":{}}`)
	if resp.StatusCode != apierr.Success {
		t.Errorf("status after malformed frame = %v, want SUCCESS", resp.StatusCode)
	}
}

func TestWebSocket_DisconnectEndsSession(t *testing.T) {
	srv, _ := testServer(t, nil)
	addr := startServer(t, srv)
	ws := dial(t, addr)
	roundTrip(t, ws, `{"id":"1","method":"get_version","payload":{}}`)

	ws.Close()

	eventually(t, "session teardown", func() bool {
		return srv.gateway.SessionCount() == 0 && srv.hub.ClientCount() == 0
	})
}

func TestWebSocket_CloseSendsGoingAway(t *testing.T) {
	srv, _ := testServer(t, nil)
	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ws := dial(t, srv.Addr())
	roundTrip(t, ws, `{"id":"1","method":"get_version","payload":{}}`)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("ReadMessage() error = %v, want close frame", err)
	}
	if closeErr.Code != websocket.CloseGoingAway || closeErr.Text != shutdownReason {
		t.Errorf("close = %d %q, want %d %q", closeErr.Code, closeErr.Text, websocket.CloseGoingAway, shutdownReason)
	}
}

func TestWSClient_SendAfterClose(t *testing.T) {
	srv, _ := testServer(t, nil)
	addr := startServer(t, srv)
	dial(t, addr)

	eventually(t, "client registration", func() bool { return srv.hub.ClientCount() == 1 })

	srv.hub.mu.RLock()
	var client *WSClient
	for c := range srv.hub.clients {
		client = c
	}
	srv.hub.mu.RUnlock()

	if err := client.Close("bye"); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := client.Close("again"); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := client.Send([]byte("{}")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClientClosed", err)
	}
}
