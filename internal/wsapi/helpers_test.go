package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

const testSecret = "wsapi-test-secret-0123456789abcdef"

// fakeConn records every frame sent to it.
type fakeConn struct {
	id string

	mu      sync.Mutex
	sent    [][]byte
	closed  string
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "192.0.2.10:5555" }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
	return nil
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// widgetState observes what the widget resource did.
type widgetState struct {
	invoked atomic.Int32
	release chan struct{}
}

type widgetPayload struct {
	Require string `json:"require"`
	Fail    string `json:"fail"`
	Missing int64  `json:"missing"`
	Block   bool   `json:"block"`
}

// widgetResource is a configurable resource for dispatcher tests. Its
// payload chooses the permission it requires and how it fails.
type widgetResource struct {
	BaseResource
	state *widgetState
}

func (p *widgetResource) decode(payload json.RawMessage) widgetPayload {
	var req widgetPayload
	_ = json.Unmarshal(payload, &req) //nolint:errcheck // zero value is a valid widget
	return req
}

func (p *widgetResource) RequiredPermissions(_ context.Context, _ Verb, payload json.RawMessage) ([]PermissionRequirement, error) {
	req := p.decode(payload)
	if req.Require == "" {
		return nil, nil
	}
	return []PermissionRequirement{Require(auth.Permission(req.Require), auth.ActionParam{})}, nil
}

func (p *widgetResource) Read(ctx context.Context, payload json.RawMessage) (Result, error) {
	if p.state != nil {
		p.state.invoked.Add(1)
	}
	req := p.decode(payload)
	if req.Block {
		<-p.state.release
		return Content(map[string]bool{"late": true}), nil
	}
	if req.Missing != 0 {
		return Result{}, apierr.NewEntityNotFound("widget", req.Missing)
	}
	switch req.Fail {
	case "domain":
		return Result{}, apierr.NewDomain("widget rejected", errors.New("rule 7"))
	case "storage":
		return Result{}, database.Wrap("widget query", errors.New("disk I/O error"))
	case "plain":
		return Result{}, errors.New("boom")
	case "panic":
		panic("widget exploded")
	}
	return Content(map[string]bool{"ok": true}), nil
}

func (p *widgetResource) Create(context.Context, json.RawMessage) (Result, error) {
	if p.state != nil {
		p.state.invoked.Add(1)
	}
	return Content(map[string]bool{"created": true}), nil
}

func (p *widgetResource) Delete(context.Context, json.RawMessage) (Result, error) {
	if p.state != nil {
		p.state.invoked.Add(1)
	}
	return NoContent(), nil
}

type testEnv struct {
	srv    *Server
	db     *database.DB
	widget *widgetState
}

// newTestEnv builds a Server on a migrated temp-file database with the
// session methods and the widget resource registered.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "wsapi-test.db"),
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

	widget := &widgetState{release: make(chan struct{})}
	reg := NewRegistry()
	RegisterSessionMethods(reg)
	reg.RegisterResource("widget", func(*RequestContext) ResourceHandler {
		return &widgetResource{state: widget}
	}, VerbCreate, VerbRead, VerbDelete)

	logger := logging.Discard()
	deps := Deps{
		DB:              db,
		Registry:        reg,
		Tokens:          auth.NewTokenService(testSecret, time.Hour),
		Recorder:        audit.NewRecorder(db, logger, nil, ""),
		Logger:          logger,
		Metrics:         NewMetrics(prometheus.NewRegistry()),
		Config:          config.WebSocketConfig{MaxConcurrentRequests: 1},
		IdentityMapSize: 16,
		Version:         "1.2.3-test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, db: db, widget: widget}
}

// seedUser inserts an active user with password "test-password".
func (e *testEnv) seedUser(t *testing.T, username string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	u := &auth.User{Username: username, Firstname: username, PasswordHash: hash, Role: role, IsActive: true}
	if err := auth.NewUserRepository(e.db).Create(t.Context(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

// call sends one request through OnMessage and returns the response frame.
func (e *testEnv) call(t *testing.T, conn *fakeConn, id, method string, payload any) ServerMessage {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw := fmt.Sprintf(`{"id":%q,"method":%q,"payload":%s}`, id, method, body)
	return e.callRaw(t, conn, raw)
}

func (e *testEnv) callRaw(t *testing.T, conn *fakeConn, raw string) ServerMessage {
	t.Helper()
	before := len(conn.frames())
	e.srv.OnMessage(t.Context(), conn, []byte(raw))
	frames := conn.frames()
	if len(frames) != before+1 {
		t.Fatalf("OnMessage sent %d frames, want 1", len(frames)-before)
	}
	resp, err := ParseServerMessage(frames[len(frames)-1])
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}
	return resp
}

// login authenticates conn's session with a password.
func (e *testEnv) login(t *testing.T, conn *fakeConn, username string) string {
	t.Helper()
	resp := e.call(t, conn, "login", MethodCreateAuthToken, map[string]string{
		"username": username,
		"password": "test-password",
	})
	if resp.StatusCode != apierr.Success {
		t.Fatalf("create_auth_token status = %v (%s)", resp.StatusCode, resp.StatusString)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		t.Fatalf("decoding token: %v", err)
	}
	return out.Token
}

func (e *testEnv) auditEntries(t *testing.T) []audit.WSAPICall {
	t.Helper()
	res, err := audit.NewRepository(e.db).List(t.Context(), audit.Filter{Limit: 200})
	if err != nil {
		t.Fatalf("listing audit entries: %v", err)
	}
	return res.Calls
}
