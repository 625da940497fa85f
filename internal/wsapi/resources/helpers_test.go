package resources_test

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
	"github.com/nerrad567/gray-logic-access/internal/wsapi/resources"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

type conn struct {
	id   string
	mu   sync.Mutex
	last []byte
}

func (c *conn) ID() string         { return c.id }
func (c *conn) RemoteAddr() string { return "198.51.100.7:40000" }
func (c *conn) Close(string) error { return nil }

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = append([]byte(nil), data...)
	return nil
}

type env struct {
	t   *testing.T
	srv *wsapi.Server
	db  *database.DB
	seq int
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "resources-test.db"),
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

	reg := wsapi.NewRegistry()
	wsapi.RegisterSessionMethods(reg)
	resources.Register(reg)

	logger := logging.Discard()
	srv, err := wsapi.New(wsapi.Deps{
		DB:       db,
		Registry: reg,
		Tokens:   auth.NewTokenService("resources-test-secret-0123456789", time.Hour),
		Recorder: audit.NewRecorder(db, logger, nil, ""),
		Logger:   logger,
		Config:   config.WebSocketConfig{MaxConcurrentRequests: 1},
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("wsapi.New() error = %v", err)
	}
	return &env{t: t, srv: srv, db: db}
}

// user creates an active account with password "test-password".
func (e *env) user(username string, role auth.Role) *auth.User {
	e.t.Helper()
	hash, err := auth.HashPassword("test-password")
	if err != nil {
		e.t.Fatalf("hashing password: %v", err)
	}
	u := &auth.User{Username: username, Firstname: username, PasswordHash: hash, Role: role, IsActive: true}
	if err := auth.NewUserRepository(e.db).Create(e.t.Context(), u); err != nil {
		e.t.Fatalf("creating user: %v", err)
	}
	return u
}

// session opens a connection logged in as username, or anonymous when
// username is empty.
func (e *env) session(username string) *conn {
	e.t.Helper()
	e.seq++
	c := &conn{id: fmt.Sprintf("conn-%d", e.seq)}
	e.srv.OnOpen(c)
	e.t.Cleanup(func() { e.srv.OnClose(c) })
	if username != "" {
		resp := e.call(c, wsapi.MethodCreateAuthToken, map[string]string{"username": username, "password": "test-password"})
		if resp.StatusCode != apierr.Success {
			e.t.Fatalf("login %s: %v %s", username, resp.StatusCode, resp.StatusString)
		}
	}
	return c
}

func (e *env) call(c *conn, method string, payload any) wsapi.ServerMessage {
	e.t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		e.t.Fatalf("marshal payload: %v", err)
	}
	e.seq++
	raw := fmt.Sprintf(`{"id":"r%d","method":%q,"payload":%s}`, e.seq, method, body)
	e.srv.OnMessage(e.t.Context(), c, []byte(raw))

	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	resp, err := wsapi.ParseServerMessage(last)
	if err != nil {
		e.t.Fatalf("parsing response: %v", err)
	}
	return resp
}

// expect asserts the status of resp and decodes its data member into out.
func (e *env) expect(resp wsapi.ServerMessage, want apierr.Status, out any) {
	e.t.Helper()
	if resp.StatusCode != want {
		e.t.Fatalf("%s status = %v (%s), want %v", resp.Method, resp.StatusCode, resp.StatusString, want)
	}
	if out == nil {
		return
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Content, &envelope); err != nil {
		e.t.Fatalf("decoding content %s: %v", resp.Content, err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		e.t.Fatalf("decoding data %s: %v", envelope.Data, err)
	}
}

func attrs(id int64, a map[string]any) map[string]any {
	p := map[string]any{"attributes": a}
	if id != 0 {
		p["id"] = id
	}
	return p
}

func target(id int64) map[string]any {
	return map[string]any{"id": id}
}

func decode(t *testing.T, raw []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
}
