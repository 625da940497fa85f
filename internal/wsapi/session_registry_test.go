package wsapi

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestSessionRegistry_Lifecycle(t *testing.T) {
	reg := NewSessionRegistry(nil)
	conn := newFakeConn("c1")

	s := reg.OnConnect(conn)
	if s.User() != nil {
		t.Error("new session should be unauthenticated")
	}
	if reg.Get(conn) != s {
		t.Error("Get() returned a different session")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}

	if got := reg.OnDisconnect(conn); got != s {
		t.Error("OnDisconnect() returned a different session")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after disconnect, want 0", reg.Len())
	}
	if got := reg.OnDisconnect(conn); got != nil {
		t.Error("second OnDisconnect() should return nil")
	}
}

func TestSessionRegistry_GetUnknownPanics(t *testing.T) {
	reg := NewSessionRegistry(nil)
	defer func() {
		if recover() == nil {
			t.Error("Get() on unknown connection should panic")
		}
	}()
	reg.Get(newFakeConn("ghost"))
}

func TestSessionRegistry_DuplicateConnectPanics(t *testing.T) {
	reg := NewSessionRegistry(nil)
	conn := newFakeConn("c1")
	reg.OnConnect(conn)
	defer func() {
		if recover() == nil {
			t.Error("second OnConnect() should panic")
		}
	}()
	reg.OnConnect(conn)
}

func TestSessionRegistry_Limiter(t *testing.T) {
	reg := NewSessionRegistry(func() *rate.Limiter {
		return rate.NewLimiter(rate.Every(time.Hour), 2)
	})
	s := reg.OnConnect(newFakeConn("c1"))

	if !s.allowRequest() || !s.allowRequest() {
		t.Fatal("burst of 2 should be allowed")
	}
	if s.allowRequest() {
		t.Error("third request should be limited")
	}

	other := reg.OnConnect(newFakeConn("c2"))
	if !other.allowRequest() {
		t.Error("limiters should be per connection")
	}
}

func TestSessionRegistry_Concurrent(t *testing.T) {
	reg := NewSessionRegistry(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", i))
			reg.OnConnect(conn)
			_ = reg.Get(conn)
			_ = reg.Snapshot()
			if i%2 == 0 {
				reg.OnDisconnect(conn)
			}
		}()
	}
	wg.Wait()

	if reg.Len() != 25 {
		t.Errorf("Len() = %d, want 25", reg.Len())
	}
	if len(reg.Snapshot()) != 25 {
		t.Errorf("len(Snapshot()) = %d, want 25", len(reg.Snapshot()))
	}
}
