package api

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestSocketRegistry_Register(t *testing.T) {
	sm := NewSocketRegistry()
	conn := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn)

	if active := sm.GetActive("user123", "tab-1"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
}

func TestSocketRegistry_UnregisterStale(t *testing.T) {
	sm := NewSocketRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn1)
	sm.Register("user123", "tab-2", conn2)

	// Unregistering with a connection that is no longer current is a no-op.
	sm.Unregister("user123", "tab-2", conn1)
	if active := sm.GetActive("user123", "tab-2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}

	sm.Unregister("user123", "tab-1", conn1)
	if active := sm.GetActive("user123", "tab-1"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
}

func TestSocketRegistry_NotifyWithoutSocket(t *testing.T) {
	sm := NewSocketRegistry()
	sm.Notify(context.Background(), "nobody", "tab", map[string]string{"type": "reset"})
}

func TestSocketRegistry_ConcurrentAccess(t *testing.T) {
	sm := NewSocketRegistry()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Register("concurrentUser", "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.GetActive("concurrentUser", "tab-"+strconv.Itoa(i))
		}
	}()

	wg.Wait()
}
