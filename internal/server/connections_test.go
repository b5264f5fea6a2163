package server

import (
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// A nil *websocket.Conn is fine for registry bookkeeping tests; nothing here
// touches the socket.

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	r := NewConnectionRegistry()

	id1 := r.Register(nil)
	id2 := r.Register(nil)

	if id1 == id2 {
		t.Error("expected distinct connection ids")
	}
	if r.Count() != 2 {
		t.Errorf("expected 2 connections, got %d", r.Count())
	}
}

func TestUnregisterRemovesConnection(t *testing.T) {
	r := NewConnectionRegistry()

	id := r.Register(nil)
	r.Unregister(id)

	if r.Count() != 0 {
		t.Errorf("expected 0 connections, got %d", r.Count())
	}
	if r.Get(id) != nil {
		t.Error("expected nil for unregistered id")
	}
}

func TestGetReturnsNilForClosed(t *testing.T) {
	r := NewConnectionRegistry()

	id := r.Register(nil)
	r.MarkClosed(id)

	if r.Get(id) != nil {
		t.Error("expected nil for closed connection")
	}
}

func TestForEachOpenSkipsClosed(t *testing.T) {
	r := NewConnectionRegistry()

	keep := r.Register(nil)
	dead := r.Register(nil)
	r.MarkClosed(dead)

	var visited []string
	r.ForEachOpen(func(id string, _ *websocket.Conn) {
		visited = append(visited, id)
	})

	if len(visited) != 1 || visited[0] != keep {
		t.Errorf("expected only %s visited, got %v", keep, visited)
	}

	// marked connections still count until their own cleanup runs
	if r.Count() != 2 {
		t.Errorf("expected 2 registered, got %d", r.Count())
	}
}

func TestConcurrentRegistryAccess(t *testing.T) {
	r := NewConnectionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Register(nil)
			r.MarkClosed(id)
			r.Unregister(id)
		}()
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}
