package client

import (
	"path/filepath"
	"testing"
	"time"

	"gamenight-server/internal/scoreboard"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(filepath.Join(t.TempDir(), "scores.json"))
}

func TestCacheSaveAndLoad(t *testing.T) {
	c := newTestCache(t)

	roster := []scoreboard.Entry{
		{Name: "alice", Score: 10, EditedBy: "sess-1"},
		{Name: "bob", Score: 20, EditedBy: "sess-2"},
	}
	if err := c.Save(7, roster); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := c.Load(7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].Name != "alice" || got[1].Score != 20 {
		t.Errorf("loaded roster wrong: %+v", got)
	}
}

func TestCacheLoadMissingFileIsEmpty(t *testing.T) {
	c := newTestCache(t)

	got, err := c.Load(1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil roster, got %+v", got)
	}
}

func TestCacheGamesAreIndependent(t *testing.T) {
	c := newTestCache(t)

	c.Save(1, []scoreboard.Entry{{Name: "alice", Score: 1}})
	c.Save(2, []scoreboard.Entry{{Name: "alice", Score: 99}})

	got1, _ := c.Load(1)
	got2, _ := c.Load(2)
	if got1[0].Score != 1 || got2[0].Score != 99 {
		t.Errorf("games bled into each other: %v / %v", got1, got2)
	}
}

func TestCacheDelete(t *testing.T) {
	c := newTestCache(t)

	c.Save(1, []scoreboard.Entry{{Name: "alice", Score: 1}})
	if err := c.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := c.Load(1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}

	// deleting a game that isn't cached is a no-op
	if err := c.Delete(99); err != nil {
		t.Errorf("delete of absent game: %v", err)
	}
}

func TestCacheSharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")

	writer := NewCache(path)
	reader := NewCache(path)

	writer.Save(3, []scoreboard.Entry{{Name: "carol", Score: 30}})

	got, err := reader.Load(3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Name != "carol" {
		t.Errorf("second instance did not see the write: %+v", got)
	}
}

func TestCacheSubscribeNotifies(t *testing.T) {
	c := newTestCache(t)

	ch, cancel := c.Subscribe(5)
	defer cancel()

	c.Save(5, []scoreboard.Entry{{Name: "alice", Score: 1}})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification after save")
	}

	// other games do not notify this subscriber
	c.Save(6, []scoreboard.Entry{{Name: "bob", Score: 2}})
	select {
	case <-ch:
		t.Fatal("unexpected notification for another game")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCacheSubscribeCancelStopsNotifications(t *testing.T) {
	c := newTestCache(t)

	ch, cancel := c.Subscribe(5)
	cancel()

	c.Save(5, []scoreboard.Entry{{Name: "alice", Score: 1}})

	select {
	case <-ch:
		t.Fatal("cancelled subscriber should not be notified")
	case <-time.After(50 * time.Millisecond):
	}
}
