package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gamenight-server/internal/scoreboard"
)

// Cache is a shared, device-local store of in-progress rosters, keyed by
// game id. Multiple processes (or tabs) on one device read and write the
// same JSON file, so whichever of them edits last, the others converge on
// its view after their next load or notification.
//
// Writes go through an atomic rename so readers never observe a torn file.
// Subscribers within the same process get a nudge on every save; cross-
// process consumers poll or reload on reconnect.
type Cache struct {
	path string

	mu   sync.Mutex
	subs map[int][]chan struct{}
}

// NewCache creates a cache backed by the JSON file at path. The file is
// created lazily on first save.
func NewCache(path string) *Cache {
	return &Cache{
		path: path,
		subs: make(map[int][]chan struct{}),
	}
}

// Load returns the cached roster for gameID, or nil if none is cached. A
// missing file is an empty cache, not an error.
func (c *Cache) Load(gameID int) ([]scoreboard.Entry, error) {
	all, err := c.read()
	if err != nil {
		return nil, err
	}
	return all[gameID], nil
}

// Save replaces the cached roster for gameID and notifies same-process
// subscribers.
func (c *Cache) Save(gameID int, roster []scoreboard.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.read()
	if err != nil {
		return err
	}

	if roster == nil {
		roster = []scoreboard.Entry{}
	}
	all[gameID] = roster

	if err := c.write(all); err != nil {
		return err
	}

	c.notifyLocked(gameID)
	return nil
}

// Delete removes the cached roster for gameID, typically right after the
// roster was committed to the server.
func (c *Cache) Delete(gameID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.read()
	if err != nil {
		return err
	}

	if _, ok := all[gameID]; !ok {
		return nil
	}
	delete(all, gameID)

	if err := c.write(all); err != nil {
		return err
	}

	c.notifyLocked(gameID)
	return nil
}

// Subscribe returns a channel that receives a nudge whenever this process
// saves or deletes gameID's roster, plus a cancel function. Notifications
// are best effort: a slow consumer misses intermediate nudges but always
// sees the latest state on its next Load.
func (c *Cache) Subscribe(gameID int) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.subs[gameID] = append(c.subs[gameID], ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[gameID]
		for i, s := range subs {
			if s == ch {
				c.subs[gameID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (c *Cache) notifyLocked(gameID int) {
	for _, ch := range c.subs[gameID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Cache) read() (map[int][]scoreboard.Entry, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[int][]scoreboard.Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var all map[int][]scoreboard.Entry
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	if all == nil {
		all = make(map[int][]scoreboard.Entry)
	}
	return all, nil
}

func (c *Cache) write(all map[int][]scoreboard.Entry) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache tmp: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
