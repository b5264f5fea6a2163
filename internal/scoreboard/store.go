// Package scoreboard holds the in-memory, in-progress score state for games
// being tallied right now. Rosters live only as long as the process; once a
// roster is committed to permanent storage it is removed. Committed scores
// are someone else's problem.
package scoreboard

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Entry is one player's current tally for one in-progress game. EditedBy
// carries the session identifier of whoever wrote it last; it exists for UI
// attribution only and is never used to gate writes.
type Entry struct {
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	EditedBy  string    `json:"editedBy,omitempty"`
	UpdatedAt time.Time `json:"lastUpdated,omitzero"`
}

// Store maps game ids to their in-progress rosters. It is the single source
// of truth for uncommitted scores while the process is alive. Writes are
// last-writer-wins per entry; rosters preserve first-insertion order.
type Store struct {
	mu      sync.RWMutex
	rosters map[int][]Entry
	clock   clockwork.Clock
}

func NewStore() *Store {
	return NewStoreWithClock(clockwork.NewRealClock())
}

func NewStoreWithClock(clock clockwork.Clock) *Store {
	return &Store{
		rosters: make(map[int][]Entry),
		clock:   clock,
	}
}

// Roster returns a copy of the current roster for gameID, creating an empty
// one if the game has never been touched. It never fails and never returns a
// partially updated roster.
func (s *Store) Roster(gameID int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster, ok := s.rosters[gameID]
	if !ok {
		s.rosters[gameID] = nil
	}

	out := make([]Entry, len(roster))
	copy(out, roster)
	return out
}

// Upsert records a score for (gameID, name). An existing entry is overwritten
// in place; a new entry is appended, preserving insertion order. There is no
// version check: the last write wins, and the editor tag lets clients surface
// concurrent edits without blocking them.
func (s *Store) Upsert(gameID int, name string, score float64, editedBy string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		Name:      name,
		Score:     score,
		EditedBy:  editedBy,
		UpdatedAt: s.clock.Now(),
	}

	roster := s.rosters[gameID]
	for i := range roster {
		if roster[i].Name == name {
			roster[i] = entry
			return entry
		}
	}

	s.rosters[gameID] = append(roster, entry)
	return entry
}

// Remove discards the in-progress roster for gameID. Called once finalized
// scores have been committed.
func (s *Store) Remove(gameID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rosters, gameID)
}

// Games reports how many rosters are currently held. Diagnostics only.
func (s *Store) Games() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rosters)
}
