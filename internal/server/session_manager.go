package server

import (
	"errors"
	"sort"
	"sync"
)

// ErrNameTaken is returned when a player name is already claimed by a
// different session.
var ErrNameTaken = errors.New("NAME_TAKEN: player already registered from another device")

// SessionManager tracks which session currently holds each player name, so
// two devices cannot act as the same player. The editedBy tag on score
// updates is expected to be a session id obtained from a successful Claim.
// It enforces nothing on the websocket path; the hub accepts whatever tag it
// is given.
type SessionManager struct {
	mu     sync.RWMutex
	claims map[string]string // player name -> session id
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		claims: make(map[string]string),
	}
}

// Claim registers playerName to sessionID. Re-claiming with the same session
// is a no-op; a claim held by another session is a conflict.
func (sm *SessionManager) Claim(playerName, sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if holder, ok := sm.claims[playerName]; ok && holder != sessionID {
		return ErrNameTaken
	}

	sm.claims[playerName] = sessionID
	return nil
}

// Release removes the claim on playerName, but only if sessionID holds it.
// A stranger's release is silently ignored.
func (sm *SessionManager) Release(playerName, sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.claims[playerName] == sessionID {
		delete(sm.claims, playerName)
	}
}

// IsNameTaken reports whether any session currently holds playerName.
func (sm *SessionManager) IsNameTaken(playerName string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, ok := sm.claims[playerName]
	return ok
}

// ActivePlayers returns the claimed player names, sorted for stable output.
func (sm *SessionManager) ActivePlayers() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	players := make([]string, 0, len(sm.claims))
	for name := range sm.claims {
		players = append(players, name)
	}
	sort.Strings(players)
	return players
}
