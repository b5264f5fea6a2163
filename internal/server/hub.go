package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"gamenight-server/internal/protocol"
	"gamenight-server/internal/scoreboard"
)

// Hub accepts inbound client messages, mutates the score store, and fans the
// resulting events out to registered connections. It is the only component
// allowed to write to the store.
//
// Each message is handled atomically and independently; there is no
// multi-step session state. For score updates the upsert and its broadcast
// run inside a per-game exclusive section, so one mutation is fully
// delivered before the next begins for the same game. Snapshot reads bypass
// that section and see whatever the store holds at the instant of the read.
type Hub struct {
	store       *scoreboard.Store
	registry    *ConnectionRegistry
	sendTimeout time.Duration

	gameMu sync.Mutex
	games  map[int]*sync.Mutex
}

func NewHub(store *scoreboard.Store, registry *ConnectionRegistry, sendTimeout time.Duration) *Hub {
	return &Hub{
		store:       store,
		registry:    registry,
		sendTimeout: sendTimeout,
		games:       make(map[int]*sync.Mutex),
	}
}

// HandleMessage decodes and processes one inbound message from connID.
// Malformed payloads are logged and dropped; the connection stays open and
// gets no reply.
func (h *Hub) HandleMessage(connID string, conn *websocket.Conn, data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", connID).Msg("dropping malformed message")
		return
	}

	switch m := msg.(type) {
	case protocol.RequestGameState:
		h.handleRequestGameState(connID, conn, m)
	case protocol.ScoreUpdate:
		h.handleScoreUpdate(m)
	}
}

// handleRequestGameState unicasts a full roster snapshot to the requester.
// Pure read: never blocks behind in-flight updates.
func (h *Hub) handleRequestGameState(connID string, conn *websocket.Conn, req protocol.RequestGameState) {
	roster := h.store.Roster(req.GameID)

	entries := make([]protocol.SnapshotEntry, 0, len(roster))
	for _, e := range roster {
		entries = append(entries, protocol.SnapshotEntry{
			Name:     e.Name,
			Score:    e.Score,
			EditedBy: e.EditedBy,
		})
	}

	payload, err := protocol.EncodeGameState(req.GameID, entries)
	if err != nil {
		log.Error().Err(err).Int("game_id", req.GameID).Msg("failed to encode snapshot")
		return
	}

	h.send(connID, conn, payload)
}

// handleScoreUpdate applies a last-writer-wins upsert and broadcasts the
// delta to every registered connection, including the sender.
func (h *Hub) handleScoreUpdate(upd protocol.ScoreUpdate) {
	lock := h.lockGame(upd.GameID)
	lock.Lock()
	defer lock.Unlock()

	entry := h.store.Upsert(upd.GameID, upd.PlayerName, upd.Score, upd.EditedBy)

	payload, err := protocol.EncodeScoreUpdate(upd.GameID, protocol.Delta{
		PlayerName: entry.Name,
		Score:      entry.Score,
		EditedBy:   entry.EditedBy,
	})
	if err != nil {
		log.Error().Err(err).Int("game_id", upd.GameID).Msg("failed to encode delta")
		return
	}

	h.broadcast(payload)
}

// broadcast delivers payload to every open connection, best effort per
// recipient. A failed send marks that connection closed and moves on; it
// never aborts delivery to the rest.
func (h *Hub) broadcast(payload []byte) {
	h.registry.ForEachOpen(func(id string, conn *websocket.Conn) {
		h.send(id, conn, payload)
	})
}

// send writes payload to one connection with a bounded timeout so a slow or
// dead recipient cannot stall anyone else.
func (h *Hub) send(connID string, conn *websocket.Conn, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		log.Warn().Err(err).Str("connection_id", connID).Msg("send failed, dropping connection")
		h.registry.MarkClosed(connID)
	}
}

// lockGame returns the exclusive section for gameID, creating it on first
// use. Sections are never removed; the per-game mutex footprint is tiny.
func (h *Hub) lockGame(gameID int) *sync.Mutex {
	h.gameMu.Lock()
	defer h.gameMu.Unlock()

	lock, ok := h.games[gameID]
	if !ok {
		lock = &sync.Mutex{}
		h.games[gameID] = lock
	}
	return lock
}
