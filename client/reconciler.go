package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"gamenight-server/internal/protocol"
	"gamenight-server/internal/scoreboard"
)

// Transport is what the reconciler needs from a connection: typed sends,
// subscription by wire type, and connectivity signals. *Client satisfies it.
type Transport interface {
	Send(msg any) error
	Connected() bool
	Subscribe(msgType string, h MessageHandler) func()
	OnStateChange(fn func(State)) func()
}

// CommitFunc finalizes a roster out of band, typically by POSTing it to the
// server's scores endpoint.
type CommitFunc func(ctx context.Context, gameID int, roster []scoreboard.Entry) error

// Reconciler keeps one game's local mirror converged with the server's
// authoritative roster. It applies three rules:
//
//   - a snapshot replaces the mirror wholesale, even when empty;
//   - a delta upserts one entry in place, idempotently;
//   - a local edit lands in the mirror immediately and is sent if the
//     connection is up, otherwise it simply waits for the next resync.
//
// After a reconnect the reconciler requests exactly one fresh snapshot, and
// re-arms so the next reconnect does the same.
type Reconciler struct {
	gameID    int
	sessionID string
	transport Transport
	cache     *Cache
	log       zerolog.Logger

	mu     sync.Mutex
	mirror []scoreboard.Entry
	synced bool

	unsubs []func()
}

// NewReconciler builds a reconciler for gameID. sessionID tags this device's
// edits; cache may be nil when no cross-process sharing is wanted.
func NewReconciler(gameID int, sessionID string, transport Transport, cache *Cache, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		gameID:    gameID,
		sessionID: sessionID,
		transport: transport,
		cache:     cache,
		log:       log,
	}
}

// Activate seeds the mirror from the shared cache, subscribes to this game's
// server events, and requests an initial snapshot if the connection is
// already up. Call Release when done with the game.
func (r *Reconciler) Activate() {
	if r.cache != nil {
		cached, err := r.cache.Load(r.gameID)
		if err != nil {
			r.log.Warn().Err(err).Int("game_id", r.gameID).Msg("cache load failed, starting empty")
		} else if len(cached) > 0 {
			r.mu.Lock()
			r.mirror = cached
			r.mu.Unlock()
		}
	}

	r.unsubs = append(r.unsubs,
		r.transport.Subscribe(protocol.GameStateType(r.gameID), r.onSnapshot),
		r.transport.Subscribe(protocol.ScoreUpdateType(r.gameID), r.onDelta),
		r.transport.OnStateChange(r.onStateChange),
	)

	if r.transport.Connected() {
		r.requestSync()
	}
}

// Release drops the reconciler's subscriptions. The mirror and cache are
// left as they are.
func (r *Reconciler) Release() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// Mirror returns a copy of the current local roster.
func (r *Reconciler) Mirror() []scoreboard.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]scoreboard.Entry, len(r.mirror))
	copy(out, r.mirror)
	return out
}

// Synced reports whether a snapshot has been applied on the current
// connection.
func (r *Reconciler) Synced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced
}

// LocalEdit records a score for name in the mirror and publishes it when the
// connection is up. A send failure is not an error for the caller: the edit
// is kept locally and the next snapshot reconciles it.
func (r *Reconciler) LocalEdit(name string, score float64) {
	r.mu.Lock()
	r.upsertLocked(scoreboard.Entry{Name: name, Score: score, EditedBy: r.sessionID})
	r.persistLocked()
	r.mu.Unlock()

	err := r.transport.Send(protocol.ScoreUpdate{
		GameID:     r.gameID,
		PlayerName: name,
		Score:      score,
		EditedBy:   r.sessionID,
	})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		r.log.Warn().Err(err).Str("player", name).Msg("score publish failed, kept locally")
	}
}

// RemoveLocal drops name from the mirror only. Nothing is sent: removal is a
// local editing gesture, and the entry reappears if the server still has it
// at next resync.
func (r *Reconciler) RemoveLocal(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.mirror {
		if r.mirror[i].Name == name {
			r.mirror = append(r.mirror[:i], r.mirror[i+1:]...)
			break
		}
	}
	r.persistLocked()
}

// Foreign reports whether entry was last edited by a different session.
func (r *Reconciler) Foreign(entry scoreboard.Entry) bool {
	return entry.EditedBy != "" && entry.EditedBy != r.sessionID
}

// Submit finalizes the mirror through commit, then clears the shared cache
// for this game. The mirror itself is kept so the caller can still display
// what was submitted.
func (r *Reconciler) Submit(ctx context.Context, commit CommitFunc) error {
	roster := r.Mirror()
	if err := commit(ctx, r.gameID, roster); err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.Delete(r.gameID); err != nil {
			r.log.Warn().Err(err).Int("game_id", r.gameID).Msg("cache clear after submit failed")
		}
	}
	return nil
}

// onSnapshot applies a full roster snapshot. Snapshots are authoritative: an
// empty one empties the mirror.
func (r *Reconciler) onSnapshot(data json.RawMessage) {
	var entries []protocol.SnapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.log.Warn().Err(err).Int("game_id", r.gameID).Msg("bad snapshot payload")
		return
	}

	mirror := make([]scoreboard.Entry, 0, len(entries))
	for _, e := range entries {
		mirror = append(mirror, scoreboard.Entry{Name: e.Name, Score: e.Score, EditedBy: e.EditedBy})
	}

	r.mu.Lock()
	r.mirror = mirror
	r.synced = true
	r.persistLocked()
	r.mu.Unlock()
}

// onDelta upserts one entry. Replays of the same delta are harmless.
func (r *Reconciler) onDelta(data json.RawMessage) {
	var d protocol.Delta
	if err := json.Unmarshal(data, &d); err != nil {
		r.log.Warn().Err(err).Int("game_id", r.gameID).Msg("bad delta payload")
		return
	}
	if d.PlayerName == "" {
		return
	}

	r.mu.Lock()
	r.upsertLocked(scoreboard.Entry{Name: d.PlayerName, Score: d.Score, EditedBy: d.EditedBy})
	r.persistLocked()
	r.mu.Unlock()
}

// onStateChange requests one resync per reconnection. The synced flag drops
// on every disconnect so the next open triggers a fresh snapshot.
func (r *Reconciler) onStateChange(s State) {
	switch s {
	case StateOpen:
		r.requestSync()
	case StateRetrying, StateClosed:
		r.mu.Lock()
		r.synced = false
		r.mu.Unlock()
	}
}

func (r *Reconciler) requestSync() {
	err := r.transport.Send(protocol.RequestGameState{GameID: r.gameID})
	if err != nil {
		r.log.Warn().Err(err).Int("game_id", r.gameID).Msg("snapshot request failed")
	}
}

func (r *Reconciler) upsertLocked(entry scoreboard.Entry) {
	for i := range r.mirror {
		if r.mirror[i].Name == entry.Name {
			r.mirror[i] = entry
			return
		}
	}
	r.mirror = append(r.mirror, entry)
}

func (r *Reconciler) persistLocked() {
	if r.cache == nil {
		return
	}
	if err := r.cache.Save(r.gameID, r.mirror); err != nil {
		r.log.Warn().Err(err).Int("game_id", r.gameID).Msg("cache save failed")
	}
}
