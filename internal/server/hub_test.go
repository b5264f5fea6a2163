package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"

	"gamenight-server/internal/config"
	"gamenight-server/internal/protocol"
	"gamenight-server/internal/scoreboard"
)

// fakeCommitter records commits instead of touching a database.
type fakeCommitter struct {
	mu      sync.Mutex
	commits []commitCall
	err     error
}

type commitCall struct {
	eventID int
	gameID  int
	entries []scoreboard.Entry
}

func (f *fakeCommitter) CommitScores(_ context.Context, eventID, gameID int, entries []scoreboard.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commits = append(f.commits, commitCall{eventID: eventID, gameID: gameID, entries: entries})
	return nil
}

func (f *fakeCommitter) ListScores(_ context.Context, eventID, gameID int) ([]ScoreRecord, error) {
	return nil, nil
}

func (f *fakeCommitter) calls() []commitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]commitCall(nil), f.commits...)
}

// newTestServer wires the full component graph minus the real database.
func newTestServer(t *testing.T) (*Server, *fakeCommitter, *httptest.Server) {
	t.Helper()

	clock := clockwork.NewRealClock()
	store := scoreboard.NewStore()
	registry := NewConnectionRegistry()
	committer := &fakeCommitter{}

	s := &Server{
		cfg: &config.Config{
			Server: config.ServerConfig{
				SendTimeout: 2 * time.Second,
				RateLimit:   100,
				RateWindow:  time.Second,
			},
		},
		store:     store,
		registry:  registry,
		hub:       NewHub(store, registry, 2*time.Second),
		sessions:  NewSessionManager(),
		committer: committer,
		limiter:   NewRateLimiter(100, time.Second, clock),
		health:    NewConnectionHealth(clock),
	}

	ts := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(ts.Close)
	return s, committer, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// a request/reply round trip guarantees the server has registered this
	// connection before the test sends anything through another one
	sendText(t, conn, `{"type":"request_game_state","gameId":0}`)
	readMessage(t, conn)

	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, data, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

func TestSnapshotIsUnicast(t *testing.T) {
	_, _, ts := newTestServer(t)

	asker := dialWS(t, ts)
	bystander := dialWS(t, ts)

	sendText(t, asker, `{"type":"request_game_state","gameId":7}`)

	msg, err := protocol.DecodeServer(readMessage(t, asker))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	state, ok := msg.(protocol.GameState)
	if !ok {
		t.Fatalf("expected GameState, got %T", msg)
	}
	if state.GameID != 7 || len(state.Entries) != 0 {
		t.Errorf("expected empty snapshot for game 7, got %+v", state)
	}

	expectSilence(t, bystander)
}

func TestScoreUpdateBroadcastsToEveryone(t *testing.T) {
	srv, _, ts := newTestServer(t)

	sender := dialWS(t, ts)
	receiver := dialWS(t, ts)

	sendText(t, sender, `{"type":"score_update","gameId":3,"player_name":"alice","score":42,"editedBy":"sess-1"}`)

	for _, conn := range []*websocket.Conn{sender, receiver} {
		msg, err := protocol.DecodeServer(readMessage(t, conn))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		evt, ok := msg.(protocol.ScoreUpdateEvent)
		if !ok {
			t.Fatalf("expected ScoreUpdateEvent, got %T", msg)
		}
		if evt.GameID != 3 || evt.Delta.PlayerName != "alice" || evt.Delta.Score != 42 || evt.Delta.EditedBy != "sess-1" {
			t.Errorf("delta wrong: %+v", evt)
		}
	}

	// the update also landed in the authoritative store
	roster := srv.store.Roster(3)
	if len(roster) != 1 || roster[0].Score != 42 {
		t.Errorf("store roster wrong: %+v", roster)
	}
}

// Late joiners reconstruct the roster from a snapshot; earlier updates are
// never replayed individually.
func TestLateJoinerCatchesUpViaSnapshot(t *testing.T) {
	_, _, ts := newTestServer(t)

	early := dialWS(t, ts)
	sendText(t, early, `{"type":"score_update","gameId":5,"player_name":"alice","score":10,"editedBy":"s1"}`)
	readMessage(t, early) // own broadcast
	sendText(t, early, `{"type":"score_update","gameId":5,"player_name":"bob","score":20,"editedBy":"s1"}`)
	readMessage(t, early)

	late := dialWS(t, ts)
	sendText(t, late, `{"type":"request_game_state","gameId":5}`)

	msg, err := protocol.DecodeServer(readMessage(t, late))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	state := msg.(protocol.GameState)
	if len(state.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", state.Entries)
	}
	if state.Entries[0].Name != "alice" || state.Entries[1].Name != "bob" {
		t.Errorf("insertion order lost: %+v", state.Entries)
	}
}

func TestMalformedMessageKeepsConnectionOpen(t *testing.T) {
	_, _, ts := newTestServer(t)

	conn := dialWS(t, ts)

	sendText(t, conn, `this is not json`)
	sendText(t, conn, `{"type":"mystery","gameId":1}`)
	sendText(t, conn, `{"type":"score_update","gameId":1}`)

	// the connection must still work after garbage
	sendText(t, conn, `{"type":"request_game_state","gameId":1}`)

	msg, err := protocol.DecodeServer(readMessage(t, conn))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := msg.(protocol.GameState); !ok {
		t.Fatalf("expected GameState, got %T", msg)
	}
}

// Four clients: A edits, B observes the broadcast, C overwrites A's entry,
// and a late-joining D sees exactly one converged entry in its snapshot.
func TestEditObserveOverwriteLateJoin(t *testing.T) {
	_, _, ts := newTestServer(t)

	a := dialWS(t, ts)
	b := dialWS(t, ts)

	sendText(t, a, `{"type":"score_update","gameId":7,"player_name":"Alice","score":10,"editedBy":"s1"}`)

	msg, err := protocol.DecodeServer(readMessage(t, b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	evt := msg.(protocol.ScoreUpdateEvent)
	if evt.GameID != 7 || evt.Delta.PlayerName != "Alice" || evt.Delta.Score != 10 || evt.Delta.EditedBy != "s1" {
		t.Fatalf("B saw wrong delta: %+v", evt)
	}

	c := dialWS(t, ts)
	sendText(t, c, `{"type":"score_update","gameId":7,"player_name":"Alice","score":12,"editedBy":"s2"}`)
	readMessage(t, c) // own broadcast confirms the write landed

	d := dialWS(t, ts)
	sendText(t, d, `{"type":"request_game_state","gameId":7}`)

	msg, err = protocol.DecodeServer(readMessage(t, d))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	state := msg.(protocol.GameState)
	if len(state.Entries) != 1 {
		t.Fatalf("expected exactly one Alice entry, got %+v", state.Entries)
	}
	got := state.Entries[0]
	if got.Name != "Alice" || got.Score != 12 || got.EditedBy != "s2" {
		t.Errorf("late snapshot not converged: %+v", got)
	}
}

func TestConcurrentUpdatesConverge(t *testing.T) {
	srv, _, ts := newTestServer(t)

	a := dialWS(t, ts)
	b := dialWS(t, ts)

	sendText(t, a, `{"type":"score_update","gameId":9,"player_name":"alice","score":1,"editedBy":"sess-a"}`)
	sendText(t, b, `{"type":"score_update","gameId":9,"player_name":"bob","score":2,"editedBy":"sess-b"}`)

	// each client sees both deltas, in some order
	for _, conn := range []*websocket.Conn{a, b} {
		seen := map[string]float64{}
		for i := 0; i < 2; i++ {
			msg, err := protocol.DecodeServer(readMessage(t, conn))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			d := msg.(protocol.ScoreUpdateEvent).Delta
			seen[d.PlayerName] = d.Score
		}
		if seen["alice"] != 1 || seen["bob"] != 2 {
			t.Errorf("deltas missing: %v", seen)
		}
	}

	roster := srv.store.Roster(9)
	if len(roster) != 2 {
		t.Errorf("expected both players in roster, got %+v", roster)
	}
}
