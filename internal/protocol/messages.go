// Package protocol defines the wire format spoken between the score tracker
// server and its clients. Inbound and outbound payloads are decoded at the
// boundary into a closed set of typed messages; anything else is an error for
// the caller to log and drop.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	TypeRequestGameState = "request_game_state"
	TypeScoreUpdate      = "score_update"

	gameStatePrefix   = "game_state_"
	scoreUpdatePrefix = "score_update_"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// RequestGameState asks the server for a full roster snapshot of one game.
type RequestGameState struct {
	GameID int
}

// ScoreUpdate publishes one player's new score for a game.
type ScoreUpdate struct {
	GameID     int
	PlayerName string
	Score      float64
	EditedBy   string
}

// SnapshotEntry is one roster row as it appears in a game_state payload.
type SnapshotEntry struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	EditedBy string  `json:"editedBy"`
}

// Delta is the single-entry payload of a score_update broadcast.
type Delta struct {
	PlayerName string  `json:"player_name"`
	Score      float64 `json:"score"`
	EditedBy   string  `json:"editedBy"`
}

// GameState is a decoded snapshot event (server → client, unicast).
type GameState struct {
	GameID  int
	Entries []SnapshotEntry
}

// ScoreUpdateEvent is a decoded delta event (server → client, broadcast).
type ScoreUpdateEvent struct {
	GameID int
	Delta  Delta
}

// clientEnvelope is the flat JSON shape clients put on the wire. Pointer
// fields distinguish "absent" from zero values during validation.
type clientEnvelope struct {
	Type       string   `json:"type"`
	GameID     *int     `json:"gameId,omitempty"`
	PlayerName *string  `json:"player_name,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	EditedBy   string   `json:"editedBy,omitempty"`
}

type serverEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeClient parses an inbound client message into one of the closed
// variants (RequestGameState or ScoreUpdate). Unparseable payloads, unknown
// types, and messages missing required fields are rejected.
func DecodeClient(data []byte) (any, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse client message: %w", err)
	}

	switch env.Type {
	case TypeRequestGameState:
		if env.GameID == nil {
			return nil, fmt.Errorf("%w: gameId", ErrMissingField)
		}
		return RequestGameState{GameID: *env.GameID}, nil

	case TypeScoreUpdate:
		if env.GameID == nil {
			return nil, fmt.Errorf("%w: gameId", ErrMissingField)
		}
		if env.PlayerName == nil || *env.PlayerName == "" {
			return nil, fmt.Errorf("%w: player_name", ErrMissingField)
		}
		if env.Score == nil {
			return nil, fmt.Errorf("%w: score", ErrMissingField)
		}
		return ScoreUpdate{
			GameID:     *env.GameID,
			PlayerName: *env.PlayerName,
			Score:      *env.Score,
			EditedBy:   env.EditedBy,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// EncodeClient marshals a client → server message onto the wire.
func EncodeClient(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case RequestGameState:
		return json.Marshal(clientEnvelope{
			Type:   TypeRequestGameState,
			GameID: &m.GameID,
		})
	case ScoreUpdate:
		return json.Marshal(clientEnvelope{
			Type:       TypeScoreUpdate,
			GameID:     &m.GameID,
			PlayerName: &m.PlayerName,
			Score:      &m.Score,
			EditedBy:   m.EditedBy,
		})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

// GameStateType returns the wire type string of a snapshot for one game,
// e.g. "game_state_7".
func GameStateType(gameID int) string {
	return gameStatePrefix + strconv.Itoa(gameID)
}

// ScoreUpdateType returns the wire type string of a delta for one game,
// e.g. "score_update_7".
func ScoreUpdateType(gameID int) string {
	return scoreUpdatePrefix + strconv.Itoa(gameID)
}

// EncodeGameState marshals a full roster snapshot. A nil entry slice encodes
// as an empty array so untouched games read back as an empty roster.
func EncodeGameState(gameID int, entries []SnapshotEntry) ([]byte, error) {
	if entries == nil {
		entries = []SnapshotEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot entries: %w", err)
	}
	return json.Marshal(serverEnvelope{
		Type: GameStateType(gameID),
		Data: data,
	})
}

// EncodeScoreUpdate marshals a single-entry delta broadcast.
func EncodeScoreUpdate(gameID int, d Delta) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal delta: %w", err)
	}
	return json.Marshal(serverEnvelope{
		Type: ScoreUpdateType(gameID),
		Data: data,
	})
}

// DecodeServer parses a server → client message into GameState or
// ScoreUpdateEvent. The game id is carried in the type string itself.
func DecodeServer(data []byte) (any, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse server message: %w", err)
	}

	if id, ok := trimGameID(env.Type, gameStatePrefix); ok {
		var entries []SnapshotEntry
		if err := json.Unmarshal(env.Data, &entries); err != nil {
			return nil, fmt.Errorf("parse snapshot data: %w", err)
		}
		return GameState{GameID: id, Entries: entries}, nil
	}

	if id, ok := trimGameID(env.Type, scoreUpdatePrefix); ok {
		var d Delta
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("parse delta data: %w", err)
		}
		return ScoreUpdateEvent{GameID: id, Delta: d}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

// RawType extracts just the type string of a server message, for handler
// dispatch without fully decoding the payload.
func RawType(data []byte) (string, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("parse server message: %w", err)
	}
	return env.Type, nil
}

func trimGameID(msgType, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(msgType, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}
