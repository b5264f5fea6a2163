package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"gamenight-server/internal/scoreboard"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/websocket", s.websocketHandler)

	mux.HandleFunc("GET /api/health", s.healthHandler)

	mux.HandleFunc("GET /api/scores", s.listScoresHandler)
	mux.HandleFunc("POST /api/scores", s.commitScoresHandler)

	mux.HandleFunc("POST /api/sessions/register", s.registerSessionHandler)
	mux.HandleFunc("POST /api/sessions/unregister", s.unregisterSessionHandler)
	mux.HandleFunc("GET /api/sessions/check/{playerName}", s.checkNameHandler)
	mux.HandleFunc("GET /api/sessions/active", s.activeSessionsHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"}, // TODO: make environment-specific
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	})

	return c.Handler(mux)
}

// websocketHandler owns one connection for its whole life: handshake,
// registration, the read loop, and cleanup. Messages are handled strictly in
// arrival order for this connection.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connID := s.registry.Register(socket)
	s.health.Track(connID)
	log.Info().Str("connection_id", connID).Int("total", s.registry.Count()).Msg("client connected")

	defer func() {
		s.registry.Unregister(connID)
		s.limiter.RemoveConnection(connID)
		s.health.RemoveConnection(connID)
		log.Info().Str("connection_id", connID).Int("total", s.registry.Count()).Msg("client disconnected")
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Debug().Err(err).Str("connection_id", connID).Msg("read loop ended")
			return
		}

		if msgType != websocket.MessageText {
			log.Warn().Str("connection_id", connID).Msg("non-text input ignored")
			continue
		}

		s.health.UpdateActivity(connID)

		if !s.limiter.Allow(connID) {
			log.Warn().Str("connection_id", connID).Msg("rate limit exceeded, dropping message")
			continue
		}

		s.hub.HandleMessage(connID, socket, data)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: s.registry.Count(),
		ActiveGames: s.store.Games(),
	})
}

// commitScoresHandler finalizes a roster: every entry becomes a permanent
// record and the in-progress roster is discarded. Called exactly once per
// explicit user submit.
func (s *Server) commitScoresHandler(w http.ResponseWriter, r *http.Request) {
	var req CommitScoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commit payload")
		return
	}

	if req.EventID == 0 || req.GameID == 0 || len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "event_id, game_id and entries are required")
		return
	}

	entries := make([]scoreboard.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		if e.PlayerName == "" {
			writeError(w, http.StatusBadRequest, "entries require a player_name")
			return
		}
		entries = append(entries, scoreboard.Entry{Name: e.PlayerName, Score: e.Score})
	}

	if err := s.committer.CommitScores(r.Context(), req.EventID, req.GameID, entries); err != nil {
		log.Error().Err(err).Int("game_id", req.GameID).Msg("score commit failed")
		writeError(w, http.StatusInternalServerError, "Failed to commit scores")
		return
	}

	s.store.Remove(req.GameID)
	log.Info().Int("game_id", req.GameID).Int("entries", len(entries)).Msg("roster committed")

	writeJSON(w, http.StatusCreated, CommitScoresResponse{Committed: len(entries)})
}

func (s *Server) listScoresHandler(w http.ResponseWriter, r *http.Request) {
	eventID := queryInt(r, "event_id")
	gameID := queryInt(r, "game_id")

	records, err := s.committer.ListScores(r.Context(), eventID, gameID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list scores")
		writeError(w, http.StatusInternalServerError, "Failed to fetch scores")
		return
	}

	if records == nil {
		records = []ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) registerSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid register payload")
		return
	}

	if req.PlayerName == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Player name and session ID required")
		return
	}

	if err := s.sessions.Claim(req.PlayerName, req.SessionID); err != nil {
		if errors.Is(err, ErrNameTaken) {
			writeError(w, http.StatusConflict, "Player already logged in from another device")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to register session")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Success: true,
		Message: "Player " + req.PlayerName + " registered",
	})
}

func (s *Server) unregisterSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req UnregisterSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unregister payload")
		return
	}

	if req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "Player name required")
		return
	}

	s.sessions.Release(req.PlayerName, req.SessionID)

	writeJSON(w, http.StatusOK, SessionResponse{
		Success: true,
		Message: "Player " + req.PlayerName + " unregistered",
	})
}

func (s *Server) checkNameHandler(w http.ResponseWriter, r *http.Request) {
	playerName := r.PathValue("playerName")

	writeJSON(w, http.StatusOK, CheckNameResponse{
		Available:  !s.sessions.IsNameTaken(playerName),
		PlayerName: playerName,
	})
}

func (s *Server) activeSessionsHandler(w http.ResponseWriter, r *http.Request) {
	players := s.sessions.ActivePlayers()

	writeJSON(w, http.StatusOK, ActiveSessionsResponse{
		ActivePlayers: players,
		Count:         len(players),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// queryInt parses an optional integer query parameter; absent or malformed
// values read as zero, which the persistence layer treats as "no filter".
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
