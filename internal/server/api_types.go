package server

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorResponse struct {
	Error string `json:"error"`
}

// ============================================================================
// SESSIONS (player-name claims)
// ============================================================================
type RegisterSessionRequest struct {
	PlayerName string `json:"playerName"`
	SessionID  string `json:"sessionId"`
}

type UnregisterSessionRequest struct {
	PlayerName string `json:"playerName"`
	SessionID  string `json:"sessionId"`
}

type SessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CheckNameResponse struct {
	Available  bool   `json:"available"`
	PlayerName string `json:"playerName"`
}

type ActiveSessionsResponse struct {
	ActivePlayers []string `json:"activePlayers"`
	Count         int      `json:"count"`
}

// ============================================================================
// SCORE COMMIT
// ============================================================================
type CommitEntry struct {
	PlayerName string  `json:"player_name"`
	Score      float64 `json:"score"`
}

type CommitScoresRequest struct {
	EventID int           `json:"event_id"`
	GameID  int           `json:"game_id"`
	Entries []CommitEntry `json:"entries"`
}

type CommitScoresResponse struct {
	Committed int `json:"committed"`
}

// ============================================================================
// HEALTH
// ============================================================================
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	ActiveGames int    `json:"activeGames"`
}
