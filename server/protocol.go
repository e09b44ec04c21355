package main

// Client -> Server control messages (JSON text frames). Every other text
// frame is a compact game command handed to the match.
const (
	MsgGameRequest = "game-request"
	MsgPlayerReady = "player-ready"
	MsgLeaveGame   = "leave-game"
)

// Server -> Client control messages
const (
	MsgConnectionSuccess = "connection-success"
	MsgConnectionFail    = "connection-fail"
	MsgReadyFail         = "ready-fail"
)

// GameRequest asks to join a match
type GameRequest struct {
	MatchName   string `json:"matchName"`
	Password    string `json:"password,omitempty"`
	PlayerName  string `json:"playerName"`
	PlayerColor int    `json:"playerColor"`
}

// ConnectionSuccess confirms a join
type ConnectionSuccess struct {
	ID    string `json:"id"`
	Match string `json:"match"`
}

// FailMsg carries a rejection reason
type FailMsg struct {
	Reason string `json:"reason"`
}

// CreateMatchRequest is the body of POST /api/games
type CreateMatchRequest struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Players  int    `json:"players,omitempty"`
}

// CreateMatchResponse returns the owner token of a new match
type CreateMatchResponse struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}
