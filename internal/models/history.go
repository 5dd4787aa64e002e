package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Kinds of session records published for the historian.
const (
	RecordGameStarted = "game_started"
	RecordRoundEnd    = "round_end"
	RecordGameEnd     = "game_end"
	RecordGameAborted = "game_aborted"
)

// SessionRecord is one entry in a game's history queue.
type SessionRecord struct {
	LobbyID   uuid.UUID       `json:"lobbyId"`
	GameID    uuid.UUID       `json:"gameId"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // epoch millis
}

// GameStartedRecord is the payload of a game_started record.
type GameStartedRecord struct {
	LobbyName string        `json:"lobbyName"`
	Settings  LobbySettings `json:"settings"`
	Players   []Player      `json:"players"`
}

// RoundEndRecord is the payload of a round_end record.
type RoundEndRecord struct {
	RoundNumber int                 `json:"roundNumber"`
	Content     ShowContent         `json:"content"`
	StartedAt   int64               `json:"startedAt"`
	Correct     map[uuid.UUID]int64 `json:"correct"` // playerID -> answer time, epoch millis
}

// GameEndRecord is the payload of game_end and game_aborted records.
type GameEndRecord struct {
	Leaderboard []Player `json:"leaderboard"`
	Rounds      int      `json:"rounds"`
}
