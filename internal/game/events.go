// internal/game/events.go
package game

import (
	"github.com/google/uuid"
	"github.com/showguessr/server/internal/models"
)

// EventType names an outbound message.
type EventType string

const (
	EventLobbyCreated EventType = "lobby_created"
	EventLobbyUpdated EventType = "lobby_updated"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventGameStarted  EventType = "game_started"
	EventNewRound     EventType = "new_round"
	EventAnswerResult EventType = "answer_result"
	EventRoundEnd     EventType = "round_end"
	EventGameEnd      EventType = "game_end"
	EventError        EventType = "error"
)

// Event is the envelope every outbound message is sent in.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type LobbyCreatedPayload struct {
	Lobby    models.Lobby `json:"lobby"`
	PlayerID uuid.UUID    `json:"playerId"`
}

type LobbyUpdatedPayload struct {
	Lobby models.Lobby `json:"lobby"`
}

type PlayerJoinedPayload struct {
	Player models.Player `json:"player"`
	Lobby  models.Lobby  `json:"lobby"`
}

type PlayerLeftPayload struct {
	PlayerID uuid.UUID      `json:"playerId"`
	Lobby    models.Lobby   `json:"lobby"`
	NewHost  *models.Player `json:"newHost,omitempty"`
}

type GameStartedPayload struct {
	Lobby models.Lobby `json:"lobby"`
}

// NewRoundPayload announces a round. Duration is in seconds.
type NewRoundPayload struct {
	RoundNumber int    `json:"roundNumber"`
	ImageURL    string `json:"imageUrl"`
	TotalRounds int    `json:"totalRounds"`
	Duration    int    `json:"duration"`
}

// AnswerResultPayload reports a submission to the room. TimeToAnswer is in milliseconds.
type AnswerResultPayload struct {
	PlayerID     uuid.UUID `json:"playerId"`
	Username     string    `json:"username"`
	Correct      bool      `json:"correct"`
	Points       int       `json:"points"`
	TimeToAnswer int64     `json:"timeToAnswer"`
}

// RoundEndPayload closes a round. NextRoundIn (seconds) is absent after the final round.
type RoundEndPayload struct {
	RoundNumber   int             `json:"roundNumber"`
	CorrectAnswer string          `json:"correctAnswer"`
	Year          int             `json:"year,omitempty"`
	Leaderboard   []models.Player `json:"leaderboard"`
	NextRoundIn   *int            `json:"nextRoundIn,omitempty"`
}

type GameEndPayload struct {
	FinalLeaderboard []models.Player `json:"finalLeaderboard"`
	Winner           *models.Player  `json:"winner"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: msg}}
}
