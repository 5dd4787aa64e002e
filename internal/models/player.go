package models

import "github.com/google/uuid"

// Player is a participant in a lobby. Players only exist for as long as the
// connection that created them stays in the lobby.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Score    int       `json:"score"`
	IsHost   bool      `json:"isHost"`
}
