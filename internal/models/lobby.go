// internal/models/lobby.go
package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// LobbyStatus is the lifecycle state of a lobby.
type LobbyStatus string

const (
	StatusWaiting  LobbyStatus = "waiting"
	StatusPlaying  LobbyStatus = "playing"
	StatusFinished LobbyStatus = "finished"
)

// LobbySettings are chosen by the host while the lobby is waiting.
type LobbySettings struct {
	MaxPlayers           int      `json:"maxPlayers"`
	RoundDurationSeconds int      `json:"roundDuration"` // seconds each round stays open
	TotalRounds          int      `json:"totalRounds"`
	Category             Category `json:"category"`
}

// DefaultSettings returns the settings used when a lobby is created without any.
func DefaultSettings() LobbySettings {
	return LobbySettings{
		MaxPlayers:           8,
		RoundDurationSeconds: 30,
		TotalRounds:          10,
		Category:             CategoryMovie,
	}
}

// RoundDuration converts RoundDurationSeconds into a time.Duration.
func (s LobbySettings) RoundDuration() time.Duration {
	return time.Duration(s.RoundDurationSeconds) * time.Second
}

// SettingsPatch is a partial settings update. Nil fields keep their current value.
type SettingsPatch struct {
	MaxPlayers           *int      `json:"maxPlayers,omitempty" validate:"omitempty,min=2,max=50"`
	RoundDurationSeconds *int      `json:"roundDuration,omitempty" validate:"omitempty,min=5,max=300"`
	TotalRounds          *int      `json:"totalRounds,omitempty" validate:"omitempty,min=1,max=50"`
	Category             *Category `json:"category,omitempty" validate:"omitempty,oneof=anime movie cartoon tv_series"`
}

// Apply merges the patch over s and returns the result.
func (p SettingsPatch) Apply(s LobbySettings) LobbySettings {
	if p.MaxPlayers != nil {
		s.MaxPlayers = *p.MaxPlayers
	}
	if p.RoundDurationSeconds != nil {
		s.RoundDurationSeconds = *p.RoundDurationSeconds
	}
	if p.TotalRounds != nil {
		s.TotalRounds = *p.TotalRounds
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	return s
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.MaxPlayers == nil && p.RoundDurationSeconds == nil && p.TotalRounds == nil && p.Category == nil
}

// Lobby is a named group of players sharing settings, awaiting or running one game.
type Lobby struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	HostID       uuid.UUID     `json:"hostId"`
	Players      []Player      `json:"players"`
	Settings     LobbySettings `json:"settings"`
	Status       LobbyStatus   `json:"status"`
	CurrentRound int           `json:"currentRound"`
	CreatedAt    time.Time     `json:"createdAt"`

	// GameID identifies the game currently (or last) played in this lobby.
	GameID uuid.UUID `json:"gameId,omitempty"`
}

// PlayerIndex returns the position of playerID in Players, or -1.
func (l *Lobby) PlayerIndex(playerID uuid.UUID) int {
	for i := range l.Players {
		if l.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no mutable state with l.
func (l *Lobby) Clone() Lobby {
	c := *l
	c.Players = make([]Player, len(l.Players))
	copy(c.Players, l.Players)
	return c
}

// Leaderboard returns the players ordered by descending score. Players with
// equal scores keep their join order.
func (l *Lobby) Leaderboard() []Player {
	board := make([]Player, len(l.Players))
	copy(board, l.Players)
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	return board
}
