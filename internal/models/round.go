package models

import (
	"time"

	"github.com/google/uuid"
)

// GameRound is the single active round of a playing lobby.
type GameRound struct {
	RoundNumber int         `json:"roundNumber"`
	Content     ShowContent `json:"content"`
	StartTime   time.Time   `json:"startTime"`

	// CorrectAnswers maps playerID -> time of their first correct answer.
	CorrectAnswers map[uuid.UUID]time.Time `json:"-"`
}

// Clone returns a deep copy of the round.
func (r *GameRound) Clone() GameRound {
	c := *r
	c.Content = r.Content.Clone()
	c.CorrectAnswers = make(map[uuid.UUID]time.Time, len(r.CorrectAnswers))
	for id, ts := range r.CorrectAnswers {
		c.CorrectAnswers[id] = ts
	}
	return c
}
