// internal/database/history.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/showguessr/server/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trivia_games (
	id           UUID PRIMARY KEY,
	lobby_id     UUID NOT NULL,
	lobby_name   TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	total_rounds INT NOT NULL DEFAULT 0,
	rounds_played INT NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'in_progress',
	start_time   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time     TIMESTAMPTZ,
	last_seq     BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trivia_rounds (
	game_id      UUID NOT NULL REFERENCES trivia_games(id) ON DELETE CASCADE,
	round_number INT NOT NULL,
	content_id   TEXT NOT NULL,
	title        TEXT NOT NULL,
	category     TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	correct      JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (game_id, round_number)
);

CREATE TABLE IF NOT EXISTS trivia_results (
	game_id   UUID NOT NULL REFERENCES trivia_games(id) ON DELETE CASCADE,
	player_id UUID NOT NULL,
	username  TEXT NOT NULL,
	score     INT NOT NULL,
	rank      INT NOT NULL,
	PRIMARY KEY (game_id, player_id)
);
`

// Game statuses stored in trivia_games.status.
const (
	GameInProgress = "in_progress"
	GameCompleted  = "completed"
	GameAborted    = "aborted"
	GameAbandoned  = "abandoned"
)

// HistoryStore persists session records into the trivia_* tables.
type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

// EnsureSchema creates the history tables when they do not exist yet.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// SaveRecords writes a batch of records in a single transaction. Records may
// arrive out of order, so every record upserts its game row first.
func (s *HistoryStore) SaveRecords(ctx context.Context, recs []models.SessionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := saveRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("record %s/%d (%s): %w", rec.GameID, rec.Seq, rec.Kind, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx save records: %w", err)
	}
	return nil
}

// MarkAbandoned flags a game that is still in progress as abandoned.
// It reports whether a row changed.
func (s *HistoryStore) MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trivia_games
		SET status = $2, end_time = NOW()
		WHERE id = $1 AND status = $3
	`, gameID, GameAbandoned, GameInProgress)
	if err != nil {
		return false, fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func saveRecordTx(ctx context.Context, tx pgx.Tx, rec models.SessionRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO trivia_games (id, lobby_id, start_time, last_seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET last_seq = GREATEST(trivia_games.last_seq, EXCLUDED.last_seq)
	`, rec.GameID, rec.LobbyID, millis(rec.Timestamp), rec.Seq)
	if err != nil {
		return err
	}

	switch rec.Kind {
	case models.RecordGameStarted:
		var p models.GameStartedRecord
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE trivia_games
			SET lobby_name = $2, category = $3, total_rounds = $4, start_time = $5
			WHERE id = $1
		`, rec.GameID, p.LobbyName, string(p.Settings.Category), p.Settings.TotalRounds, millis(rec.Timestamp))
		return err

	case models.RecordRoundEnd:
		var p models.RoundEndRecord
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		correct, err := json.Marshal(p.Correct)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO trivia_rounds (game_id, round_number, content_id, title, category, started_at, correct)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (game_id, round_number) DO NOTHING
		`, rec.GameID, p.RoundNumber, p.Content.ID, p.Content.Title, string(p.Content.Category), millis(p.StartedAt), correct)
		return err

	case models.RecordGameEnd, models.RecordGameAborted:
		var p models.GameEndRecord
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		status := GameCompleted
		if rec.Kind == models.RecordGameAborted {
			status = GameAborted
		}
		_, err = tx.Exec(ctx, `
			UPDATE trivia_games
			SET status = $2, rounds_played = $3, end_time = $4
			WHERE id = $1
		`, rec.GameID, status, p.Rounds, millis(rec.Timestamp))
		if err != nil {
			return err
		}
		ranks := Ranks(p.Leaderboard)
		for i, pl := range p.Leaderboard {
			_, err = tx.Exec(ctx, `
				INSERT INTO trivia_results (game_id, player_id, username, score, rank)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (game_id, player_id) DO UPDATE SET score = $4, rank = $5
			`, rec.GameID, pl.ID, pl.Username, pl.Score, ranks[i])
			if err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// Ranks assigns competition ranks to a leaderboard sorted by descending score:
// equal scores share a rank and the next distinct score skips ahead.
func Ranks(board []models.Player) []int {
	out := make([]int, len(board))
	for i, p := range board {
		if i > 0 && p.Score == board[i-1].Score {
			out[i] = out[i-1]
			continue
		}
		out[i] = i + 1
	}
	return out
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
