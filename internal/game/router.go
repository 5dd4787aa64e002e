// internal/game/router.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/showguessr/server/internal/lobby"
	"github.com/showguessr/server/internal/models"
	"github.com/sirupsen/logrus"
)

// Transport delivers events to connections and rooms. Rooms are keyed by lobby id.
type Transport interface {
	Send(connID string, ev Event)
	Broadcast(room uuid.UUID, ev Event)
	JoinRoom(connID string, room uuid.UUID)
	LeaveRoom(connID string, room uuid.UUID)
}

// Publisher receives session records for long-term history. Optional.
type Publisher interface {
	PublishSessionRecord(ctx context.Context, rec models.SessionRecord) error
}

// Config tunes round pacing.
type Config struct {
	// Intermission is the pause between a round ending and the next one starting.
	Intermission time.Duration
	// FetchTimeout bounds a single content fetch.
	FetchTimeout time.Duration
	// StartAttempts is how many times a scheduled round start is tried before the
	// game is aborted.
	StartAttempts int
	RetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Intermission:  5 * time.Second,
		FetchTimeout:  10 * time.Second,
		StartAttempts: 3,
		RetryDelay:    time.Second,
	}
}

const publishTimeout = 2 * time.Second

// Router turns inbound commands into registry operations and registry results into
// outbound events. It also drives each lobby's round timers.
type Router struct {
	registry  *lobby.Registry
	transport Transport
	clock     *RoundClock
	history   Publisher
	log       *logrus.Logger
	cfg       Config
	seq       atomic.Int64

	mu    sync.Mutex
	conns map[string]uuid.UUID // connID -> playerID
}

// NewRouter wires a router. history may be nil.
func NewRouter(registry *lobby.Registry, transport Transport, history Publisher, logger *logrus.Logger, cfg Config) *Router {
	if cfg.StartAttempts < 1 {
		cfg.StartAttempts = 1
	}
	return &Router{
		registry:  registry,
		transport: transport,
		clock:     NewRoundClock(logger),
		history:   history,
		log:       logger,
		cfg:       cfg,
		conns:     make(map[string]uuid.UUID),
	}
}

// Close stops every pending round timer.
func (r *Router) Close() {
	r.clock.Stop()
}

// HandleMessage decodes a raw inbound message and handles it.
func (r *Router) HandleMessage(connID string, data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		r.log.WithError(err).WithField("conn", connID).Debug("rejected message")
		r.transport.Send(connID, errorEvent(err.Error()))
		return
	}
	r.Handle(connID, cmd)
}

// Handle dispatches a decoded command from connID.
func (r *Router) Handle(connID string, cmd Command) {
	switch c := cmd.(type) {
	case CreateLobby:
		r.createLobby(connID, c)
	case JoinLobby:
		r.joinLobby(connID, c)
	case LeaveLobby:
		r.leave(connID, true)
	case UpdateSettings:
		r.updateSettings(connID, c)
	case StartGame:
		r.startGame(connID)
	case SubmitAnswer:
		r.submitAnswer(connID, c)
	case SkipRound:
		r.skipRound(connID)
	case ReturnToLobby:
		r.returnToLobby(connID)
	default:
		r.transport.Send(connID, errorEvent(ErrUnknownCommand.Error()))
	}
}

// Disconnect removes whatever player connID was playing as.
func (r *Router) Disconnect(connID string) {
	r.leave(connID, false)
}

// PlayerFor returns the player bound to connID.
func (r *Router) PlayerFor(connID string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[connID]
	return id, ok
}

func (r *Router) bind(connID string, playerID uuid.UUID) {
	r.mu.Lock()
	r.conns[connID] = playerID
	r.mu.Unlock()
}

// requirePlayer returns the caller's player id, or sends an error and reports false.
func (r *Router) requirePlayer(connID string) (uuid.UUID, bool) {
	id, ok := r.PlayerFor(connID)
	if !ok {
		r.sendError(connID, lobby.ErrNotInLobby)
	}
	return id, ok
}

func (r *Router) createLobby(connID string, c CreateLobby) {
	if _, ok := r.PlayerFor(connID); ok {
		r.transport.Send(connID, errorEvent("already in a lobby"))
		return
	}
	settings := models.DefaultSettings()
	if c.Settings != nil {
		settings = c.Settings.Apply(settings)
	}
	l, p := r.registry.CreateLobby(c.Username, c.LobbyName, settings)
	r.bind(connID, p.ID)
	r.transport.JoinRoom(connID, l.ID)
	r.transport.Send(connID, Event{Type: EventLobbyCreated, Payload: LobbyCreatedPayload{Lobby: l, PlayerID: p.ID}})
}

func (r *Router) joinLobby(connID string, c JoinLobby) {
	if _, ok := r.PlayerFor(connID); ok {
		r.transport.Send(connID, errorEvent("already in a lobby"))
		return
	}
	l, p, err := r.registry.JoinLobby(c.LobbyID, c.Username)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	r.bind(connID, p.ID)
	// Everyone already in the room hears about the newcomer; the newcomer gets the lobby.
	r.transport.Broadcast(l.ID, Event{Type: EventPlayerJoined, Payload: PlayerJoinedPayload{Player: p, Lobby: l}})
	r.transport.JoinRoom(connID, l.ID)
	r.transport.Send(connID, Event{Type: EventLobbyCreated, Payload: LobbyCreatedPayload{Lobby: l, PlayerID: p.ID}})
	r.log.WithFields(logrus.Fields{"lobby": l.ID, "player": p.ID}).Info("player joined")
}

// leave unbinds connID and removes its player from the lobby. explicit is true
// for a leave_lobby command, which reports an error when there is nothing to leave.
func (r *Router) leave(connID string, explicit bool) {
	r.mu.Lock()
	playerID, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()
	if !ok {
		if explicit {
			r.sendError(connID, lobby.ErrNotInLobby)
		}
		return
	}

	res, err := r.registry.LeaveLobby(playerID)
	if err != nil {
		r.log.WithError(err).WithField("player", playerID).Warn("leave failed")
		return
	}
	r.transport.LeaveRoom(connID, res.LobbyID)
	if res.Deleted {
		r.clock.Cancel(res.LobbyID)
		return
	}

	r.transport.Broadcast(res.LobbyID, Event{Type: EventPlayerLeft, Payload: PlayerLeftPayload{
		PlayerID: playerID,
		Lobby:    *res.Lobby,
		NewHost:  res.NewHost,
	}})

	if res.RoundActive && r.registry.AllPlayersAnswered(res.LobbyID) {
		if round, err := r.registry.GetActiveRound(res.LobbyID); err == nil {
			r.finishRoundEarly(res.LobbyID, round.RoundNumber)
		}
	}
}

func (r *Router) updateSettings(connID string, c UpdateSettings) {
	playerID, ok := r.requirePlayer(connID)
	if !ok {
		return
	}
	l, err := r.registry.UpdateSettings(playerID, c.SettingsPatch)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	r.transport.Broadcast(l.ID, Event{Type: EventLobbyUpdated, Payload: LobbyUpdatedPayload{Lobby: l}})
}

func (r *Router) startGame(connID string) {
	playerID, ok := r.requirePlayer(connID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FetchTimeout)
	defer cancel()

	l, round, err := r.registry.StartGame(ctx, playerID)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	r.transport.Broadcast(l.ID, Event{Type: EventGameStarted, Payload: GameStartedPayload{Lobby: l}})
	r.publish(l, models.RecordGameStarted, models.GameStartedRecord{
		LobbyName: l.Name,
		Settings:  l.Settings,
		Players:   l.Players,
	})
	r.announceRound(l, round)
}

// announceRound broadcasts a freshly started round and arms its end timer.
func (r *Router) announceRound(l models.Lobby, round models.GameRound) {
	r.transport.Broadcast(l.ID, Event{Type: EventNewRound, Payload: NewRoundPayload{
		RoundNumber: round.RoundNumber,
		ImageURL:    round.Content.ImageURL,
		TotalRounds: l.Settings.TotalRounds,
		Duration:    l.Settings.RoundDurationSeconds,
	}})
	lobbyID := l.ID
	r.clock.ScheduleRoundEnd(lobbyID, round.RoundNumber, l.Settings.RoundDuration(), func() {
		r.endRound(lobbyID)
	})
}

func (r *Router) submitAnswer(connID string, c SubmitAnswer) {
	playerID, ok := r.requirePlayer(connID)
	if !ok {
		return
	}
	if c.LobbyID != uuid.Nil {
		l, err := r.registry.GetPlayerLobby(playerID)
		if err != nil || l.ID != c.LobbyID {
			r.sendError(connID, lobby.ErrNotInLobby)
			return
		}
	}

	res, err := r.registry.SubmitAnswer(playerID, c.Answer)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	r.transport.Broadcast(res.LobbyID, Event{Type: EventAnswerResult, Payload: AnswerResultPayload{
		PlayerID:     playerID,
		Username:     res.Player.Username,
		Correct:      res.Correct,
		Points:       res.Points,
		TimeToAnswer: res.ElapsedMs,
	}})
	if !res.Correct {
		return
	}
	if res.Points > 0 {
		if l, err := r.registry.GetLobby(res.LobbyID); err == nil {
			r.transport.Broadcast(l.ID, Event{Type: EventLobbyUpdated, Payload: LobbyUpdatedPayload{Lobby: l}})
		}
	}
	if r.registry.AllPlayersAnswered(res.LobbyID) {
		r.finishRoundEarly(res.LobbyID, res.RoundNumber)
	}
}

func (r *Router) skipRound(connID string) {
	playerID, ok := r.requirePlayer(connID)
	if !ok {
		return
	}
	l, err := r.registry.GetPlayerLobby(playerID)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	if l.HostID != playerID {
		r.sendError(connID, lobby.ErrNotHost)
		return
	}
	round, err := r.registry.GetActiveRound(l.ID)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	if !r.finishRoundEarly(l.ID, round.RoundNumber) {
		r.sendError(connID, lobby.ErrNoActiveRound)
	}
}

func (r *Router) returnToLobby(connID string) {
	playerID, ok := r.requirePlayer(connID)
	if !ok {
		return
	}
	l, err := r.registry.ResetLobby(playerID)
	if err != nil {
		r.sendError(connID, err)
		return
	}
	r.clock.Cancel(l.ID)
	r.transport.Broadcast(l.ID, Event{Type: EventLobbyUpdated, Payload: LobbyUpdatedPayload{Lobby: l}})
}

// finishRoundEarly ends round roundNumber now, provided its timer has not already
// fired or been claimed by another early finish.
func (r *Router) finishRoundEarly(lobbyID uuid.UUID, roundNumber int) bool {
	if !r.clock.Claim(lobbyID, taskRoundEnd, roundNumber) {
		return false
	}
	r.endRound(lobbyID)
	return true
}

// endRound closes the lobby's active round. Callers must own the round's end
// task, either by the timer firing or by a successful Claim.
func (r *Router) endRound(lobbyID uuid.UUID) {
	end, err := r.registry.EndRound(lobbyID)
	if err != nil {
		r.log.WithError(err).WithField("lobby", lobbyID).Warn("end round")
		return
	}

	payload := RoundEndPayload{
		RoundNumber:   end.Round.RoundNumber,
		CorrectAnswer: end.Round.Content.Title,
		Year:          end.Round.Content.Year,
		Leaderboard:   end.Lobby.Leaderboard(),
	}
	if !end.GameEnded {
		next := int(math.Ceil(r.cfg.Intermission.Seconds()))
		payload.NextRoundIn = &next
	}
	r.transport.Broadcast(lobbyID, Event{Type: EventRoundEnd, Payload: payload})

	correct := make(map[uuid.UUID]int64, len(end.Round.CorrectAnswers))
	for id, ts := range end.Round.CorrectAnswers {
		correct[id] = ts.UnixMilli()
	}
	r.publish(end.Lobby, models.RecordRoundEnd, models.RoundEndRecord{
		RoundNumber: end.Round.RoundNumber,
		Content:     end.Round.Content,
		StartedAt:   end.Round.StartTime.UnixMilli(),
		Correct:     correct,
	})

	if end.GameEnded {
		r.finishGame(end.Lobby, models.RecordGameEnd)
		return
	}

	next := end.Lobby.CurrentRound
	r.clock.ScheduleRoundStart(lobbyID, next, r.cfg.Intermission, func() {
		r.startScheduledRound(lobbyID, next, 1)
	})
}

func (r *Router) finishGame(l models.Lobby, kind string) {
	board := l.Leaderboard()
	var winner *models.Player
	if len(board) > 0 {
		w := board[0]
		winner = &w
	}
	r.transport.Broadcast(l.ID, Event{Type: EventGameEnd, Payload: GameEndPayload{
		FinalLeaderboard: board,
		Winner:           winner,
	}})
	r.publish(l, kind, models.GameEndRecord{Leaderboard: board, Rounds: l.CurrentRound})
}

// startScheduledRound opens the next round after an intermission. Failed fetches
// are retried; once attempts run out the game is aborted so the lobby never
// stays playing without a round.
func (r *Router) startScheduledRound(lobbyID uuid.UUID, roundNumber, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FetchTimeout)
	round, err := r.registry.StartNewRound(ctx, lobbyID)
	cancel()

	fields := logrus.Fields{"lobby": lobbyID, "round": roundNumber, "attempt": attempt}
	if err == nil {
		l, err := r.registry.GetLobby(lobbyID)
		if err != nil {
			return
		}
		r.announceRound(l, round)
		return
	}
	if !errors.Is(err, lobby.ErrContentFetchFailed) {
		// The lobby was deleted, reset or otherwise moved on.
		r.log.WithError(err).WithFields(fields).Debug("scheduled round start dropped")
		return
	}

	if attempt < r.cfg.StartAttempts {
		r.log.WithError(err).WithFields(fields).Warn("round start failed, retrying")
		r.clock.ScheduleRoundStart(lobbyID, roundNumber, r.cfg.RetryDelay, func() {
			r.startScheduledRound(lobbyID, roundNumber, attempt+1)
		})
		return
	}

	r.log.WithError(err).WithFields(fields).Error("round start failed, aborting game")
	r.transport.Broadcast(lobbyID, errorEvent("Could not load the next round. The game has ended."))
	l, err := r.registry.AbortGame(lobbyID)
	if err != nil {
		return
	}
	r.finishGame(l, models.RecordGameAborted)
}

func (r *Router) sendError(connID string, err error) {
	msg := err.Error()
	if errors.Is(err, lobby.ErrContentFetchFailed) {
		msg = "Could not load show content, please try again."
	}
	r.transport.Send(connID, errorEvent(msg))
}

// publish hands a record to the history publisher without blocking the caller.
func (r *Router) publish(l models.Lobby, kind string, payload any) {
	if r.history == nil || l.GameID == uuid.Nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.WithError(err).WithField("kind", kind).Error("marshal session record")
		return
	}
	rec := models.SessionRecord{
		LobbyID:   l.ID,
		GameID:    l.GameID,
		Seq:       r.seq.Add(1),
		Kind:      kind,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.history.PublishSessionRecord(ctx, rec); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"lobby": rec.LobbyID, "kind": kind}).Warn("publish session record")
		}
	}()
}
