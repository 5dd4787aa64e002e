// internal/lobby/registry.go
package lobby

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/showguessr/server/internal/matcher"
	"github.com/showguessr/server/internal/models"
	"github.com/sirupsen/logrus"
)

// ContentFetcher supplies the show for a round. roundIndex is 1-based.
type ContentFetcher interface {
	Fetch(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error)
}

// FetchFunc adapts a plain function to ContentFetcher.
type FetchFunc func(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error) {
	return f(ctx, category, roundIndex)
}

// entry is one lobby plus its active round. All fields are guarded by mu.
type entry struct {
	mu      sync.Mutex
	lobby   *models.Lobby
	round   *models.GameRound
	deleted bool // set once the lobby has been removed from the registry
}

// Registry owns every lobby, player and round in the process.
//
// Locking: r.mu guards the lobby map and the player index; each entry has its own
// mutex that serializes operations on that lobby. When both are needed the entry is
// locked first. Lookups take r.mu only long enough to find the entry.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[uuid.UUID]*entry
	players map[uuid.UUID]uuid.UUID // playerID -> lobbyID

	content ContentFetcher
	now     func() time.Time
	log     *logrus.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for round timing.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry drawing round content from content.
func NewRegistry(content ContentFetcher, logger *logrus.Logger, opts ...Option) *Registry {
	r := &Registry{
		lobbies: make(map[uuid.UUID]*entry),
		players: make(map[uuid.UUID]uuid.UUID),
		content: content,
		now:     time.Now,
		log:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LeaveResult describes what happened to a lobby after a player left it.
type LeaveResult struct {
	LobbyID uuid.UUID
	Deleted bool
	// NewHost is set when the leaving player was host and someone was promoted.
	NewHost *models.Player
	// Lobby is the post-leave snapshot; nil when the lobby was deleted.
	Lobby *models.Lobby
	// RoundActive reports whether the lobby still has a round in progress.
	RoundActive bool
}

// AnswerResult is the verdict on a single submission.
type AnswerResult struct {
	Correct     bool
	Points      int
	ElapsedMs   int64
	LobbyID     uuid.UUID
	RoundNumber int
	Player      models.Player
}

// RoundEnd is the outcome of closing a round.
type RoundEnd struct {
	Lobby     models.Lobby
	Round     models.GameRound
	GameEnded bool
}

// lockLobby returns the locked entry for lobbyID. The caller must unlock it.
func (r *Registry) lockLobby(lobbyID uuid.UUID) (*entry, error) {
	r.mu.RLock()
	e := r.lobbies[lobbyID]
	r.mu.RUnlock()
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, ErrNotFound
	}
	return e, nil
}

// lockPlayer returns the locked entry of the lobby playerID belongs to.
func (r *Registry) lockPlayer(playerID uuid.UUID) (*entry, error) {
	r.mu.RLock()
	lobbyID, ok := r.players[playerID]
	e := r.lobbies[lobbyID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotInLobby
	}
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	if e.deleted || e.lobby.PlayerIndex(playerID) < 0 {
		e.mu.Unlock()
		return nil, ErrNotInLobby
	}
	return e, nil
}

// CreateLobby builds a waiting lobby whose only member is its host.
func (r *Registry) CreateLobby(hostUsername, lobbyName string, settings models.LobbySettings) (models.Lobby, models.Player) {
	host := models.Player{ID: uuid.New(), Username: hostUsername, IsHost: true}
	l := &models.Lobby{
		ID:        uuid.New(),
		Name:      lobbyName,
		HostID:    host.ID,
		Players:   []models.Player{host},
		Settings:  settings,
		Status:    models.StatusWaiting,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.lobbies[l.ID] = &entry{lobby: l}
	r.players[host.ID] = l.ID
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "host": host.ID}).Info("lobby created")
	return l.Clone(), host
}

// JoinLobby adds a new non-host player to a waiting lobby.
func (r *Registry) JoinLobby(lobbyID uuid.UUID, username string) (models.Lobby, models.Player, error) {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return models.Lobby{}, models.Player{}, err
	}
	defer e.mu.Unlock()

	if e.lobby.Status != models.StatusWaiting {
		return models.Lobby{}, models.Player{}, ErrGameInProgress
	}
	if len(e.lobby.Players) >= e.lobby.Settings.MaxPlayers {
		return models.Lobby{}, models.Player{}, ErrLobbyFull
	}

	p := models.Player{ID: uuid.New(), Username: username}
	e.lobby.Players = append(e.lobby.Players, p)

	r.mu.Lock()
	r.players[p.ID] = lobbyID
	r.mu.Unlock()

	return e.lobby.Clone(), p, nil
}

// LeaveLobby removes playerID from its lobby, deleting the lobby when it becomes
// empty and promoting the first remaining player when the host leaves.
func (r *Registry) LeaveLobby(playerID uuid.UUID) (LeaveResult, error) {
	e, err := r.lockPlayer(playerID)
	if err != nil {
		return LeaveResult{}, err
	}
	defer e.mu.Unlock()

	l := e.lobby
	idx := l.PlayerIndex(playerID)
	wasHost := l.HostID == playerID
	l.Players = append(l.Players[:idx], l.Players[idx+1:]...)
	if e.round != nil {
		delete(e.round.CorrectAnswers, playerID)
	}

	res := LeaveResult{LobbyID: l.ID}
	if len(l.Players) == 0 {
		e.deleted = true
		e.round = nil
		r.mu.Lock()
		delete(r.players, playerID)
		delete(r.lobbies, l.ID)
		r.mu.Unlock()

		r.log.WithField("lobby", l.ID).Info("lobby deleted: last player left")
		res.Deleted = true
		return res, nil
	}

	r.mu.Lock()
	delete(r.players, playerID)
	r.mu.Unlock()

	if wasHost {
		l.Players[0].IsHost = true
		l.HostID = l.Players[0].ID
		promoted := l.Players[0]
		res.NewHost = &promoted
	}
	snap := l.Clone()
	res.Lobby = &snap
	res.RoundActive = e.round != nil
	return res, nil
}

// UpdateSettings merges patch into the lobby's settings. Only the host may call
// it, and only before the game starts. Values are not range checked here.
func (r *Registry) UpdateSettings(playerID uuid.UUID, patch models.SettingsPatch) (models.Lobby, error) {
	e, err := r.lockPlayer(playerID)
	if err != nil {
		return models.Lobby{}, err
	}
	defer e.mu.Unlock()

	if e.lobby.HostID != playerID {
		return models.Lobby{}, ErrNotHost
	}
	if e.lobby.Status != models.StatusWaiting {
		return models.Lobby{}, ErrGameInProgress
	}
	e.lobby.Settings = patch.Apply(e.lobby.Settings)
	return e.lobby.Clone(), nil
}

// StartGame moves a waiting lobby into play and opens round 1. The first round's
// content is fetched before anything changes, so a failed fetch leaves the lobby
// waiting.
func (r *Registry) StartGame(ctx context.Context, playerID uuid.UUID) (models.Lobby, models.GameRound, error) {
	e, err := r.lockPlayer(playerID)
	if err != nil {
		return models.Lobby{}, models.GameRound{}, err
	}
	if err := canStart(e.lobby, playerID); err != nil {
		e.mu.Unlock()
		return models.Lobby{}, models.GameRound{}, err
	}
	lobbyID, category := e.lobby.ID, e.lobby.Settings.Category
	e.mu.Unlock()

	show, err := r.content.Fetch(ctx, category, 1)
	if err != nil {
		r.log.WithError(err).WithField("lobby", lobbyID).Warn("start game: content fetch failed")
		return models.Lobby{}, models.GameRound{}, fmt.Errorf("%w: %w", ErrContentFetchFailed, err)
	}

	e, err = r.lockPlayer(playerID)
	if err != nil {
		return models.Lobby{}, models.GameRound{}, err
	}
	defer e.mu.Unlock()
	if err := canStart(e.lobby, playerID); err != nil {
		return models.Lobby{}, models.GameRound{}, err
	}
	if e.lobby.Settings.Category != category {
		return models.Lobby{}, models.GameRound{}, ErrRoundSuperseded
	}

	l := e.lobby
	l.Status = models.StatusPlaying
	l.CurrentRound = 1
	l.GameID = uuid.New()
	for i := range l.Players {
		l.Players[i].Score = 0
	}
	e.round = newRound(1, show, r.now())

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "game": l.GameID, "players": len(l.Players)}).Info("game started")
	return l.Clone(), e.round.Clone(), nil
}

func canStart(l *models.Lobby, playerID uuid.UUID) error {
	switch {
	case l.HostID != playerID:
		return ErrNotHost
	case l.Status != models.StatusWaiting:
		return ErrGameInProgress
	case len(l.Players) < 2:
		return ErrNotEnoughPlayers
	}
	return nil
}

// StartNewRound fetches content for the lobby's current round number and installs
// a fresh round, replacing any previous one. The fetch runs without holding the
// lobby; if the lobby left play or advanced meanwhile, ErrRoundSuperseded is
// returned and nothing changes.
func (r *Registry) StartNewRound(ctx context.Context, lobbyID uuid.UUID) (models.GameRound, error) {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return models.GameRound{}, err
	}
	if e.lobby.Status != models.StatusPlaying {
		e.mu.Unlock()
		return models.GameRound{}, ErrNotPlaying
	}
	roundNumber, category, gameID := e.lobby.CurrentRound, e.lobby.Settings.Category, e.lobby.GameID
	e.mu.Unlock()

	show, err := r.content.Fetch(ctx, category, roundNumber)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{"lobby": lobbyID, "round": roundNumber}).Warn("content fetch failed")
		return models.GameRound{}, fmt.Errorf("%w: %w", ErrContentFetchFailed, err)
	}

	e, err = r.lockLobby(lobbyID)
	if err != nil {
		return models.GameRound{}, err
	}
	defer e.mu.Unlock()
	if e.lobby.Status != models.StatusPlaying || e.lobby.CurrentRound != roundNumber || e.lobby.GameID != gameID {
		return models.GameRound{}, ErrRoundSuperseded
	}

	e.round = newRound(roundNumber, show, r.now())
	return e.round.Clone(), nil
}

func newRound(number int, show models.ShowContent, start time.Time) *models.GameRound {
	return &models.GameRound{
		RoundNumber:    number,
		Content:        show.Clone(),
		StartTime:      start,
		CorrectAnswers: make(map[uuid.UUID]time.Time),
	}
}

// SubmitAnswer checks a guess against the active round. Only a player's first
// correct answer in a round scores; later correct answers report zero points.
func (r *Registry) SubmitAnswer(playerID uuid.UUID, text string) (AnswerResult, error) {
	e, err := r.lockPlayer(playerID)
	if err != nil {
		return AnswerResult{}, err
	}
	defer e.mu.Unlock()

	round := e.round
	if round == nil {
		return AnswerResult{}, ErrNoActiveRound
	}
	now := r.now()
	elapsed := now.Sub(round.StartTime).Milliseconds()
	idx := e.lobby.PlayerIndex(playerID)

	res := AnswerResult{
		ElapsedMs:   elapsed,
		LobbyID:     e.lobby.ID,
		RoundNumber: round.RoundNumber,
	}
	if !matcher.IsMatch(text, round.Content.Title, round.Content.AlternativeTitles) {
		res.Player = e.lobby.Players[idx]
		return res, nil
	}
	res.Correct = true
	if _, dup := round.CorrectAnswers[playerID]; dup {
		res.Player = e.lobby.Players[idx]
		return res, nil
	}

	res.Points = matcher.Score(elapsed, e.lobby.Settings.RoundDuration().Milliseconds())
	round.CorrectAnswers[playerID] = now
	e.lobby.Players[idx].Score += res.Points
	res.Player = e.lobby.Players[idx]
	return res, nil
}

// AllPlayersAnswered reports whether every current member has answered the active
// round correctly. Answers from players who already left are not counted.
func (r *Registry) AllPlayersAnswered(lobbyID uuid.UUID) bool {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return false
	}
	defer e.mu.Unlock()
	if e.round == nil || len(e.lobby.Players) == 0 {
		return false
	}
	answered := 0
	for _, p := range e.lobby.Players {
		if _, ok := e.round.CorrectAnswers[p.ID]; ok {
			answered++
		}
	}
	return answered == len(e.lobby.Players)
}

// EndRound closes the active round. When it was the last round the lobby finishes,
// otherwise the round counter advances.
func (r *Registry) EndRound(lobbyID uuid.UUID) (RoundEnd, error) {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return RoundEnd{}, err
	}
	defer e.mu.Unlock()

	if e.round == nil {
		return RoundEnd{}, ErrNoActiveRound
	}
	closed := e.round
	e.round = nil

	l := e.lobby
	ended := l.CurrentRound >= l.Settings.TotalRounds
	if ended {
		l.Status = models.StatusFinished
		r.log.WithFields(logrus.Fields{"lobby": l.ID, "game": l.GameID}).Info("game finished")
	} else {
		l.CurrentRound++
	}
	return RoundEnd{Lobby: l.Clone(), Round: *closed, GameEnded: ended}, nil
}

// AbortGame finishes a playing lobby early, discarding any active round.
func (r *Registry) AbortGame(lobbyID uuid.UUID) (models.Lobby, error) {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return models.Lobby{}, err
	}
	defer e.mu.Unlock()

	if e.lobby.Status != models.StatusPlaying {
		return models.Lobby{}, ErrNotPlaying
	}
	e.round = nil
	e.lobby.Status = models.StatusFinished
	r.log.WithFields(logrus.Fields{"lobby": lobbyID, "round": e.lobby.CurrentRound}).Warn("game aborted")
	return e.lobby.Clone(), nil
}

// ResetLobby returns a finished lobby to waiting with its members kept and their
// scores cleared. Host only.
func (r *Registry) ResetLobby(playerID uuid.UUID) (models.Lobby, error) {
	e, err := r.lockPlayer(playerID)
	if err != nil {
		return models.Lobby{}, err
	}
	defer e.mu.Unlock()

	l := e.lobby
	if l.HostID != playerID {
		return models.Lobby{}, ErrNotHost
	}
	if l.Status != models.StatusFinished {
		return models.Lobby{}, ErrGameNotFinished
	}
	l.Status = models.StatusWaiting
	l.CurrentRound = 0
	l.GameID = uuid.Nil
	for i := range l.Players {
		l.Players[i].Score = 0
	}
	e.round = nil
	return l.Clone(), nil
}

// GetLobby returns a snapshot of the lobby.
func (r *Registry) GetLobby(lobbyID uuid.UUID) (models.Lobby, error) {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return models.Lobby{}, err
	}
	defer e.mu.Unlock()
	return e.lobby.Clone(), nil
}

// GetPlayerLobby returns a snapshot of the lobby playerID is in.
func (r *Registry) GetPlayerLobby(playerID uuid.UUID) (models.Lobby, error) {
	e, err := r.lockPlayer(playerID)
	if err != nil {
		return models.Lobby{}, err
	}
	defer e.mu.Unlock()
	return e.lobby.Clone(), nil
}

// GetActiveRound returns a snapshot of the lobby's active round.
func (r *Registry) GetActiveRound(lobbyID uuid.UUID) (models.GameRound, error) {
	e, err := r.lockLobby(lobbyID)
	if err != nil {
		return models.GameRound{}, err
	}
	defer e.mu.Unlock()
	if e.round == nil {
		return models.GameRound{}, ErrNoActiveRound
	}
	return e.round.Clone(), nil
}

// ListLobbies returns snapshots of every lobby, oldest first.
func (r *Registry) ListLobbies() []models.Lobby {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.lobbies))
	for _, e := range r.lobbies {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]models.Lobby, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.lobby.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
