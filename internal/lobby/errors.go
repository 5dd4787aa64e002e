package lobby

import "errors"

var (
	ErrNotFound           = errors.New("lobby not found")
	ErrGameInProgress     = errors.New("game already in progress")
	ErrLobbyFull          = errors.New("lobby is full")
	ErrNotInLobby         = errors.New("player is not in a lobby")
	ErrNotHost            = errors.New("only the host can do that")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrNoActiveRound      = errors.New("no active round")
	ErrContentFetchFailed = errors.New("content fetch failed")

	// ErrNotPlaying is returned by round operations on a lobby that is not in a game.
	ErrNotPlaying = errors.New("lobby is not playing")
	// ErrRoundSuperseded means the lobby moved on while round content was being fetched.
	ErrRoundSuperseded = errors.New("round superseded")
	// ErrGameNotFinished is returned when resetting a lobby whose game has not ended.
	ErrGameNotFinished = errors.New("game has not finished")
)
