package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/showguessr/server/internal/lobby"
	"github.com/showguessr/server/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport collects events instead of sending them over a socket.
type mockTransport struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[string]bool
	inbox map[string][]Event // everything each connection received, in order
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		rooms: make(map[uuid.UUID]map[string]bool),
		inbox: make(map[string][]Event),
	}
}

func (m *mockTransport) Send(connID string, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox[connID] = append(m.inbox[connID], ev)
}

func (m *mockTransport) Broadcast(room uuid.UUID, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for connID := range m.rooms[room] {
		m.inbox[connID] = append(m.inbox[connID], ev)
	}
}

func (m *mockTransport) JoinRoom(connID string, room uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[room] == nil {
		m.rooms[room] = make(map[string]bool)
	}
	m.rooms[room][connID] = true
}

func (m *mockTransport) LeaveRoom(connID string, room uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms[room], connID)
}

// events returns the events of type t received by connID.
func (m *mockTransport) events(connID string, t EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.inbox[connID] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (m *mockTransport) last(connID string, t EventType) (Event, bool) {
	evs := m.events(connID, t)
	if len(evs) == 0 {
		return Event{}, false
	}
	return evs[len(evs)-1], true
}

func (m *mockTransport) types(connID string) []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, 0, len(m.inbox[connID]))
	for _, ev := range m.inbox[connID] {
		out = append(out, ev.Type)
	}
	return out
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []models.SessionRecord
}

func (p *recordingPublisher) PublishSessionRecord(_ context.Context, rec models.SessionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.records))
	for i, r := range p.records {
		out[i] = r.Kind
	}
	return out
}

func showFetcher(title string) lobby.FetchFunc {
	return func(_ context.Context, c models.Category, idx int) (models.ShowContent, error) {
		return models.ShowContent{ID: title, Title: title, ImageURL: "https://img/" + title, Category: c}, nil
	}
}

func testConfig() Config {
	return Config{
		Intermission:  20 * time.Millisecond,
		FetchTimeout:  time.Second,
		StartAttempts: 3,
		RetryDelay:    10 * time.Millisecond,
	}
}

type harness struct {
	router    *Router
	registry  *lobby.Registry
	transport *mockTransport
	history   *recordingPublisher
}

func newHarness(t *testing.T, fetch lobby.ContentFetcher) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := lobby.NewRegistry(fetch, logger)
	tr := newMockTransport()
	pub := &recordingPublisher{}
	r := NewRouter(reg, tr, pub, logger, testConfig())
	t.Cleanup(r.Close)
	return &harness{router: r, registry: reg, transport: tr, history: pub}
}

func intp(v int) *int { return &v }

// lobbyWith creates a lobby hosted by "c0" and joins c1..c(n-1).
func (h *harness) lobbyWith(t *testing.T, n int, patch models.SettingsPatch) (uuid.UUID, []string) {
	t.Helper()
	conns := []string{"c0"}
	h.router.Handle("c0", CreateLobby{LobbyName: "room", Username: "host", Settings: &patch})
	ev, ok := h.transport.last("c0", EventLobbyCreated)
	require.True(t, ok)
	lobbyID := ev.Payload.(LobbyCreatedPayload).Lobby.ID

	for i := 1; i < n; i++ {
		conn := "c" + string(rune('0'+i))
		h.router.Handle(conn, JoinLobby{LobbyID: lobbyID, Username: "guest" + conn})
		_, ok := h.transport.last(conn, EventLobbyCreated)
		require.True(t, ok, "join %s", conn)
		conns = append(conns, conn)
	}
	return lobbyID, conns
}

func (h *harness) playerID(t *testing.T, conn string) uuid.UUID {
	t.Helper()
	id, ok := h.router.PlayerFor(conn)
	require.True(t, ok)
	return id
}

func TestCreateAndJoinLobby(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{})

	created, _ := h.transport.last(conns[1], EventLobbyCreated)
	payload := created.Payload.(LobbyCreatedPayload)
	assert.Equal(t, lobbyID, payload.Lobby.ID)
	assert.Equal(t, h.playerID(t, conns[1]), payload.PlayerID)
	assert.Len(t, payload.Lobby.Players, 2)

	joined := h.transport.events(conns[0], EventPlayerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "guestc1", joined[0].Payload.(PlayerJoinedPayload).Player.Username)
	assert.Empty(t, h.transport.events(conns[1], EventPlayerJoined), "joiner is not told about itself")

	h.router.Handle(conns[1], CreateLobby{LobbyName: "other", Username: "x"})
	errEv, ok := h.transport.last(conns[1], EventError)
	require.True(t, ok)
	assert.Equal(t, "already in a lobby", errEv.Payload.(ErrorPayload).Message)
}

func TestJoinLobby_ErrorsGoToSenderOnly(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	lobbyID, _ := h.lobbyWith(t, 2, models.SettingsPatch{MaxPlayers: intp(2)})

	h.router.Handle("late", JoinLobby{LobbyID: lobbyID, Username: "late"})
	ev, ok := h.transport.last("late", EventError)
	require.True(t, ok)
	assert.Equal(t, lobby.ErrLobbyFull.Error(), ev.Payload.(ErrorPayload).Message)
	assert.Empty(t, h.transport.events("c0", EventError))

	h.router.Handle("lost", JoinLobby{LobbyID: uuid.New(), Username: "lost"})
	ev, _ = h.transport.last("lost", EventError)
	assert.Equal(t, lobby.ErrNotFound.Error(), ev.Payload.(ErrorPayload).Message)
	_, bound := h.router.PlayerFor("lost")
	assert.False(t, bound)
}

func TestUpdateSettings_HostOnly(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	_, conns := h.lobbyWith(t, 2, models.SettingsPatch{})

	h.router.Handle(conns[1], UpdateSettings{models.SettingsPatch{TotalRounds: intp(4)}})
	ev, ok := h.transport.last(conns[1], EventError)
	require.True(t, ok)
	assert.Equal(t, lobby.ErrNotHost.Error(), ev.Payload.(ErrorPayload).Message)

	h.router.Handle(conns[0], UpdateSettings{models.SettingsPatch{TotalRounds: intp(4)}})
	for _, c := range conns {
		upd, ok := h.transport.last(c, EventLobbyUpdated)
		require.True(t, ok)
		assert.Equal(t, 4, upd.Payload.(LobbyUpdatedPayload).Lobby.Settings.TotalRounds)
	}
}

func TestAllCorrectAnswersEndRoundEarly(t *testing.T) {
	h := newHarness(t, showFetcher("Avengers"))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(2), RoundDurationSeconds: intp(30)})

	h.router.Handle(conns[0], StartGame{})
	started, ok := h.transport.last(conns[1], EventNewRound)
	require.True(t, ok)
	assert.Equal(t, NewRoundPayload{RoundNumber: 1, ImageURL: "https://img/Avengers", TotalRounds: 2, Duration: 30}, started.Payload)

	h.router.Handle(conns[0], SubmitAnswer{LobbyID: lobbyID, Answer: "avengers"})
	assert.Empty(t, h.transport.events(conns[0], EventRoundEnd))
	h.router.Handle(conns[1], SubmitAnswer{Answer: "avengrs"})

	// The round ended synchronously with the last correct answer.
	ends := h.transport.events(conns[1], EventRoundEnd)
	require.Len(t, ends, 1)
	end := ends[0].Payload.(RoundEndPayload)
	assert.Equal(t, "Avengers", end.CorrectAnswer)
	require.NotNil(t, end.NextRoundIn)
	assert.Equal(t, 1, *end.NextRoundIn)
	require.Len(t, end.Leaderboard, 2)
	assert.GreaterOrEqual(t, end.Leaderboard[0].Score, end.Leaderboard[1].Score)

	snap, err := h.registry.GetLobby(lobbyID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentRound)

	require.Eventually(t, func() bool {
		return len(h.transport.events(conns[0], EventNewRound)) == 2
	}, time.Second, 5*time.Millisecond)
	second, _ := h.transport.last(conns[0], EventNewRound)
	assert.Equal(t, 2, second.Payload.(NewRoundPayload).RoundNumber)

	kind, round, ok := h.router.clock.Pending(lobbyID)
	require.True(t, ok)
	assert.Equal(t, taskRoundEnd, kind)
	assert.Equal(t, 2, round)
}

func TestTimeoutEndsFinalRound(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(1), RoundDurationSeconds: intp(1)})

	h.router.Handle(conns[0], StartGame{})
	require.Eventually(t, func() bool {
		return len(h.transport.events(conns[1], EventGameEnd)) == 1
	}, 3*time.Second, 10*time.Millisecond)

	end, _ := h.transport.last(conns[1], EventRoundEnd)
	assert.Equal(t, "Up", end.Payload.(RoundEndPayload).CorrectAnswer)
	assert.Nil(t, end.Payload.(RoundEndPayload).NextRoundIn)

	typesSeen := h.transport.types(conns[1])
	assert.Equal(t, []EventType{EventLobbyCreated, EventGameStarted, EventNewRound, EventRoundEnd, EventGameEnd}, typesSeen)

	gameEnd, _ := h.transport.last(conns[1], EventGameEnd)
	payload := gameEnd.Payload.(GameEndPayload)
	require.NotNil(t, payload.Winner)
	assert.Equal(t, payload.FinalLeaderboard[0].ID, payload.Winner.ID)

	snap, err := h.registry.GetLobby(lobbyID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, snap.Status)
	_, _, pending := h.router.clock.Pending(lobbyID)
	assert.False(t, pending)

	assert.Eventually(t, func() bool {
		kinds := h.history.kinds()
		return len(kinds) == 3
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{models.RecordGameStarted, models.RecordRoundEnd, models.RecordGameEnd}, h.history.kinds())
}

func TestSubmitAnswer_ResultsAndDuplicates(t *testing.T) {
	h := newHarness(t, showFetcher("The Matrix"))
	_, conns := h.lobbyWith(t, 3, models.SettingsPatch{})
	h.router.Handle(conns[0], StartGame{})

	h.router.Handle(conns[1], SubmitAnswer{Answer: "inception"})
	res, ok := h.transport.last(conns[2], EventAnswerResult)
	require.True(t, ok)
	wrong := res.Payload.(AnswerResultPayload)
	assert.False(t, wrong.Correct)
	assert.Equal(t, "guestc1", wrong.Username)
	assert.Empty(t, h.transport.events(conns[2], EventLobbyUpdated))

	h.router.Handle(conns[1], SubmitAnswer{Answer: "the matrix"})
	res, _ = h.transport.last(conns[2], EventAnswerResult)
	assert.True(t, res.Payload.(AnswerResultPayload).Correct)
	assert.GreaterOrEqual(t, res.Payload.(AnswerResultPayload).Points, 100)
	assert.Len(t, h.transport.events(conns[2], EventLobbyUpdated), 1)

	h.router.Handle(conns[1], SubmitAnswer{Answer: "matrix"})
	res, _ = h.transport.last(conns[2], EventAnswerResult)
	assert.True(t, res.Payload.(AnswerResultPayload).Correct)
	assert.Zero(t, res.Payload.(AnswerResultPayload).Points)
	assert.Len(t, h.transport.events(conns[2], EventLobbyUpdated), 1, "no update without new points")
	assert.Empty(t, h.transport.events(conns[2], EventRoundEnd))
}

func TestSubmitAnswer_WrongLobbyOrNoRound(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	_, conns := h.lobbyWith(t, 2, models.SettingsPatch{})

	h.router.Handle(conns[1], SubmitAnswer{Answer: "up"})
	ev, _ := h.transport.last(conns[1], EventError)
	assert.Equal(t, lobby.ErrNoActiveRound.Error(), ev.Payload.(ErrorPayload).Message)

	h.router.Handle(conns[0], StartGame{})
	h.router.Handle(conns[1], SubmitAnswer{LobbyID: uuid.New(), Answer: "up"})
	ev, _ = h.transport.last(conns[1], EventError)
	assert.Equal(t, lobby.ErrNotInLobby.Error(), ev.Payload.(ErrorPayload).Message)
	assert.Empty(t, h.transport.events(conns[0], EventAnswerResult))

	h.router.Handle("stranger", SubmitAnswer{Answer: "up"})
	ev, _ = h.transport.last("stranger", EventError)
	assert.Equal(t, lobby.ErrNotInLobby.Error(), ev.Payload.(ErrorPayload).Message)
}

func TestLeaveMidRoundEndsRoundWhenRestAnswered(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	_, conns := h.lobbyWith(t, 3, models.SettingsPatch{TotalRounds: intp(3)})
	h.router.Handle(conns[0], StartGame{})

	h.router.Handle(conns[0], SubmitAnswer{Answer: "up"})
	h.router.Handle(conns[1], SubmitAnswer{Answer: "up"})
	assert.Empty(t, h.transport.events(conns[0], EventRoundEnd))

	h.router.Disconnect(conns[2])
	left, ok := h.transport.last(conns[0], EventPlayerLeft)
	require.True(t, ok)
	assert.Nil(t, left.Payload.(PlayerLeftPayload).NewHost)
	assert.Len(t, h.transport.events(conns[0], EventRoundEnd), 1)
	assert.Empty(t, h.transport.events(conns[2], EventPlayerLeft))
}

func TestHostLeavePromotesNextPlayer(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	_, conns := h.lobbyWith(t, 3, models.SettingsPatch{})
	next := h.playerID(t, conns[1])
	hostID := h.playerID(t, conns[0])

	h.router.Handle(conns[0], LeaveLobby{})
	_, bound := h.router.PlayerFor(conns[0])
	assert.False(t, bound)

	ev, ok := h.transport.last(conns[2], EventPlayerLeft)
	require.True(t, ok)
	payload := ev.Payload.(PlayerLeftPayload)
	assert.Equal(t, hostID, payload.PlayerID)
	require.NotNil(t, payload.NewHost)
	assert.Equal(t, next, payload.NewHost.ID)
	assert.Equal(t, next, payload.Lobby.HostID)

	h.router.Handle(conns[0], LeaveLobby{})
	errEv, ok := h.transport.last(conns[0], EventError)
	require.True(t, ok)
	assert.Equal(t, lobby.ErrNotInLobby.Error(), errEv.Payload.(ErrorPayload).Message)
}

func TestLastLeaveDeletesLobbyAndTimers(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{})
	h.router.Handle(conns[0], StartGame{})
	_, _, pending := h.router.clock.Pending(lobbyID)
	require.True(t, pending)

	h.router.Disconnect(conns[0])
	h.router.Disconnect(conns[1])

	_, err := h.registry.GetLobby(lobbyID)
	assert.ErrorIs(t, err, lobby.ErrNotFound)
	_, _, pending = h.router.clock.Pending(lobbyID)
	assert.False(t, pending)
}

func TestSkipRound(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	h.router.cfg.Intermission = time.Second
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(2)})

	h.router.Handle(conns[0], SkipRound{})
	ev, _ := h.transport.last(conns[0], EventError)
	assert.Equal(t, lobby.ErrNoActiveRound.Error(), ev.Payload.(ErrorPayload).Message)

	h.router.Handle(conns[0], StartGame{})
	h.router.Handle(conns[1], SkipRound{})
	ev, _ = h.transport.last(conns[1], EventError)
	assert.Equal(t, lobby.ErrNotHost.Error(), ev.Payload.(ErrorPayload).Message)

	h.router.Handle(conns[0], SkipRound{})
	require.Len(t, h.transport.events(conns[1], EventRoundEnd), 1)
	kind, round, ok := h.router.clock.Pending(lobbyID)
	require.True(t, ok)
	assert.Equal(t, taskRoundStart, kind)
	assert.Equal(t, 2, round)

	// Nothing left to skip during the intermission.
	h.router.Handle(conns[0], SkipRound{})
	assert.Len(t, h.transport.events(conns[1], EventRoundEnd), 1)
}

func TestReturnToLobby(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(1)})

	h.router.Handle(conns[0], StartGame{})
	h.router.Handle(conns[0], ReturnToLobby{})
	ev, _ := h.transport.last(conns[0], EventError)
	assert.Equal(t, lobby.ErrGameNotFinished.Error(), ev.Payload.(ErrorPayload).Message)

	h.router.Handle(conns[0], SkipRound{})
	require.Len(t, h.transport.events(conns[1], EventGameEnd), 1)

	h.router.Handle(conns[0], ReturnToLobby{})
	upd, ok := h.transport.last(conns[1], EventLobbyUpdated)
	require.True(t, ok)
	l := upd.Payload.(LobbyUpdatedPayload).Lobby
	assert.Equal(t, models.StatusWaiting, l.Status)
	assert.Len(t, l.Players, 2)

	h.router.Handle(conns[0], StartGame{})
	assert.Len(t, h.transport.events(conns[1], EventGameStarted), 2)
	snap, err := h.registry.GetLobby(lobbyID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, snap.Status)
}

func TestStartGame_FetchFailureKeepsLobbyWaiting(t *testing.T) {
	h := newHarness(t, lobby.FetchFunc(func(context.Context, models.Category, int) (models.ShowContent, error) {
		return models.ShowContent{}, errors.New("tmdb down")
	}))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{})

	h.router.Handle(conns[0], StartGame{})
	ev, ok := h.transport.last(conns[0], EventError)
	require.True(t, ok)
	assert.Equal(t, "Could not load show content, please try again.", ev.Payload.(ErrorPayload).Message)
	assert.Empty(t, h.transport.events(conns[1], EventGameStarted))

	snap, err := h.registry.GetLobby(lobbyID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, snap.Status)
}

func TestScheduledRoundStart_RetriesThenAborts(t *testing.T) {
	var laterCalls atomic.Int32
	h := newHarness(t, lobby.FetchFunc(func(ctx context.Context, c models.Category, idx int) (models.ShowContent, error) {
		if idx > 1 {
			laterCalls.Add(1)
			return models.ShowContent{}, errors.New("rate limited")
		}
		return showFetcher("Up")(ctx, c, idx)
	}))
	lobbyID, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(3)})
	h.router.Handle(conns[0], StartGame{})
	h.router.Handle(conns[0], SkipRound{})

	require.Eventually(t, func() bool {
		return len(h.transport.events(conns[1], EventGameEnd)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), laterCalls.Load())

	errs := h.transport.events(conns[1], EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Payload.(ErrorPayload).Message, "next round")

	snap, err := h.registry.GetLobby(lobbyID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, snap.Status)
	_, _, pending := h.router.clock.Pending(lobbyID)
	assert.False(t, pending)
}

func TestScheduledRoundStart_RetrySucceeds(t *testing.T) {
	var failures atomic.Int32
	h := newHarness(t, lobby.FetchFunc(func(ctx context.Context, c models.Category, idx int) (models.ShowContent, error) {
		if idx == 2 && failures.Add(1) == 1 {
			return models.ShowContent{}, errors.New("blip")
		}
		return showFetcher("Up")(ctx, c, idx)
	}))
	_, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(3)})
	h.router.Handle(conns[0], StartGame{})
	h.router.Handle(conns[0], SkipRound{})

	require.Eventually(t, func() bool {
		return len(h.transport.events(conns[1], EventNewRound)) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.transport.events(conns[1], EventError))
	assert.Empty(t, h.transport.events(conns[1], EventGameEnd))
}

func TestLobbyDeletedDuringIntermission(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, lobby.FetchFunc(func(ctx context.Context, c models.Category, idx int) (models.ShowContent, error) {
		calls.Add(1)
		return showFetcher("Up")(ctx, c, idx)
	}))
	_, conns := h.lobbyWith(t, 2, models.SettingsPatch{TotalRounds: intp(3)})
	h.router.Handle(conns[0], StartGame{})
	h.router.Handle(conns[0], SkipRound{})
	h.router.Disconnect(conns[0])
	h.router.Disconnect(conns[1])

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandleMessage(t *testing.T) {
	h := newHarness(t, showFetcher("Up"))

	h.router.HandleMessage("c0", []byte(`{"type":"dance"}`))
	ev, ok := h.transport.last("c0", EventError)
	require.True(t, ok)
	assert.Contains(t, ev.Payload.(ErrorPayload).Message, "unknown message type")

	h.router.HandleMessage("c0", []byte(`{"type":"create_lobby","payload":{"lobbyName":"room"}}`))
	ev, _ = h.transport.last("c0", EventError)
	assert.Contains(t, ev.Payload.(ErrorPayload).Message, "username is required")

	h.router.HandleMessage("c0", []byte(`{"type":"create_lobby","payload":{"lobbyName":"room","username":"ann","settings":{"totalRounds":3}}}`))
	created, ok := h.transport.last("c0", EventLobbyCreated)
	require.True(t, ok)
	l := created.Payload.(LobbyCreatedPayload).Lobby
	assert.Equal(t, 3, l.Settings.TotalRounds)
	assert.Equal(t, models.DefaultSettings().MaxPlayers, l.Settings.MaxPlayers)
}
