package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/engine"
	"github.com/tmitchel/sidesync/mocks"
	"github.com/tmitchel/sidesync/realtime"
	"github.com/tmitchel/sidesync/state"
)

const self = int64(7)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine  *engine.Engine
	backend *mocks.Backend
	store   *state.Store
	network *mocks.Network
}

// newFixture builds an engine over a fresh Backend. wrap may replace
// individual services, for example to hold a call until the test lets go.
func newFixture(t *testing.T, wrap ...func(*engine.Services)) *fixture {
	logger, _ := test.NewNullLogger()
	backend := mocks.NewBackend()
	backend.Now = func() time.Time { return base.Add(time.Hour) }
	store := state.New()
	network := &mocks.Network{}

	svc := engine.Services{
		Teams:         backend,
		Conversations: backend,
		Messages:      backend,
		Threads:       backend,
		Notifications: backend,
		Users:         backend,
	}
	for _, w := range wrap {
		w(&svc)
	}
	e := engine.New(store, svc, mocks.Credentials{ID: self}, network, engine.Config{
		ReadDelay: 10 * time.Millisecond,
		RetryWait: time.Millisecond,
		PageSize:  3,
		Now:       func() time.Time { return base.Add(30 * time.Minute) },
	}, logger)
	t.Cleanup(e.Close)

	return &fixture{engine: e, backend: backend, store: store, network: network}
}

// gate holds the first call through it until open is called.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) pass(ctx context.Context) error {
	first := false
	g.once.Do(func() {
		first = true
		close(g.entered)
	})
	if !first {
		return nil
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) waitEntered(t *testing.T) {
	select {
	case <-g.entered:
	case <-time.After(time.Second):
		require.FailNow(t, "held call never started")
	}
}

func (g *gate) open() {
	close(g.release)
}

type heldMessages struct {
	sidesync.MessageService
	gate *gate
}

func (h heldMessages) CreateMessage(ctx context.Context, m *sidesync.Message) (*sidesync.Message, error) {
	if err := h.gate.pass(ctx); err != nil {
		return nil, err
	}
	return h.MessageService.CreateMessage(ctx, m)
}

type heldUsers struct {
	sidesync.UserService
	gate *gate
}

func (h heldUsers) Presence(ctx context.Context, ids []int64) ([]*sidesync.Presence, error) {
	if err := h.gate.pass(ctx); err != nil {
		return nil, err
	}
	return h.UserService.Presence(ctx, ids)
}

func msg(id, channel int64, offset time.Duration) *sidesync.Message {
	return &sidesync.Message{ID: id, Channel: channel, Creator: 8, Content: "m", Created: base.Add(offset)}
}

func messageIDs(msgs []*sidesync.Message) []int64 {
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// seedOpenConversation puts team 1 with public conversation 42 on both
// sides, with message 100 known locally and 42 selected.
func (f *fixture) seedOpenConversation() {
	team := &sidesync.Team{ID: 1, DisplayName: "team", Members: []int64{self, 8}, DefaultChannel: 42}
	conv := &sidesync.Conversation{ID: 42, Type: sidesync.ConversationPublic, Team: 1, Slug: "general", Members: []int64{self, 8}}

	f.backend.PutTeams(team)
	f.backend.PutConversations(conv)
	f.backend.PutMessages(msg(100, 42, 0))

	f.store.Update(func(tx *state.Tx) {
		tx.ReplaceTeams([]*sidesync.Team{team})
		tx.UpsertConversation(conv)
		tx.UpsertMessage(msg(100, 42, 0))
		tx.SetView(sidesync.View{Primary: sidesync.ConversationDetail, SelectedTeam: 1, SelectedConversationID: 42})
	})
}

func TestReconnectBackfillsSelectedConversation(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()
	for i := int64(1); i <= 5; i++ {
		f.backend.PutMessages(msg(100+i, 42, time.Duration(i)*time.Second))
	}
	f.backend.FirstUnread[42] = 101

	type render struct {
		selected int64
		messages int
	}
	var renders []render
	unsubscribe := f.store.Subscribe(func() {
		renders = append(renders, render{
			selected: f.store.View().SelectedConversationID,
			messages: len(f.store.Messages(42)),
		})
	})
	defer unsubscribe()

	require.NoError(t, f.engine.Reconnect(context.Background()))

	assert.Equal(t, []int64{100, 101, 102, 103, 104, 105}, messageIDs(f.store.Messages(42)))
	v := f.store.View()
	assert.Equal(t, int64(42), v.SelectedConversationID)
	assert.Equal(t, sidesync.ConversationDetail, v.Primary)

	for _, r := range renders {
		assert.Equal(t, int64(42), r.selected)
		assert.NotZero(t, r.messages)
	}

	pages := f.backend.Calls("ListMessages")
	require.Len(t, pages, 2)
	first := pages[0].Args[0].(sidesync.MessageQuery)
	assert.True(t, first.After.Equal(base))
	assert.NotEmpty(t, pages[1].Args[0].(sidesync.MessageQuery).Cursor)

	c, _ := f.store.Conversation(42)
	assert.Zero(t, c.NewMessageID)
	assert.False(t, f.network.Degraded())
	assert.False(t, f.engine.Recovering())
}

func TestReconnectWalkSurvivesFailedDelta(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()
	f.backend.PutMessages(msg(101, 42, time.Second), msg(102, 42, 2*time.Second), msg(103, 42, 3*time.Second))
	f.backend.Fail("ReconnectMessages", -1, errors.New("unavailable"))
	f.backend.Fail("ReconnectConversations", -1, errors.New("unavailable"))

	require.NoError(t, f.engine.Reconnect(context.Background()))

	assert.Equal(t, []int64{100, 101, 102, 103}, messageIDs(f.store.Messages(42)))
	assert.Len(t, f.backend.Calls("ReconnectMessages"), 4)
}

func TestReconnectFailsWithoutTeams(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()
	f.backend.Fail("ListTeams", -1, errors.New("unavailable"))

	err := f.engine.Reconnect(context.Background())
	require.Error(t, err)
	assert.True(t, f.network.Degraded())
	assert.Len(t, f.backend.Calls("ListTeams"), 4)
	assert.Empty(t, f.backend.Calls("ListMessages"))
}

type statusError int

func (e statusError) Error() string   { return "status error" }
func (e statusError) StatusCode() int { return int(e) }

func TestReconnectRetriesOnlyServerErrors(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()

	f.backend.Fail("TeamNotifications", 2, statusError(503))
	require.NoError(t, f.engine.Reconnect(context.Background()))
	assert.Len(t, f.backend.Calls("TeamNotifications"), 3)
	assert.Equal(t, []bool{false}, f.network.History())

	f.backend.Fail("TeamNotifications", 1, statusError(401))
	require.Error(t, f.engine.Reconnect(context.Background()))
	assert.Len(t, f.backend.Calls("TeamNotifications"), 4)
	assert.True(t, f.network.Degraded())
}

func TestReconnectFallsBackWhenTeamIsGone(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()
	f.backend.RemoveTeam(1)
	f.backend.PutTeams(&sidesync.Team{ID: 2, Members: []int64{self}, DefaultChannel: 50})
	f.backend.PutConversations(&sidesync.Conversation{ID: 50, Type: sidesync.ConversationPublic, Team: 2, Members: []int64{self}})
	f.backend.PutMessages(msg(500, 50, 0))

	require.NoError(t, f.engine.Reconnect(context.Background()))

	_, ok := f.store.Team(1)
	assert.False(t, ok)
	_, ok = f.store.Conversation(42)
	assert.False(t, ok)

	v := f.store.View()
	assert.Equal(t, int64(2), v.SelectedTeam)
	assert.Equal(t, int64(50), v.SelectedConversationID)
	assert.Equal(t, []int64{500}, messageIDs(f.store.Messages(50)))
	assert.Empty(t, f.backend.Calls("ReconnectConversations"))
}

func TestReconnectRefreshesPresence(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()
	f.store.Update(func(tx *state.Tx) {
		tx.UpsertConversation(&sidesync.Conversation{ID: 30, Type: sidesync.ConversationDirect, Members: []int64{self, 9}})
	})
	f.backend.PutConversations(&sidesync.Conversation{ID: 30, Type: sidesync.ConversationDirect, Members: []int64{self, 9}})
	f.backend.Presences[9] = &sidesync.Presence{UserID: 9, Online: true}

	require.NoError(t, f.engine.Reconnect(context.Background()))

	calls := f.backend.Calls("Presence")
	require.Len(t, calls, 1)
	assert.Equal(t, []int64{8, 9}, calls[0].Args[0])

	u, ok := f.store.User(9)
	require.True(t, ok)
	assert.True(t, u.Online)
}

func TestStateChangeTriggersReconnect(t *testing.T) {
	f := newFixture(t)
	f.seedOpenConversation()

	f.engine.OnStateChange(realtime.StateConnecting, realtime.StateConnected)
	f.engine.OnStateChange(realtime.StateConnected, realtime.StateUnavailable)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.backend.Calls("ListTeams"))

	f.engine.OnStateChange(realtime.StateUnavailable, realtime.StateConnected)
	assert.Eventually(t, func() bool {
		return len(f.backend.Calls("ListMessages")) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectRunsAgainWhenConnectionReturnsDuringRecovery(t *testing.T) {
	g := newGate()
	f := newFixture(t, func(svc *engine.Services) {
		svc.Users = heldUsers{UserService: svc.Users, gate: g}
	})
	f.seedOpenConversation()

	f.engine.OnStateChange(realtime.StateUnavailable, realtime.StateConnected)
	g.waitEntered(t)
	assert.True(t, f.engine.Recovering())

	// the first walk already has its pages when the second outage ends
	f.backend.PutMessages(msg(200, 42, time.Minute))
	f.engine.OnStateChange(realtime.StateConnected, realtime.StateUnavailable)
	f.engine.OnStateChange(realtime.StateUnavailable, realtime.StateConnected)
	g.open()

	assert.Eventually(t, func() bool {
		_, ok := f.store.Message(200)
		return ok && !f.engine.Recovering()
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, f.backend.Calls("ListTeams"), 2)
}
