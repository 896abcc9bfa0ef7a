package readqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/mocks"
	"github.com/tmitchel/sidesync/readqueue"
	"github.com/tmitchel/sidesync/state"
)

const delay = 20 * time.Millisecond

func newQueue(t *testing.T) (*readqueue.Queue, *mocks.Backend, *state.Store) {
	logger, _ := test.NewNullLogger()
	backend := mocks.NewBackend()
	store := state.New()
	q := readqueue.New(store, backend, backend, delay, 0, logger)
	t.Cleanup(q.Close)
	return q, backend, store
}

func settle() {
	time.Sleep(5 * delay)
}

func TestSignalKeepsFurthestPosition(t *testing.T) {
	q, backend, _ := newQueue(t)

	for _, id := range []int64{5, 3, 8, 7} {
		q.Signal(&sidesync.Message{ID: id, Channel: 42}, sidesync.ConversationPublic)
	}

	assert.Eventually(t, func() bool { return len(backend.Calls("MarkChannelRead")) > 0 }, time.Second, delay/4)
	settle()

	calls := backend.Calls("MarkChannelRead")
	require.Len(t, calls, 1)
	assert.Equal(t, []interface{}{int64(42), int64(8)}, calls[0].Args)
	assert.Equal(t, int64(8), q.LastRead(sidesync.ConversationPublic, false, 42))
}

func TestSignalIgnoresOlderAfterFlush(t *testing.T) {
	q, backend, _ := newQueue(t)

	q.Signal(&sidesync.Message{ID: 10, Channel: 42}, sidesync.ConversationPrivate)
	assert.Eventually(t, func() bool { return len(backend.Calls("MarkChannelRead")) == 1 }, time.Second, delay/4)

	q.Signal(&sidesync.Message{ID: 9, Channel: 42}, sidesync.ConversationPrivate)
	settle()
	assert.Len(t, backend.Calls("MarkChannelRead"), 1)

	q.Signal(&sidesync.Message{ID: 11, Channel: 42}, sidesync.ConversationPrivate)
	assert.Eventually(t, func() bool { return len(backend.Calls("MarkChannelRead")) == 2 }, time.Second, delay/4)
}

func TestSignalRoutesByTarget(t *testing.T) {
	q, backend, store := newQueue(t)
	store.Update(func(tx *state.Tx) {
		tx.UpsertConversation(&sidesync.Conversation{ID: 30, Type: sidesync.ConversationDirect, IsRead: sidesync.Bool(false)})
	})
	backend.ThreadNotes[1] = &sidesync.ThreadNotification{TeamID: 1, UnreadThreads: 2}

	q.Signal(&sidesync.Message{ID: 300, Channel: 30}, sidesync.ConversationDirect)
	q.Signal(&sidesync.Message{ID: 501, Channel: 42, Parent: 500}, sidesync.ConversationPublic)

	assert.Eventually(t, func() bool {
		return len(backend.Calls("MarkDMGRead")) == 1 && len(backend.Calls("MarkThreadRead")) == 1
	}, time.Second, delay/4)
	settle()

	assert.Empty(t, backend.Calls("MarkChannelRead"))
	assert.Equal(t, []interface{}{int64(500), int64(501)}, backend.Calls("MarkThreadRead")[0].Args)

	c, ok := store.Conversation(30)
	require.True(t, ok)
	assert.True(t, c.Read())
}

func TestSignalIgnoresUntrackedMessages(t *testing.T) {
	q, backend, _ := newQueue(t)

	q.Signal(&sidesync.Message{ID: 1, Channel: 42}, 0)
	q.Signal(&sidesync.Message{TempID: "tmp", Channel: 42, IsTemporary: true}, sidesync.ConversationPublic)
	q.Signal(nil, sidesync.ConversationPublic)
	settle()

	assert.Empty(t, backend.Calls(""))
}

func TestFlushFailureConvergesOnNextSignal(t *testing.T) {
	q, backend, _ := newQueue(t)
	backend.Fail("MarkChannelRead", 1, errors.New("boom"))

	q.Signal(&sidesync.Message{ID: 5, Channel: 42}, sidesync.ConversationPublic)
	assert.Eventually(t, func() bool { return len(backend.Calls("MarkChannelRead")) == 1 }, time.Second, delay/4)

	q.Signal(&sidesync.Message{ID: 6, Channel: 42}, sidesync.ConversationPublic)
	assert.Eventually(t, func() bool { return len(backend.Calls("MarkChannelRead")) == 2 }, time.Second, delay/4)

	n, ok := backend.ChannelNoteFor(42)
	require.True(t, ok)
	assert.True(t, n.IsRead)
}

func TestCloseStopsPendingFlushes(t *testing.T) {
	q, backend, _ := newQueue(t)

	q.Signal(&sidesync.Message{ID: 5, Channel: 42}, sidesync.ConversationPublic)
	q.Close()
	settle()

	assert.Empty(t, backend.Calls("MarkChannelRead"))
}

// stalledNotifications never answers a channel read before the request
// context ends.
type stalledNotifications struct {
	sidesync.NotificationService
	remaining chan time.Duration
}

func (s stalledNotifications) MarkChannelRead(ctx context.Context, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	deadline, _ := ctx.Deadline()
	s.remaining <- time.Until(deadline)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFlushGivesUpAfterTimeout(t *testing.T) {
	logger, hook := test.NewNullLogger()
	backend := mocks.NewBackend()
	stalled := stalledNotifications{NotificationService: backend, remaining: make(chan time.Duration, 1)}
	q := readqueue.New(state.New(), stalled, backend, delay, 50*time.Millisecond, logger)
	t.Cleanup(q.Close)

	q.Signal(&sidesync.Message{ID: 5, Channel: 42}, sidesync.ConversationPublic)

	select {
	case left := <-stalled.remaining:
		assert.True(t, left > 0 && left <= 50*time.Millisecond, "deadline %s away", left)
	case <-time.After(time.Second):
		t.Fatal("flush never ran")
	}
	assert.Eventually(t, func() bool {
		entry := hook.LastEntry()
		return entry != nil && entry.Message == "marking channel read"
	}, time.Second, delay/4)
}
