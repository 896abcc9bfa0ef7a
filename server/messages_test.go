package server_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/services"
)

func post(t *testing.T, c *services.Client, channel, parent int64, content string) *sidesync.Message {
	tempID := uuid.New().String()
	m, err := c.CreateMessage(context.Background(), &sidesync.Message{
		TempID:  tempID,
		Channel: channel,
		Parent:  parent,
		Content: content,
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	require.Equal(t, tempID, m.TempID)
	// keep creation times apart so paging by time is exact
	time.Sleep(time.Millisecond)
	return m
}

func messageIDs(msgs []*sidesync.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestCreateMessageSetsAuthor(t *testing.T) {
	f := newFixture(t, 0)
	alice := f.client(t, f.alice)

	m, err := alice.CreateMessage(context.Background(), &sidesync.Message{
		Channel: f.general.ID,
		Creator: f.bob.ID,
		Content: "hi <@" + itoa(f.bob.ID) + ">",
	})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, m.Creator)
	assert.Equal(t, []int64{f.bob.ID}, m.Mentions)
	assert.False(t, m.Created.IsZero())

	bob := f.client(t, f.bob)
	_, err = bob.CreateMessage(context.Background(), &sidesync.Message{Channel: f.secret.ID, Content: "let me in"})
	assert.Equal(t, http.StatusForbidden, status(err))

	reply := post(t, alice, f.general.ID, m.ID, "reply")
	_, err = alice.CreateMessage(context.Background(), &sidesync.Message{Channel: f.general.ID, Parent: reply.ID, Content: "nested"})
	assert.Equal(t, http.StatusBadRequest, status(err))
}

func TestListMessagesPages(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	alice, bob := f.client(t, f.alice), f.client(t, f.bob)

	var msgs []*sidesync.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, post(t, alice, f.general.ID, 0, "message"))
	}
	post(t, alice, f.general.ID, msgs[0].ID, "replies are not listed")

	_, err := bob.MarkChannelRead(ctx, f.general.ID, msgs[2].ID)
	require.NoError(t, err)

	latest, err := bob.ListMessages(ctx, sidesync.MessageQuery{Channel: f.general.ID, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, messageIDs(msgs[2:]), messageIDs(latest.Messages))
	assert.Equal(t, msgs[3].ID, latest.FirstUnread)
	assert.Empty(t, latest.Next)

	page, err := bob.ListMessages(ctx, sidesync.MessageQuery{Channel: f.general.ID, After: msgs[0].Created, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, messageIDs(msgs[1:3]), messageIDs(page.Messages))
	require.NotEmpty(t, page.Next)

	page, err = bob.ListMessages(ctx, sidesync.MessageQuery{Cursor: page.Next})
	require.NoError(t, err)
	assert.Equal(t, messageIDs(msgs[3:]), messageIDs(page.Messages))
	assert.Empty(t, page.Next)
}

func TestEditAndDeleteByAuthorOnly(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	alice, bob := f.client(t, f.alice), f.client(t, f.bob)
	before := time.Now().UTC()

	m := post(t, alice, f.general.ID, 0, "typo")
	kept := post(t, alice, f.general.ID, 0, "kept")

	edit := *m
	edit.Content = "fixed"
	_, err := bob.UpdateMessage(ctx, &edit)
	assert.Equal(t, http.StatusForbidden, status(err))

	updated, err := alice.UpdateMessage(ctx, &edit)
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Content)
	assert.True(t, updated.UpdatedActionTime.After(m.UpdatedActionTime))

	assert.Equal(t, http.StatusForbidden, status(bob.DeleteMessage(ctx, m.ID)))
	require.NoError(t, alice.DeleteMessage(ctx, m.ID))
	assert.True(t, errors.Is(alice.DeleteMessage(ctx, m.ID), sidesync.ErrNotFound))

	delta, err := bob.ReconnectMessages(ctx, []sidesync.Stamp{
		{ID: f.general.ID, UpdatedActionTime: before},
		{ID: f.secret.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{kept.ID}, messageIDs(delta.Changed))
	assert.Equal(t, []int64{m.ID}, delta.Removed)
}

func TestChannelNotifications(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	alice, bob := f.client(t, f.alice), f.client(t, f.bob)

	post(t, alice, f.general.ID, 0, "hello")
	last := post(t, alice, f.general.ID, 0, "hey <@"+itoa(f.bob.ID)+">")
	psst := post(t, alice, f.dm.ID, 0, "psst")

	notes, err := bob.ReconnectNotifications(ctx, []sidesync.Stamp{{ID: f.general.ID}, {ID: f.dm.ID}, {ID: f.secret.ID}})
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, sidesync.ChannelNotification{ChannelID: f.general.ID, IsRead: false, MentionCount: 1}, *notes[0])
	assert.Equal(t, sidesync.ChannelNotification{ChannelID: f.dm.ID, IsRead: false, MentionCount: 1}, *notes[1])

	sum, err := bob.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, sidesync.Summary{UnreadDMGs: 1, MentionCount: 1}, *sum)

	teamNotes, err := bob.TeamNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, teamNotes, 1)
	assert.False(t, teamNotes[0].IsRead)
	assert.Equal(t, 1, teamNotes[0].MentionCount)

	n, err := bob.MarkChannelRead(ctx, f.general.ID, last.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	assert.Zero(t, n.MentionCount)

	// channels and direct messages are read through their own endpoints
	_, err = bob.MarkChannelRead(ctx, f.dm.ID, last.ID)
	assert.Equal(t, http.StatusBadRequest, status(err))
	n, err = bob.MarkDMGRead(ctx, f.dm.ID, psst.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	// own messages never count as unread
	n, err = alice.MarkChannelRead(ctx, f.general.ID, 0)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
}

func TestThreads(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	alice, bob := f.client(t, f.alice), f.client(t, f.bob)

	root := post(t, alice, f.general.ID, 0, "thoughts?")
	first := post(t, bob, f.general.ID, root.ID, "yes <@"+itoa(f.alice.ID)+">")
	post(t, bob, f.general.ID, root.ID, "and more")

	n, err := alice.ThreadNotification(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, sidesync.ThreadNotification{TeamID: f.team.ID, UnreadThreads: 1, MentionCount: 1, NewThreads: 1}, *n)

	threads, err := alice.ListThreads(ctx, f.team.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, root.ID, threads[0].Root.ID)
	assert.Equal(t, []int64{f.alice.ID, f.bob.ID}, threads[0].Participants)
	assert.Equal(t, 2, threads[0].Unread)

	d, err := alice.GetThread(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, d.Root.ID)
	assert.Len(t, d.Replies, 2)

	n, err = alice.MarkThreadRead(ctx, root.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, sidesync.ThreadNotification{TeamID: f.team.ID, UnreadThreads: 1}, *n)

	n, err = alice.MarkThreadRead(ctx, root.ID, d.Replies[1].ID)
	require.NoError(t, err)
	assert.Equal(t, sidesync.ThreadNotification{TeamID: f.team.ID}, *n)

	sum, err := alice.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.UnreadThreads)

	carol := f.client(t, f.carol)
	threads, err = carol.ListThreads(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Empty(t, threads)
}
