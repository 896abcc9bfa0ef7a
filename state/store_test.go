package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/state"
)

var defaultTeams = []*sidesync.Team{
	&sidesync.Team{ID: 1, DisplayName: "team-one", Members: []int64{7, 8}, Index: 1},
	&sidesync.Team{ID: 2, DisplayName: "team-two", Members: []int64{7}, Index: 0},
}

var defaultConversations = []*sidesync.Conversation{
	&sidesync.Conversation{ID: 10, Type: sidesync.ConversationPublic, Team: 1, Members: []int64{7}},
	&sidesync.Conversation{ID: 11, Type: sidesync.ConversationPrivate, Team: 1, Members: []int64{7, 8}},
	&sidesync.Conversation{ID: 20, Type: sidesync.ConversationPublic, Team: 2, Members: []int64{7}},
	&sidesync.Conversation{ID: 30, Type: sidesync.ConversationDirect, Members: []int64{7, 9}},
}

func seeded(t *testing.T) *state.Store {
	s := state.New()
	s.Update(func(tx *state.Tx) {
		tx.ReplaceTeams(defaultTeams)
		tx.MergeConversations(defaultConversations)
		tx.MergeMessages([]*sidesync.Message{
			{ID: 100, Channel: 10, Created: time.Unix(100, 0)},
			{ID: 101, Channel: 10, Created: time.Unix(101, 0)},
			{ID: 200, Channel: 20, Created: time.Unix(200, 0)},
		})
	})
	require.Len(t, s.Teams(), 2)
	return s
}

func TestTeamsOrderedByIndex(t *testing.T) {
	s := seeded(t)
	teams := s.Teams()
	assert.Equal(t, int64(2), teams[0].ID)
	assert.Equal(t, int64(1), teams[1].ID)
}

func TestReplaceTeamsDropsStaleTeams(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.SetView(sidesync.View{SelectedTeam: 2, SelectedConversationID: 20, Primary: sidesync.ConversationDetail})
	})

	s.Update(func(tx *state.Tx) {
		tx.ReplaceTeams([]*sidesync.Team{{ID: 1, DisplayName: "renamed"}})
	})

	_, ok := s.Team(2)
	assert.False(t, ok)
	team, ok := s.Team(1)
	require.True(t, ok)
	assert.Equal(t, "renamed", team.DisplayName)

	_, ok = s.Conversation(20)
	assert.False(t, ok)
	assert.Empty(t, s.Messages(20))
	assert.Equal(t, sidesync.View{}, s.View())

	_, ok = s.Conversation(10)
	assert.True(t, ok)
}

func TestMergeConversationPreservesReadState(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.UpsertConversation(&sidesync.Conversation{
			ID: 10, Type: sidesync.ConversationPublic, Team: 1,
			IsRead: sidesync.Bool(false), MentionCount: sidesync.Int(4),
		})
		tx.SetScrollTop(10, 320)
	})

	s.Update(func(tx *state.Tx) {
		tx.UpsertConversation(&sidesync.Conversation{ID: 10, Type: sidesync.ConversationPublic, Team: 1, Name: "general"})
	})

	c, ok := s.Conversation(10)
	require.True(t, ok)
	assert.Equal(t, "general", c.Name)
	assert.False(t, c.Read())
	assert.Equal(t, 4, c.Mentions())
	assert.Equal(t, float64(320), c.ScrollTop)

	s.Update(func(tx *state.Tx) {
		tx.UpsertConversation(&sidesync.Conversation{ID: 10, IsRead: sidesync.Bool(true), MentionCount: sidesync.Int(0)})
	})
	c, _ = s.Conversation(10)
	assert.True(t, c.Read())
	assert.Equal(t, 0, c.Mentions())
}

func TestDeleteConversationCascades(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.SetView(sidesync.View{SelectedTeam: 1, SelectedConversationID: 10, Primary: sidesync.ConversationDetail, Secondary: sidesync.ConversationInfo})
		tx.InsertTemporary(&sidesync.Message{TempID: "tmp", Channel: 10})
		tx.MergeChannelNotifications([]*sidesync.ChannelNotification{{ChannelID: 10, MentionCount: 1}})
	})

	s.Update(func(tx *state.Tx) { tx.DeleteConversation(10) })

	assert.Empty(t, s.Messages(10))
	_, ok := s.Pending("tmp")
	assert.False(t, ok)
	_, ok = s.ChannelNotification(10)
	assert.False(t, ok)
	assert.Equal(t, sidesync.View{SelectedTeam: 1}, s.View())
	assert.Len(t, s.Messages(20), 1)
}

func TestMemberListOps(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.AddMembers(10, 8, 7, 8)
		tx.PromoteAdmins(10, 8)
		tx.AddMembers(999, 1)
		tx.AddTeamMembers(2, 9)
		tx.PromoteTeamAdmins(2, 9)
	})

	c, _ := s.Conversation(10)
	assert.Equal(t, []int64{7, 8}, c.Members)
	assert.Equal(t, []int64{8}, c.Admins)
	_, ok := s.Conversation(999)
	assert.False(t, ok)

	s.Update(func(tx *state.Tx) {
		tx.RemoveMembers(10, 8)
		tx.DemoteTeamAdmins(2, 9)
		tx.RemoveTeamMembers(2, 7)
	})

	c, _ = s.Conversation(10)
	assert.Equal(t, []int64{7}, c.Members)
	assert.Empty(t, c.Admins)
	team, _ := s.Team(2)
	assert.Equal(t, []int64{9}, team.Members)
	assert.Empty(t, team.Admins)
}

func TestConfirmTemporaryIsIdempotent(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.InsertTemporary(&sidesync.Message{TempID: "abc", Channel: 10, Content: "hi", Created: time.Unix(150, 0)})
	})
	require.Len(t, s.Messages(10), 3)

	confirmed := &sidesync.Message{ID: 102, TempID: "abc", Channel: 10, Content: "hi", Created: time.Unix(150, 0)}
	s.Update(func(tx *state.Tx) { tx.UpsertMessage(confirmed) })
	s.Update(func(tx *state.Tx) { tx.ConfirmTemporary("abc", confirmed) })
	s.Update(func(tx *state.Tx) { tx.UpsertMessage(confirmed) })

	msgs := s.Messages(10)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(102), msgs[2].ID)
	assert.False(t, msgs[2].IsTemporary)
	_, ok := s.Pending("abc")
	assert.False(t, ok)
}

func TestFailTemporaryKeepsMessage(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.InsertTemporary(&sidesync.Message{TempID: "abc", Channel: 10})
		tx.FailTemporary("abc")
	})

	m, ok := s.Pending("abc")
	require.True(t, ok)
	assert.True(t, m.IsTemporary)
	assert.True(t, m.HasError)
}

func TestReactionsSortedAfterMutation(t *testing.T) {
	s := seeded(t)
	now := time.Now()
	s.Update(func(tx *state.Tx) {
		tx.SetReactions(100, []sidesync.Reaction{
			{Name: "old", Users: []int64{7}, UpdatedAt: now.Add(-time.Hour)},
			{Name: "new", Users: []int64{8}, UpdatedAt: now},
		})
	})

	m, _ := s.Message(100)
	require.Len(t, m.Reactions, 2)
	assert.Equal(t, "new", m.Reactions[0].Name)
	assert.Equal(t, "old", m.Reactions[1].Name)
}

func TestChannelNotificationsMirrorConversation(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.MergeChannelNotifications([]*sidesync.ChannelNotification{
			{ChannelID: 11, IsRead: false, MentionCount: 2},
			{ChannelID: 555, IsRead: false, MentionCount: 9},
		})
	})

	c, _ := s.Conversation(11)
	assert.False(t, c.Read())
	assert.Equal(t, 2, c.Mentions())
	_, ok := s.Conversation(555)
	assert.False(t, ok)
}

func TestDeleteMessageClosesThread(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.SetThread(&sidesync.ThreadDetail{
			Root:    &sidesync.Message{ID: 100, Channel: 10},
			Replies: []*sidesync.Message{{ID: 300, Channel: 10, Parent: 100}},
		})
		tx.SetView(sidesync.View{SelectedTeam: 1, SelectedConversationID: 10, Secondary: sidesync.ThreadDetailView, SelectedThread: 100})
	})
	require.Len(t, s.Replies(100), 1)

	s.Update(func(tx *state.Tx) { tx.DeleteMessage(100) })

	assert.Empty(t, s.Replies(100))
	_, ok := s.Thread()
	assert.False(t, ok)
	v := s.View()
	assert.Equal(t, sidesync.SecondaryNone, v.Secondary)
	assert.Equal(t, int64(10), v.SelectedConversationID)
}

func TestListenersNotifiedOncePerUpdate(t *testing.T) {
	s := state.New()
	var calls int
	unsubscribe := s.Subscribe(func() { calls++ })

	s.Update(func(tx *state.Tx) {
		tx.ReplaceTeams(defaultTeams)
		tx.MergeConversations(defaultConversations)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), s.Revision())

	unsubscribe()
	s.Update(func(tx *state.Tx) {})
	assert.Equal(t, 1, calls)
}

func TestStamps(t *testing.T) {
	s := seeded(t)
	s.Update(func(tx *state.Tx) {
		tx.UpsertMessage(&sidesync.Message{ID: 102, Channel: 10, UpdatedActionTime: time.Unix(500, 0)})
		tx.UpsertMessage(&sidesync.Message{ID: 103, Channel: 10, UpdatedActionTime: time.Unix(400, 0)})
	})

	stamps := s.MessageStamps()
	require.Len(t, stamps, 2)
	assert.Equal(t, int64(10), stamps[0].ID)
	assert.True(t, stamps[0].UpdatedActionTime.Equal(time.Unix(500, 0)))

	assert.Len(t, s.ConversationStamps(), len(defaultConversations))
}
