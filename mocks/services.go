package mocks

import (
	"context"
	"sort"

	"github.com/tmitchel/sidesync"
)

var (
	_ sidesync.TeamService         = (*Backend)(nil)
	_ sidesync.ConversationService = (*Backend)(nil)
	_ sidesync.MessageService      = (*Backend)(nil)
	_ sidesync.ThreadService       = (*Backend)(nil)
	_ sidesync.NotificationService = (*Backend)(nil)
	_ sidesync.UserService         = (*Backend)(nil)
)

func (b *Backend) ListTeams(ctx context.Context) ([]*sidesync.Team, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ListTeams"); err != nil {
		return nil, err
	}
	teams := make([]*sidesync.Team, 0, len(b.Teams))
	for _, t := range b.Teams {
		c := *t
		teams = append(teams, &c)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

func (b *Backend) TeamNotifications(ctx context.Context) ([]*sidesync.TeamNotification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("TeamNotifications"); err != nil {
		return nil, err
	}
	var out []*sidesync.TeamNotification
	for _, n := range b.TeamNotes {
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (b *Backend) ListConversations(ctx context.Context, teamID int64) ([]*sidesync.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ListConversations", teamID); err != nil {
		return nil, err
	}
	var out []*sidesync.Conversation
	for _, c := range b.Conversations {
		if c.Team == teamID || c.Type.IsDMG() {
			out = append(out, copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Backend) GetConversation(ctx context.Context, id int64) (*sidesync.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("GetConversation", id); err != nil {
		return nil, err
	}
	c, ok := b.Conversations[id]
	if !ok {
		return nil, sidesync.ErrNotFound
	}
	return copyConversation(c), nil
}

// ReconnectConversations reports the team's conversations and DMGs that
// changed after their stamp or are not stamped at all, and the stamped ids
// that no longer exist.
func (b *Backend) ReconnectConversations(ctx context.Context, teamID int64, stamps []sidesync.Stamp) (*sidesync.ConversationDelta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ReconnectConversations", teamID, stamps); err != nil {
		return nil, err
	}

	known := make(map[int64]sidesync.Stamp, len(stamps))
	delta := &sidesync.ConversationDelta{}
	for _, st := range stamps {
		known[st.ID] = st
		if _, ok := b.Conversations[st.ID]; !ok {
			delta.Removed = append(delta.Removed, st.ID)
		}
	}
	for _, c := range b.Conversations {
		if c.Team != teamID && !c.Type.IsDMG() {
			continue
		}
		st, ok := known[c.ID]
		if !ok || c.UpdatedActionTime.After(st.UpdatedActionTime) {
			delta.Changed = append(delta.Changed, copyConversation(c))
		}
	}
	for _, t := range b.Teams {
		c := *t
		delta.Teams = append(delta.Teams, &c)
	}
	sort.Slice(delta.Changed, func(i, j int) bool { return delta.Changed[i].ID < delta.Changed[j].ID })
	return delta, nil
}

// ListMessages pages top-level messages in creation order. Without After or
// Cursor it answers with the latest page.
func (b *Backend) ListMessages(ctx context.Context, q sidesync.MessageQuery) (*sidesync.MessagePage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ListMessages", q); err != nil {
		return nil, err
	}

	after := q.After
	if q.Cursor != "" {
		t, err := parseCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		after = t
	}
	limit := q.Limit
	if limit <= 0 || limit > b.PageSize {
		limit = b.PageSize
	}

	var msgs []*sidesync.Message
	for _, m := range b.Messages {
		if m.Channel == q.Channel && m.Parent == 0 && (after.IsZero() || m.Created.After(after)) {
			msgs = append(msgs, copyMessage(m))
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Created.Equal(msgs[j].Created) {
			return msgs[i].Created.Before(msgs[j].Created)
		}
		return msgs[i].ID < msgs[j].ID
	})

	page := &sidesync.MessagePage{}
	if after.IsZero() {
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		page.Messages = msgs
		page.FirstUnread = b.FirstUnread[q.Channel]
		return page, nil
	}

	if len(msgs) > limit {
		msgs = msgs[:limit]
		page.Next = cursorFor(msgs[limit-1].Created)
	}
	page.Messages = msgs
	return page, nil
}

func (b *Backend) CreateMessage(ctx context.Context, m *sidesync.Message) (*sidesync.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("CreateMessage", copyMessage(m)); err != nil {
		return nil, err
	}
	out := copyMessage(m)
	out.ID = b.newID()
	if out.Created.IsZero() {
		out.Created = b.Now()
	}
	out.UpdatedActionTime = out.Created
	b.Messages[out.ID] = out
	return copyMessage(out), nil
}

func (b *Backend) UpdateMessage(ctx context.Context, m *sidesync.Message) (*sidesync.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("UpdateMessage", copyMessage(m)); err != nil {
		return nil, err
	}
	prev, ok := b.Messages[m.ID]
	if !ok {
		return nil, sidesync.ErrNotFound
	}
	prev.Content = m.Content
	prev.Mentions = m.Mentions
	prev.UpdatedActionTime = b.Now()
	return copyMessage(prev), nil
}

func (b *Backend) DeleteMessage(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("DeleteMessage", id); err != nil {
		return err
	}
	if _, ok := b.Messages[id]; !ok {
		return sidesync.ErrNotFound
	}
	delete(b.Messages, id)
	b.RemovedMessages = append(b.RemovedMessages, id)
	return nil
}

// ReconnectMessages reports messages of stamped conversations updated after
// the stamp, and every message removed so far.
func (b *Backend) ReconnectMessages(ctx context.Context, stamps []sidesync.Stamp) (*sidesync.MessageDelta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ReconnectMessages", stamps); err != nil {
		return nil, err
	}

	known := make(map[int64]sidesync.Stamp, len(stamps))
	for _, st := range stamps {
		known[st.ID] = st
	}
	delta := &sidesync.MessageDelta{Removed: append([]int64(nil), b.RemovedMessages...)}
	for _, m := range b.Messages {
		st, ok := known[m.Channel]
		if ok && m.UpdatedActionTime.After(st.UpdatedActionTime) {
			delta.Changed = append(delta.Changed, copyMessage(m))
		}
	}
	sort.Slice(delta.Changed, func(i, j int) bool { return delta.Changed[i].ID < delta.Changed[j].ID })
	return delta, nil
}

func (b *Backend) GetThread(ctx context.Context, messageID int64) (*sidesync.ThreadDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("GetThread", messageID); err != nil {
		return nil, err
	}
	d, ok := b.Threads[messageID]
	if !ok {
		return nil, sidesync.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (b *Backend) ListThreads(ctx context.Context, teamID int64) ([]*sidesync.ThreadDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ListThreads", teamID); err != nil {
		return nil, err
	}
	var out []*sidesync.ThreadDetail
	for _, d := range b.Threads {
		if d.Root == nil {
			continue
		}
		if c, ok := b.Conversations[d.Root.Channel]; ok && c.Team == teamID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root.ID < out[j].Root.ID })
	return out, nil
}

func (b *Backend) ThreadNotification(ctx context.Context, teamID int64) (*sidesync.ThreadNotification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ThreadNotification", teamID); err != nil {
		return nil, err
	}
	n, ok := b.ThreadNotes[teamID]
	if !ok {
		return &sidesync.ThreadNotification{TeamID: teamID}, nil
	}
	c := *n
	return &c, nil
}

func (b *Backend) MarkThreadRead(ctx context.Context, threadID, messageID int64) (*sidesync.ThreadNotification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("MarkThreadRead", threadID, messageID); err != nil {
		return nil, err
	}
	var teamID int64
	if root, ok := b.Messages[threadID]; ok {
		if c, ok := b.Conversations[root.Channel]; ok {
			teamID = c.Team
		}
	}
	n, ok := b.ThreadNotes[teamID]
	if !ok {
		n = &sidesync.ThreadNotification{TeamID: teamID}
		b.ThreadNotes[teamID] = n
	}
	if n.UnreadThreads > 0 {
		n.UnreadThreads--
	}
	c := *n
	return &c, nil
}

func (b *Backend) Summary(ctx context.Context) (*sidesync.Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("Summary"); err != nil {
		return nil, err
	}
	s := b.SummaryValue
	return &s, nil
}

func (b *Backend) ReconnectNotifications(ctx context.Context, stamps []sidesync.Stamp) ([]*sidesync.ChannelNotification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("ReconnectNotifications", stamps); err != nil {
		return nil, err
	}
	var out []*sidesync.ChannelNotification
	for _, st := range stamps {
		if n, ok := b.ChannelNotes[st.ID]; ok {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

func (b *Backend) MarkChannelRead(ctx context.Context, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	return b.markRead("MarkChannelRead", channelID, messageID)
}

func (b *Backend) MarkDMGRead(ctx context.Context, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	return b.markRead("MarkDMGRead", channelID, messageID)
}

func (b *Backend) markRead(method string, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(method, channelID, messageID); err != nil {
		return nil, err
	}
	n := &sidesync.ChannelNotification{ChannelID: channelID, IsRead: true}
	b.ChannelNotes[channelID] = n
	c := *n
	return &c, nil
}

func (b *Backend) Presence(ctx context.Context, userIDs []int64) ([]*sidesync.Presence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("Presence", userIDs); err != nil {
		return nil, err
	}
	out := make([]*sidesync.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		p, ok := b.Presences[id]
		if !ok {
			out = append(out, &sidesync.Presence{UserID: id})
			continue
		}
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (b *Backend) RegisterDevice(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("RegisterDevice", token); err != nil {
		return err
	}
	b.Devices = append(b.Devices, token)
	return nil
}
