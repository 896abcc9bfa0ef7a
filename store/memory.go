package store

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

type storedMessage struct {
	*sidesync.Message
	deletedAt time.Time
}

func (m *storedMessage) deleted() bool {
	return !m.deletedAt.IsZero()
}

type readKey struct {
	user, target int64
	thread       bool
}

// memory keeps every table in maps. It follows the postgres queries
// closely enough to stand in for them in tests and local runs.
type memory struct {
	mu sync.RWMutex

	lastID   int64
	users    map[int64]*sidesync.User
	teams    map[int64]*sidesync.Team
	convs    map[int64]*sidesync.Conversation
	messages map[int64]*storedMessage
	reads    map[readKey]int64
	devices  map[int64][]string
}

// NewMemory returns an empty in-memory Database.
func NewMemory() Database {
	return &memory{
		users:    make(map[int64]*sidesync.User),
		teams:    make(map[int64]*sidesync.Team),
		convs:    make(map[int64]*sidesync.Conversation),
		messages: make(map[int64]*storedMessage),
		reads:    make(map[readKey]int64),
		devices:  make(map[int64][]string),
	}
}

func (m *memory) Close() {}

func (m *memory) nextID() int64 {
	m.lastID++
	return m.lastID
}

func (m *memory) GetUser(id int64) (*sidesync.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "user %d", id)
	}
	return copyUser(u), nil
}

func (m *memory) GetTeam(id int64) (*sidesync.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.teams[id]
	if !ok {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "team %d", id)
	}
	return copyTeam(t), nil
}

func (m *memory) GetTeamsForUser(userID int64) ([]*sidesync.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var teams []*sidesync.Team
	for _, t := range m.teams {
		if t.HasMember(userID) {
			teams = append(teams, copyTeam(t))
		}
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Index != teams[j].Index {
			return teams[i].Index < teams[j].Index
		}
		return teams[i].ID < teams[j].ID
	})
	return teams, nil
}

func (m *memory) GetConversation(id int64) (*sidesync.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.convs[id]
	if !ok {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "conversation %d", id)
	}
	return copyConversation(c), nil
}

func (m *memory) GetConversationsForTeam(teamID int64) ([]*sidesync.Conversation, error) {
	return m.conversationsWhere(func(c *sidesync.Conversation) bool {
		return c.Team == teamID
	}), nil
}

func (m *memory) GetDMGsForUser(userID int64) ([]*sidesync.Conversation, error) {
	return m.conversationsWhere(func(c *sidesync.Conversation) bool {
		return c.Type.IsDMG() && c.HasMember(userID)
	}), nil
}

func (m *memory) conversationsWhere(keep func(*sidesync.Conversation) bool) []*sidesync.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*sidesync.Conversation
	for _, c := range m.convs {
		if keep(c) {
			out = append(out, copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memory) GetMessage(id int64) (*sidesync.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sm, ok := m.messages[id]
	if !ok || sm.deleted() {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "message %d", id)
	}
	return copyMessage(sm.Message), nil
}

func (m *memory) GetMessages(f MessageFilter) ([]*sidesync.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*sidesync.Message
	for _, sm := range m.messages {
		if sm.Channel != f.Channel || sm.deleted() {
			continue
		}
		if f.Changed {
			if !sm.UpdatedActionTime.After(f.ChangedSince) {
				continue
			}
		} else if sm.Parent != f.Parent {
			continue
		}
		if !f.After.IsZero() && !sm.Created.After(f.After) {
			continue
		}
		if f.AfterID != 0 && sm.ID <= f.AfterID {
			continue
		}
		msgs = append(msgs, copyMessage(sm.Message))
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Created.Equal(msgs[j].Created) {
			return msgs[i].Created.Before(msgs[j].Created)
		}
		return msgs[i].ID < msgs[j].ID
	})

	if f.Limit > 0 && len(msgs) > f.Limit {
		if f.Latest {
			msgs = msgs[len(msgs)-f.Limit:]
		} else {
			msgs = msgs[:f.Limit]
		}
	}
	return msgs, nil
}

func (m *memory) GetRemovedMessages(channelID int64, since time.Time) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id, sm := range m.messages {
		if sm.Channel == channelID && sm.deleted() && sm.deletedAt.After(since) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memory) GetThreadRoots(teamID, userID int64) ([]*sidesync.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hasReplies := make(map[int64]bool)
	repliedBy := make(map[int64]bool)
	for _, sm := range m.messages {
		if sm.Parent == 0 || sm.deleted() {
			continue
		}
		hasReplies[sm.Parent] = true
		if sm.Creator == userID {
			repliedBy[sm.Parent] = true
		}
	}

	var roots []*sidesync.Message
	for id, sm := range m.messages {
		if sm.Parent != 0 || sm.deleted() || !hasReplies[id] {
			continue
		}
		c, ok := m.convs[sm.Channel]
		if !ok || c.Team != teamID {
			continue
		}
		if sm.Creator == userID || repliedBy[id] {
			roots = append(roots, copyMessage(sm.Message))
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		if !roots[i].UpdatedActionTime.Equal(roots[j].UpdatedActionTime) {
			return roots[i].UpdatedActionTime.After(roots[j].UpdatedActionTime)
		}
		return roots[i].ID > roots[j].ID
	})
	return roots, nil
}

func (m *memory) CreateUser(u *sidesync.User) (*sidesync.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, errors.Errorf("Error creating user %s: email taken", u.Email)
		}
	}
	stored := copyUser(u)
	stored.ID = m.nextID()
	m.users[stored.ID] = stored
	return copyUser(stored), nil
}

func (m *memory) CreateTeam(t *sidesync.Team) (*sidesync.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyTeam(t)
	stored.ID = m.nextID()
	m.teams[stored.ID] = stored
	return copyTeam(stored), nil
}

func (m *memory) CreateConversation(c *sidesync.Conversation) (*sidesync.Conversation, error) {
	if _, err := c.Type.MarshalText(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyConversation(c)
	stored.ID = m.nextID()
	stored.IsRead, stored.MentionCount = nil, nil
	m.convs[stored.ID] = stored
	return copyConversation(stored), nil
}

func (m *memory) CreateMessage(msg *sidesync.Message) (*sidesync.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyMessage(msg)
	stored.ID = m.nextID()
	stored.IsTemporary, stored.HasError = false, false
	m.messages[stored.ID] = &storedMessage{Message: stored}
	if root, ok := m.messages[msg.Parent]; ok && msg.Parent != 0 {
		root.UpdatedActionTime = stored.UpdatedActionTime
	}
	return copyMessage(stored), nil
}

func (m *memory) RegisterDevice(userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.devices[userID] {
		if t == token {
			return nil
		}
	}
	m.devices[userID] = append(m.devices[userID], token)
	return nil
}

func (m *memory) AddTeamMembers(teamID int64, userIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return errors.Wrapf(sidesync.ErrNotFound, "team %d", teamID)
	}
	t.Members = addIDs(t.Members, userIDs)
	t.UpdatedActionTime = time.Now().UTC()
	return nil
}

func (m *memory) AddConversationMembers(conversationID int64, userIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[conversationID]
	if !ok {
		return errors.Wrapf(sidesync.ErrNotFound, "conversation %d", conversationID)
	}
	c.Members = addIDs(c.Members, userIDs)
	c.UpdatedActionTime = time.Now().UTC()
	return nil
}

func (m *memory) RemoveConversationMembers(conversationID int64, userIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[conversationID]
	if !ok {
		return errors.Wrapf(sidesync.ErrNotFound, "conversation %d", conversationID)
	}
	c.Members = removeIDs(c.Members, userIDs)
	c.Admins = removeIDs(c.Admins, userIDs)
	c.UpdatedActionTime = time.Now().UTC()
	return nil
}

func (m *memory) UpdateMessage(msg *sidesync.Message) (*sidesync.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm, ok := m.messages[msg.ID]
	if !ok || sm.deleted() {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "message %d", msg.ID)
	}
	update := copyMessage(msg)
	sm.Content = update.Content
	sm.Mentions = update.Mentions
	sm.Reactions = update.Reactions
	sm.IsPinned = update.IsPinned
	sm.UpdatedActionTime = update.UpdatedActionTime
	return copyMessage(sm.Message), nil
}

func (m *memory) DeleteMessage(id int64, at time.Time) (*sidesync.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm, ok := m.messages[id]
	if !ok || sm.deleted() {
		return nil, errors.Wrapf(sidesync.ErrNotFound, "message %d", id)
	}
	sm.deletedAt = at
	return copyMessage(sm.Message), nil
}

func (m *memory) UserForAuth(email string) (*sidesync.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, errors.Wrapf(sidesync.ErrNotFound, "user %s", email)
}

func (m *memory) MarkRead(userID, targetID int64, thread bool, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := readKey{userID, targetID, thread}
	if messageID > m.reads[k] {
		m.reads[k] = messageID
	}
	return nil
}

func (m *memory) LastRead(userID, targetID int64, thread bool) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.reads[readKey{userID, targetID, thread}], nil
}

func copyUser(u *sidesync.User) *sidesync.User {
	c := *u
	c.Password = append([]byte(nil), u.Password...)
	return &c
}

func copyTeam(t *sidesync.Team) *sidesync.Team {
	c := *t
	c.Members = append([]int64{}, t.Members...)
	c.Admins = append([]int64{}, t.Admins...)
	return &c
}

func copyConversation(in *sidesync.Conversation) *sidesync.Conversation {
	c := *in
	c.Members = append([]int64{}, in.Members...)
	c.Admins = append([]int64{}, in.Admins...)
	if in.IsRead != nil {
		c.IsRead = sidesync.Bool(*in.IsRead)
	}
	if in.MentionCount != nil {
		c.MentionCount = sidesync.Int(*in.MentionCount)
	}
	return &c
}

func copyMessage(in *sidesync.Message) *sidesync.Message {
	c := *in
	if in.Mentions != nil {
		c.Mentions = append([]int64{}, in.Mentions...)
	}
	if in.Reactions != nil {
		c.Reactions = make([]sidesync.Reaction, len(in.Reactions))
		for i, r := range in.Reactions {
			r.Users = append([]int64{}, r.Users...)
			c.Reactions[i] = r
		}
	}
	return &c
}

func addIDs(ids, add []int64) []int64 {
	for _, id := range add {
		if !containsID(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func removeIDs(ids, remove []int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if !containsID(remove, id) {
			out = append(out, id)
		}
	}
	return out
}
