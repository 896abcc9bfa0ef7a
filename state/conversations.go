package state

import (
	"sort"

	"github.com/tmitchel/sidesync"
)

// Conversation returns a copy of the conversation with the given id.
func (s *Store) Conversation(id int64) (*sidesync.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversation(id)
}

// Conversations returns every conversation ordered by id.
func (s *Store) Conversations() []*sidesync.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterConversations(func(*sidesync.Conversation) bool { return true })
}

// TeamConversations returns the conversations that belong to the team.
func (s *Store) TeamConversations(teamID int64) []*sidesync.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterConversations(func(c *sidesync.Conversation) bool { return c.Team == teamID })
}

// DMGs returns the direct messages and groups.
func (s *Store) DMGs() []*sidesync.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterConversations(func(c *sidesync.Conversation) bool { return c.Type.IsDMG() })
}

// Conversation returns a copy of the conversation with the given id.
func (tx *Tx) Conversation(id int64) (*sidesync.Conversation, bool) {
	return tx.s.conversation(id)
}

func (s *Store) conversation(id int64) (*sidesync.Conversation, bool) {
	c, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(c), true
}

func (s *Store) filterConversations(keep func(*sidesync.Conversation) bool) []*sidesync.Conversation {
	var out []*sidesync.Conversation
	for _, c := range s.conversations {
		if keep(c) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MergeConversations shallow-merges the payload into the stored
// conversations by id. A payload without read state keeps the stored read
// state, and local-only fields survive when the payload leaves them zero.
func (tx *Tx) MergeConversations(convs []*sidesync.Conversation) {
	for _, in := range convs {
		next := cloneConversation(in)
		if prev, ok := tx.s.conversations[in.ID]; ok {
			if next.IsRead == nil {
				next.IsRead = prev.IsRead
			}
			if next.MentionCount == nil {
				next.MentionCount = prev.MentionCount
			}
			if next.ScrollTop == 0 {
				next.ScrollTop = prev.ScrollTop
			}
			if next.NewMessageID == 0 {
				next.NewMessageID = prev.NewMessageID
			}
		}
		tx.s.conversations[in.ID] = next
	}
}

// UpsertConversation merges a single conversation.
func (tx *Tx) UpsertConversation(c *sidesync.Conversation) {
	tx.MergeConversations([]*sidesync.Conversation{c})
}

// DeleteConversation removes the conversation, its messages and its
// notification, and clears the view if it was selected.
func (tx *Tx) DeleteConversation(id int64) {
	delete(tx.s.conversations, id)
	delete(tx.s.channelNotifications, id)

	for mid, m := range tx.s.messages {
		if m.Channel == id {
			delete(tx.s.messages, mid)
		}
	}
	for tid, m := range tx.s.pending {
		if m.Channel == id {
			delete(tx.s.pending, tid)
		}
	}

	if tx.s.view.SelectedConversationID == id {
		tx.ResetView()
	} else if tx.s.thread != nil && tx.s.thread.Root != nil && tx.s.thread.Root.Channel == id {
		tx.clearThread()
	}
}

// AddMembers adds users to the conversation. Unknown conversations are
// ignored.
func (tx *Tx) AddMembers(convID int64, users ...int64) {
	if c, ok := tx.s.conversations[convID]; ok {
		c.Members = addIDs(c.Members, users...)
	}
}

// RemoveMembers removes users from the conversation and from its admins.
func (tx *Tx) RemoveMembers(convID int64, users ...int64) {
	if c, ok := tx.s.conversations[convID]; ok {
		c.Members = removeIDs(c.Members, users...)
		c.Admins = removeIDs(c.Admins, users...)
	}
}

// PromoteAdmins marks users as admins of the conversation.
func (tx *Tx) PromoteAdmins(convID int64, users ...int64) {
	if c, ok := tx.s.conversations[convID]; ok {
		c.Admins = addIDs(c.Admins, users...)
	}
}

// DemoteAdmins removes users from the conversation's admins.
func (tx *Tx) DemoteAdmins(convID int64, users ...int64) {
	if c, ok := tx.s.conversations[convID]; ok {
		c.Admins = removeIDs(c.Admins, users...)
	}
}

// SetScrollTop records the last viewed position of the conversation.
func (tx *Tx) SetScrollTop(convID int64, top float64) {
	if c, ok := tx.s.conversations[convID]; ok {
		c.ScrollTop = top
	}
}

// SetNewMessageID records the first unseen message of the conversation.
func (tx *Tx) SetNewMessageID(convID, messageID int64) {
	if c, ok := tx.s.conversations[convID]; ok {
		c.NewMessageID = messageID
	}
}

// ConversationStamps returns the last known change of every conversation.
func (s *Store) ConversationStamps() []sidesync.Stamp {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stamps := make([]sidesync.Stamp, 0, len(s.conversations))
	for _, c := range s.conversations {
		stamps = append(stamps, sidesync.Stamp{ID: c.ID, UpdatedActionTime: c.UpdatedActionTime})
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].ID < stamps[j].ID })
	return stamps
}
