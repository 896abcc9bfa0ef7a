package state

import (
	"sort"

	"github.com/tmitchel/sidesync"
)

// Message returns a copy of the confirmed message with the given id.
func (s *Store) Message(id int64) (*sidesync.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message(id)
}

// Pending returns a copy of the unconfirmed message with the given temp id.
func (s *Store) Pending(tempID string) (*sidesync.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.pending[tempID]
	if !ok {
		return nil, false
	}
	return cloneMessage(m), true
}

// Messages returns the top-level messages of a channel, confirmed and
// pending, oldest first.
func (s *Store) Messages(channelID int64) []*sidesync.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectMessages(func(m *sidesync.Message) bool {
		return m.Channel == channelID && m.Parent == 0
	})
}

// Replies returns the replies of a thread, oldest first.
func (s *Store) Replies(parentID int64) []*sidesync.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectMessages(func(m *sidesync.Message) bool { return m.Parent == parentID })
}

// LastMessage returns the newest confirmed top-level message of a channel.
func (s *Store) LastMessage(channelID int64) (*sidesync.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessage(channelID)
}

// LastMessage returns the newest confirmed top-level message of a channel.
func (tx *Tx) LastMessage(channelID int64) (*sidesync.Message, bool) {
	return tx.s.lastMessage(channelID)
}

// Message returns a copy of the confirmed message with the given id.
func (tx *Tx) Message(id int64) (*sidesync.Message, bool) {
	return tx.s.message(id)
}

func (s *Store) message(id int64) (*sidesync.Message, bool) {
	m, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	return cloneMessage(m), true
}

func (s *Store) lastMessage(channelID int64) (*sidesync.Message, bool) {
	var last *sidesync.Message
	for _, m := range s.messages {
		if m.Channel != channelID || m.Parent != 0 {
			continue
		}
		if last == nil || m.Created.After(last.Created) || (m.Created.Equal(last.Created) && m.ID > last.ID) {
			last = m
		}
	}
	if last == nil {
		return nil, false
	}
	return cloneMessage(last), true
}

func (s *Store) collectMessages(keep func(*sidesync.Message) bool) []*sidesync.Message {
	var out []*sidesync.Message
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, cloneMessage(m))
		}
	}
	for _, m := range s.pending {
		if keep(m) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		if out[i].IsTemporary != out[j].IsTemporary {
			return !out[i].IsTemporary
		}
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].TempID < out[j].TempID
	})
	return out
}

// MergeMessages upserts every confirmed message in msgs.
func (tx *Tx) MergeMessages(msgs []*sidesync.Message) {
	for _, m := range msgs {
		tx.UpsertMessage(m)
	}
}

// UpsertMessage stores a confirmed message by id. If a pending message with
// the same temp id is still around it is removed in the same transaction,
// so applying the same payload twice leaves a single entry.
func (tx *Tx) UpsertMessage(m *sidesync.Message) {
	if m == nil || m.ID == 0 {
		return
	}
	if m.TempID != "" {
		delete(tx.s.pending, m.TempID)
	}

	next := cloneMessage(m)
	next.IsTemporary = false
	next.HasError = false
	sidesync.SortReactions(next.Reactions)
	tx.s.messages[m.ID] = next
}

// OverlayMessage stores a local edit of a confirmed message until the
// server answers. The message is flagged temporary meanwhile.
func (tx *Tx) OverlayMessage(m *sidesync.Message) {
	if _, ok := tx.s.messages[m.ID]; !ok {
		return
	}
	next := cloneMessage(m)
	next.IsTemporary = true
	tx.s.messages[m.ID] = next
}

// DeleteMessage removes the message and its replies. If it was the open
// thread the side pane is closed.
func (tx *Tx) DeleteMessage(id int64) {
	delete(tx.s.messages, id)
	for mid, m := range tx.s.messages {
		if m.Parent == id {
			delete(tx.s.messages, mid)
		}
	}
	if tx.s.view.SelectedThread == id {
		tx.clearThread()
	}
}

// InsertTemporary stores an unconfirmed message under its temp id.
func (tx *Tx) InsertTemporary(m *sidesync.Message) {
	next := cloneMessage(m)
	next.IsTemporary = true
	tx.s.pending[m.TempID] = next
}

// ConfirmTemporary swaps the pending message for its confirmed version.
func (tx *Tx) ConfirmTemporary(tempID string, confirmed *sidesync.Message) {
	delete(tx.s.pending, tempID)
	tx.UpsertMessage(confirmed)
}

// FailTemporary flags the pending message so it can be resent.
func (tx *Tx) FailTemporary(tempID string) {
	if m, ok := tx.s.pending[tempID]; ok {
		m.HasError = true
	}
}

// Pending returns a copy of the unconfirmed message with the given temp id.
func (tx *Tx) Pending(tempID string) (*sidesync.Message, bool) {
	m, ok := tx.s.pending[tempID]
	if !ok {
		return nil, false
	}
	return cloneMessage(m), true
}

// SetReactions replaces the reactions of a message, most recent first.
func (tx *Tx) SetReactions(messageID int64, reactions []sidesync.Reaction) {
	m, ok := tx.s.messages[messageID]
	if !ok {
		return
	}
	m.Reactions = cloneMessage(&sidesync.Message{Reactions: reactions}).Reactions
	sidesync.SortReactions(m.Reactions)
}

// MessageStamps returns, for every conversation that has confirmed
// messages, the newest message change known locally.
func (s *Store) MessageStamps() []sidesync.Stamp {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int64]sidesync.Stamp)
	for _, m := range s.messages {
		st, ok := latest[m.Channel]
		if !ok || m.UpdatedActionTime.After(st.UpdatedActionTime) {
			latest[m.Channel] = sidesync.Stamp{ID: m.Channel, UpdatedActionTime: m.UpdatedActionTime}
		}
	}

	stamps := make([]sidesync.Stamp, 0, len(latest))
	for _, st := range latest {
		stamps = append(stamps, st)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].ID < stamps[j].ID })
	return stamps
}
