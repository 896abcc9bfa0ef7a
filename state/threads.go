package state

import "github.com/tmitchel/sidesync"

// Thread returns the thread open in the side pane.
func (s *Store) Thread() (*sidesync.ThreadDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.thread == nil {
		return nil, false
	}
	return cloneThread(s.thread), true
}

// Threads returns the root message ids of the team's thread list.
func (s *Store) Threads(teamID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIDs(s.threads[teamID])
}

// SetThreadList replaces the thread list of a team and merges the messages
// it carries.
func (tx *Tx) SetThreadList(teamID int64, details []*sidesync.ThreadDetail) {
	roots := make([]int64, 0, len(details))
	for _, d := range details {
		if d.Root == nil {
			continue
		}
		roots = append(roots, d.Root.ID)
		tx.UpsertMessage(d.Root)
		tx.MergeMessages(d.Replies)
	}
	tx.s.threads[teamID] = roots
}

// SetThread stores the thread open in the side pane and merges its
// messages.
func (tx *Tx) SetThread(d *sidesync.ThreadDetail) {
	if d.Root != nil {
		tx.UpsertMessage(d.Root)
	}
	tx.MergeMessages(d.Replies)
	tx.s.thread = cloneThread(d)
}

// Thread returns the thread open in the side pane.
func (tx *Tx) Thread() (*sidesync.ThreadDetail, bool) {
	if tx.s.thread == nil {
		return nil, false
	}
	return cloneThread(tx.s.thread), true
}

// CloseThread drops the thread open in the side pane.
func (tx *Tx) CloseThread() {
	tx.clearThread()
}

func (tx *Tx) clearThread() {
	tx.s.thread = nil
	tx.s.view.SelectedThread = 0
	if tx.s.view.Secondary == sidesync.ThreadDetailView {
		tx.s.view.Secondary = sidesync.SecondaryNone
	}
}
