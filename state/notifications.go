package state

import "github.com/tmitchel/sidesync"

// User returns a copy of the user with the given id.
func (s *Store) User(id int64) (*sidesync.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	c := *u
	return &c, true
}

// MergeUsers inserts or overwrites users by id.
func (tx *Tx) MergeUsers(users []*sidesync.User) {
	for _, u := range users {
		c := *u
		tx.s.users[u.ID] = &c
	}
}

// SetPresence records the online status of users, creating placeholder
// entries for users not fetched yet.
func (tx *Tx) SetPresence(presences []*sidesync.Presence) {
	for _, p := range presences {
		u, ok := tx.s.users[p.UserID]
		if !ok {
			u = &sidesync.User{ID: p.UserID}
			tx.s.users[p.UserID] = u
		}
		u.Online = p.Online
		if !p.LastSeen.IsZero() {
			u.LastSeen = p.LastSeen
		}
	}
}

// Summary returns the notification summary of the authenticated user.
func (s *Store) Summary() sidesync.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// SetSummary replaces the notification summary.
func (tx *Tx) SetSummary(sum sidesync.Summary) {
	tx.s.summary = sum
}

// ChannelNotification returns the read state of a conversation.
func (s *Store) ChannelNotification(channelID int64) (sidesync.ChannelNotification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.channelNotifications[channelID]
	if !ok {
		return sidesync.ChannelNotification{}, false
	}
	return *n, true
}

// MergeChannelNotifications stores channel notifications and mirrors them on
// the conversations they annotate. A notification for a conversation that
// is not known is kept but changes nothing else.
func (tx *Tx) MergeChannelNotifications(ns []*sidesync.ChannelNotification) {
	for _, n := range ns {
		c := *n
		tx.s.channelNotifications[n.ChannelID] = &c
		if conv, ok := tx.s.conversations[n.ChannelID]; ok {
			conv.IsRead = sidesync.Bool(n.IsRead)
			conv.MentionCount = sidesync.Int(n.MentionCount)
		}
	}
}

// TeamNotification returns the aggregated notification of a team.
func (s *Store) TeamNotification(teamID int64) (sidesync.TeamNotification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.teamNotifications[teamID]
	if !ok {
		return sidesync.TeamNotification{}, false
	}
	return *n, true
}

// ReplaceTeamNotifications substitutes all team notifications.
func (tx *Tx) ReplaceTeamNotifications(ns []*sidesync.TeamNotification) {
	tx.s.teamNotifications = make(map[int64]*sidesync.TeamNotification, len(ns))
	for _, n := range ns {
		c := *n
		tx.s.teamNotifications[n.TeamID] = &c
	}
}

// ThreadNotification returns the thread notification of a team.
func (s *Store) ThreadNotification(teamID int64) (sidesync.ThreadNotification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.threadNotifications[teamID]
	if !ok {
		return sidesync.ThreadNotification{}, false
	}
	return *n, true
}

// UpsertThreadNotification stores the thread notification of a team.
func (tx *Tx) UpsertThreadNotification(n *sidesync.ThreadNotification) {
	c := *n
	tx.s.threadNotifications[n.TeamID] = &c
}

// ResetNewThreads zeroes the count of threads not seen yet.
func (tx *Tx) ResetNewThreads(teamID int64) {
	if n, ok := tx.s.threadNotifications[teamID]; ok {
		n.NewThreads = 0
	}
}
