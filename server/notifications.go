package server

import (
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/realtime"
	"github.com/tmitchel/sidesync/store"
)

// channelNotification counts the top-level messages of c that userID did
// not write and has not read yet. In direct messages and groups every
// unread message counts as a mention.
func (s *Server) channelNotification(userID int64, c *sidesync.Conversation) (*sidesync.ChannelNotification, error) {
	last, err := s.db.LastRead(userID, c.ID, false)
	if err != nil {
		return nil, err
	}
	msgs, err := s.db.GetMessages(store.MessageFilter{Channel: c.ID, AfterID: last})
	if err != nil {
		return nil, err
	}

	n := &sidesync.ChannelNotification{ChannelID: c.ID, IsRead: true}
	for _, m := range msgs {
		if m.Creator == userID {
			continue
		}
		n.IsRead = false
		if c.Type.IsDMG() || containsID(m.Mentions, userID) {
			n.MentionCount++
		}
	}
	return n, nil
}

// withReadState fills the per-user read fields of c.
func (s *Server) withReadState(userID int64, c *sidesync.Conversation) (*sidesync.Conversation, error) {
	n, err := s.channelNotification(userID, c)
	if err != nil {
		return nil, err
	}
	c.IsRead = sidesync.Bool(n.IsRead)
	c.MentionCount = sidesync.Int(n.MentionCount)
	return c, nil
}

// threadUnread counts the replies of root that userID did not write and
// has not read yet. last is zero when the thread was never opened.
func (s *Server) threadUnread(userID int64, root *sidesync.Message) (replies []*sidesync.Message, unread, mentions int, last int64, err error) {
	last, err = s.db.LastRead(userID, root.ID, true)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	replies, err = s.db.GetMessages(store.MessageFilter{Channel: root.Channel, Parent: root.ID})
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for _, m := range replies {
		if m.ID <= last || m.Creator == userID {
			continue
		}
		unread++
		if containsID(m.Mentions, userID) {
			mentions++
		}
	}
	return replies, unread, mentions, last, nil
}

func (s *Server) threadNotification(userID, teamID int64) (*sidesync.ThreadNotification, error) {
	roots, err := s.db.GetThreadRoots(teamID, userID)
	if err != nil {
		return nil, err
	}

	n := &sidesync.ThreadNotification{TeamID: teamID}
	for _, root := range roots {
		_, unread, mentions, last, err := s.threadUnread(userID, root)
		if err != nil {
			return nil, err
		}
		if unread > 0 {
			n.UnreadThreads++
			if last == 0 {
				n.NewThreads++
			}
		}
		n.MentionCount += mentions
	}
	return n, nil
}

func (s *Server) teamNotification(userID int64, team *sidesync.Team) (*sidesync.TeamNotification, error) {
	convs, err := s.db.GetConversationsForTeam(team.ID)
	if err != nil {
		return nil, err
	}

	n := &sidesync.TeamNotification{TeamID: team.ID, IsRead: true}
	for _, c := range convs {
		if !c.HasMember(userID) {
			continue
		}
		cn, err := s.channelNotification(userID, c)
		if err != nil {
			return nil, err
		}
		n.IsRead = n.IsRead && cn.IsRead
		n.MentionCount += cn.MentionCount
	}

	tn, err := s.threadNotification(userID, team.ID)
	if err != nil {
		return nil, err
	}
	n.UnreadThreads = tn.UnreadThreads
	return n, nil
}

func (s *Server) summary(userID int64) (*sidesync.Summary, error) {
	sum := &sidesync.Summary{}

	dmgs, err := s.db.GetDMGsForUser(userID)
	if err != nil {
		return nil, err
	}
	for _, c := range dmgs {
		n, err := s.channelNotification(userID, c)
		if err != nil {
			return nil, err
		}
		if !n.IsRead {
			sum.UnreadDMGs++
		}
		sum.MentionCount += n.MentionCount
	}

	teams, err := s.db.GetTeamsForUser(userID)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		tn, err := s.threadNotification(userID, t.ID)
		if err != nil {
			return nil, err
		}
		sum.UnreadThreads += tn.UnreadThreads
	}
	return sum, nil
}

// viewable loads a conversation the user may read.
func (s *Server) viewable(userID, convID int64) (*sidesync.Conversation, *serverError) {
	c, err := s.db.GetConversation(convID)
	if err != nil {
		return nil, fail(err, "Unable to get conversation")
	}
	if !c.Viewable(userID) {
		return nil, &serverError{sidesync.ErrNotMember, "Not a member of the conversation", http.StatusForbidden}
	}
	return c, nil
}

func (s *Server) TeamNotifications() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}

		teams, err := s.db.GetTeamsForUser(user.ID)
		if err != nil {
			return fail(err, "Unable to get teams")
		}
		notes := make([]*sidesync.TeamNotification, 0, len(teams))
		for _, t := range teams {
			n, err := s.teamNotification(user.ID, t)
			if err != nil {
				return fail(err, "Unable to get team notification")
			}
			notes = append(notes, n)
		}

		writeJSON(w, notes)
		return nil
	}
}

func (s *Server) ThreadNotification() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		team, serr := s.memberTeam(r, user.ID)
		if serr != nil {
			return serr
		}

		n, err := s.threadNotification(user.ID, team.ID)
		if err != nil {
			return fail(err, "Unable to get thread notification")
		}
		writeJSON(w, n)
		return nil
	}
}

func (s *Server) Summary() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}

		sum, err := s.summary(user.ID)
		if err != nil {
			return fail(err, "Unable to get notifications")
		}
		writeJSON(w, sum)
		return nil
	}
}

// ReconnectNotifications answers with the read state of every stamped
// conversation the user can still see.
func (s *Server) ReconnectNotifications() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		var req stampsRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}

		found := make([]*sidesync.ChannelNotification, len(req.Stamps))
		g, _ := errgroup.WithContext(r.Context())
		g.SetLimit(fanOut)
		for i, st := range req.Stamps {
			i, st := i, st
			g.Go(func() error {
				c, err := s.db.GetConversation(st.ID)
				if errors.Is(err, sidesync.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				if !c.Viewable(user.ID) {
					return nil
				}
				found[i], err = s.channelNotification(user.ID, c)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fail(err, "Unable to get notifications")
		}

		notes := make([]*sidesync.ChannelNotification, 0, len(found))
		for _, n := range found {
			if n != nil {
				notes = append(notes, n)
			}
		}
		writeJSON(w, notes)
		return nil
	}
}

// MarkRead moves the caller's read position in a channel, or in a direct
// message or group when dmg is set. Other sessions of the user are told
// about the new read state.
func (s *Server) MarkRead(dmg bool) errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}
		var req readRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}

		c, serr := s.viewable(user.ID, id)
		if serr != nil {
			return serr
		}
		if c.Type.IsDMG() != dmg {
			return &serverError{errors.Errorf("conversation %d is a %s", c.ID, c.Type), "Wrong endpoint for conversation", http.StatusBadRequest}
		}

		if err := s.db.MarkRead(user.ID, c.ID, false, req.MessageID); err != nil {
			return fail(err, "Unable to mark conversation read")
		}
		n, err := s.channelNotification(user.ID, c)
		if err != nil {
			return fail(err, "Unable to get notification")
		}

		s.hub.publish([]int64{user.ID}, realtime.ChannelNotificationUpdated{ChannelNotification: *n})
		writeJSON(w, n)
		return nil
	}
}

func (s *Server) MarkThreadRead() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}
		var req readRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}

		root, err := s.db.GetMessage(id)
		if err != nil {
			return fail(err, "Unable to get thread")
		}
		c, serr := s.viewable(user.ID, root.Channel)
		if serr != nil {
			return serr
		}

		if err := s.db.MarkRead(user.ID, root.ID, true, req.MessageID); err != nil {
			return fail(err, "Unable to mark thread read")
		}
		n, err := s.threadNotification(user.ID, c.Team)
		if err != nil {
			return fail(err, "Unable to get thread notification")
		}

		s.hub.publish([]int64{user.ID}, realtime.ThreadNotificationUpdated{ThreadNotification: *n})
		writeJSON(w, n)
		return nil
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
