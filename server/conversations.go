package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/realtime"
)

func (s *Server) GetConversation() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}

		c, serr := s.viewable(user.ID, id)
		if serr != nil {
			return serr
		}
		c, err := s.withReadState(user.ID, c)
		if err != nil {
			return fail(err, "Unable to get read state")
		}
		writeJSON(w, c)
		return nil
	}
}

// JoinConversation adds the caller to a public channel. Members, the
// caller included, are told who joined.
func (s *Server) JoinConversation() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}

		c, err := s.db.GetConversation(id)
		if err != nil {
			return fail(err, "Unable to get conversation")
		}
		if c.Type != sidesync.ConversationPublic {
			return &serverError{errors.Errorf("conversation %d is %s", id, c.Type), "Only public channels can be joined", http.StatusForbidden}
		}
		if !c.HasMember(user.ID) {
			if err := s.db.AddConversationMembers(id, []int64{user.ID}); err != nil {
				return fail(err, "Unable to join conversation")
			}
		}

		c, err = s.db.GetConversation(id)
		if err != nil {
			return fail(err, "Unable to get conversation")
		}
		s.hub.publish(c.Members, realtime.MembersJoined{Membership: realtime.Membership{
			Target:    c.ID,
			Users:     []int64{user.ID},
			Initiator: user.ID,
		}})

		c, err = s.withReadState(user.ID, c)
		if err != nil {
			return fail(err, "Unable to get read state")
		}
		writeJSON(w, c)
		return nil
	}
}

// LeaveConversation removes the caller from a conversation. The remaining
// members and the caller are told.
func (s *Server) LeaveConversation() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}

		c, err := s.db.GetConversation(id)
		if err != nil {
			return fail(err, "Unable to get conversation")
		}
		if !c.HasMember(user.ID) {
			return &serverError{sidesync.ErrNotMember, "Not a member of the conversation", http.StatusForbidden}
		}
		if err := s.db.RemoveConversationMembers(id, []int64{user.ID}); err != nil {
			return fail(err, "Unable to leave conversation")
		}

		s.hub.publish(c.Members, realtime.MembersLeft{Membership: realtime.Membership{
			Target:    c.ID,
			Users:     []int64{user.ID},
			Initiator: user.ID,
		}})
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}
