package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// fanOut bounds the store queries one request runs concurrently.
const fanOut = 8

func (s *Server) ListTeams() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}

		teams, err := s.db.GetTeamsForUser(user.ID)
		if err != nil {
			return fail(err, "Unable to get teams")
		}
		if teams == nil {
			teams = []*sidesync.Team{}
		}
		writeJSON(w, teams)
		return nil
	}
}

// memberTeam loads the team named by the request if the user belongs to
// it.
func (s *Server) memberTeam(r *http.Request, userID int64) (*sidesync.Team, *serverError) {
	id, serr := idParam(r)
	if serr != nil {
		return nil, serr
	}
	team, err := s.db.GetTeam(id)
	if err != nil {
		return nil, fail(err, "Unable to get team")
	}
	if !team.HasMember(userID) {
		return nil, &serverError{errors.Errorf("user %d not in team %d", userID, id), "Not a member of the team", http.StatusForbidden}
	}
	return team, nil
}

// visibleConversations lists the team's conversations the user can open
// followed by the user's direct messages and groups, read state included.
func (s *Server) visibleConversations(userID, teamID int64) ([]*sidesync.Conversation, error) {
	convs, err := s.db.GetConversationsForTeam(teamID)
	if err != nil {
		return nil, err
	}
	dmgs, err := s.db.GetDMGsForUser(userID)
	if err != nil {
		return nil, err
	}

	out := make([]*sidesync.Conversation, 0, len(convs)+len(dmgs))
	for _, c := range append(convs, dmgs...) {
		if !c.Viewable(userID) {
			continue
		}
		c, err := s.withReadState(userID, c)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Server) ListConversations() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		team, serr := s.memberTeam(r, user.ID)
		if serr != nil {
			return serr
		}

		convs, err := s.visibleConversations(user.ID, team.ID)
		if err != nil {
			return fail(err, "Unable to get conversations")
		}
		writeJSON(w, convs)
		return nil
	}
}

// ReconnectConversations compares the client's stamps with the team's
// visible conversations. Conversations changed after their stamp or not
// stamped at all are sent back whole. A stamp is reported removed only
// when its conversation is gone or no longer visible, so stamps of other
// teams are left alone.
func (s *Server) ReconnectConversations() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		team, serr := s.memberTeam(r, user.ID)
		if serr != nil {
			return serr
		}
		var req stampsRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}

		current, err := s.visibleConversations(user.ID, team.ID)
		if err != nil {
			return fail(err, "Unable to get conversations")
		}
		teams, err := s.db.GetTeamsForUser(user.ID)
		if err != nil {
			return fail(err, "Unable to get teams")
		}

		known := make(map[int64]sidesync.Stamp, len(req.Stamps))
		for _, st := range req.Stamps {
			known[st.ID] = st
		}

		delta := &sidesync.ConversationDelta{
			Changed: []*sidesync.Conversation{},
			Removed: []int64{},
			Teams:   teams,
		}
		seen := make(map[int64]bool, len(current))
		for _, c := range current {
			seen[c.ID] = true
			st, ok := known[c.ID]
			if !ok || c.UpdatedActionTime.After(st.UpdatedActionTime) {
				delta.Changed = append(delta.Changed, c)
			}
		}
		for _, st := range req.Stamps {
			if seen[st.ID] {
				continue
			}
			c, err := s.db.GetConversation(st.ID)
			switch {
			case errors.Is(err, sidesync.ErrNotFound):
				delta.Removed = append(delta.Removed, st.ID)
			case err != nil:
				return fail(err, "Unable to get conversation")
			case !c.Viewable(user.ID):
				delta.Removed = append(delta.Removed, st.ID)
			}
		}

		writeJSON(w, delta)
		return nil
	}
}

func (s *Server) ListThreads() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		team, serr := s.memberTeam(r, user.ID)
		if serr != nil {
			return serr
		}

		roots, err := s.db.GetThreadRoots(team.ID, user.ID)
		if err != nil {
			return fail(err, "Unable to get threads")
		}
		threads := make([]*sidesync.ThreadDetail, 0, len(roots))
		for _, root := range roots {
			d, err := s.threadDetail(user.ID, root)
			if err != nil {
				return fail(err, "Unable to get thread")
			}
			threads = append(threads, d)
		}
		writeJSON(w, threads)
		return nil
	}
}
