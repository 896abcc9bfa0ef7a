package server

import (
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/realtime"
	"github.com/tmitchel/sidesync/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListMessages pages through the top-level messages of a channel. With
// after set it returns the messages created after it, oldest first, and a
// next URL while more remain. Without it the latest page is returned with
// the first message the caller has not read.
func (s *Server) ListMessages() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}

		q := r.URL.Query()
		channel, err := strconv.ParseInt(q.Get("channel"), 10, 64)
		if err != nil {
			return &serverError{err, "Unable to get channel from query", http.StatusBadRequest}
		}
		limit := defaultPageSize
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				return &serverError{errors.Errorf("bad limit %q", raw), "Unable to get limit from query", http.StatusBadRequest}
			}
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		c, serr := s.viewable(user.ID, channel)
		if serr != nil {
			return serr
		}

		page := &sidesync.MessagePage{Messages: []*sidesync.Message{}}
		if raw := q.Get("after"); raw != "" {
			after, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return &serverError{err, "Unable to get after from query", http.StatusBadRequest}
			}
			msgs, err := s.db.GetMessages(store.MessageFilter{Channel: c.ID, After: after, Limit: limit + 1})
			if err != nil {
				return fail(err, "Unable to get messages")
			}
			if len(msgs) > limit {
				msgs = msgs[:limit]
				page.Next = nextPage(c.ID, msgs[len(msgs)-1].Created, limit)
			}
			page.Messages = append(page.Messages, msgs...)
			writeJSON(w, page)
			return nil
		}

		msgs, err := s.db.GetMessages(store.MessageFilter{Channel: c.ID, Limit: limit, Latest: true})
		if err != nil {
			return fail(err, "Unable to get messages")
		}
		last, err := s.db.LastRead(user.ID, c.ID, false)
		if err != nil {
			return fail(err, "Unable to get read position")
		}
		for _, m := range msgs {
			if m.ID > last && m.Creator != user.ID {
				page.FirstUnread = m.ID
				break
			}
		}
		page.Messages = append(page.Messages, msgs...)
		writeJSON(w, page)
		return nil
	}
}

func nextPage(channel int64, after time.Time, limit int) string {
	v := url.Values{}
	v.Set("channel", strconv.FormatInt(channel, 10))
	v.Set("after", after.UTC().Format(time.RFC3339Nano))
	v.Set("limit", strconv.Itoa(limit))
	return "/api/messages?" + v.Encode()
}

// CreateMessage stores a message from the caller and publishes it to the
// conversation. The client's temp id is kept so the sender can match the
// echo with its pending copy.
func (s *Server) CreateMessage() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		var m sidesync.Message
		if serr := decode(r, &m); serr != nil {
			return serr
		}

		c, serr := s.viewable(user.ID, m.Channel)
		if serr != nil {
			return serr
		}
		if m.Parent != 0 {
			root, err := s.db.GetMessage(m.Parent)
			if err != nil {
				return fail(err, "Unable to get thread")
			}
			if root.Channel != m.Channel || root.IsReply() {
				return &serverError{errors.Errorf("message %d cannot be replied to in %d", root.ID, m.Channel), "Invalid thread", http.StatusBadRequest}
			}
		}

		now := time.Now().UTC()
		m.ID = 0
		m.Creator = user.ID
		m.Created = now
		m.UpdatedActionTime = now
		m.Reactions = nil
		m.IsPinned = false
		if len(m.Mentions) == 0 {
			m.Mentions = sidesync.ExtractMentions(m.Content)
		}

		created, err := s.db.CreateMessage(&m)
		if err != nil {
			return fail(err, "Unable to create message")
		}

		s.hub.publish(recipients(c, user.ID), realtime.MessageCreated{Message: created})
		s.notifyUnread(r, c, created)
		writeJSON(w, created)
		return nil
	}
}

// notifyUnread pushes the new read state to everyone a message is unread
// for. Failures are logged since the message itself was stored.
func (s *Server) notifyUnread(r *http.Request, c *sidesync.Conversation, m *sidesync.Message) {
	log := s.logger(r).WithField("message", m.ID)

	if !m.IsReply() {
		for _, uid := range c.Members {
			if uid == m.Creator {
				continue
			}
			n, err := s.channelNotification(uid, c)
			if err != nil {
				log.WithError(err).Warn("computing channel notification")
				continue
			}
			s.hub.publish([]int64{uid}, realtime.ChannelNotificationUpdated{ChannelNotification: *n})
		}
		return
	}

	root, err := s.db.GetMessage(m.Parent)
	if err != nil {
		log.WithError(err).Warn("loading thread root")
		return
	}
	d, err := s.threadDetail(m.Creator, root)
	if err != nil {
		log.WithError(err).Warn("loading thread")
		return
	}
	for _, uid := range d.Participants {
		if uid == m.Creator {
			continue
		}
		n, err := s.threadNotification(uid, c.Team)
		if err != nil {
			log.WithError(err).Warn("computing thread notification")
			continue
		}
		s.hub.publish([]int64{uid}, realtime.ThreadNotificationUpdated{ThreadNotification: *n})
	}
}

// UpdateMessage edits one of the caller's messages.
func (s *Server) UpdateMessage() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}
		var m sidesync.Message
		if serr := decode(r, &m); serr != nil {
			return serr
		}

		existing, serr := s.ownMessage(user.ID, id)
		if serr != nil {
			return serr
		}
		c, serr := s.viewable(user.ID, existing.Channel)
		if serr != nil {
			return serr
		}

		existing.Content = m.Content
		existing.Mentions = m.Mentions
		if len(existing.Mentions) == 0 {
			existing.Mentions = sidesync.ExtractMentions(m.Content)
		}
		existing.Reactions = m.Reactions
		existing.IsPinned = m.IsPinned
		existing.UpdatedActionTime = time.Now().UTC()

		updated, err := s.db.UpdateMessage(existing)
		if err != nil {
			return fail(err, "Unable to update message")
		}

		s.hub.publish(recipients(c, user.ID), realtime.MessageUpdated{Message: updated})
		writeJSON(w, updated)
		return nil
	}
}

// DeleteMessage removes one of the caller's messages.
func (s *Server) DeleteMessage() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}

		existing, serr := s.ownMessage(user.ID, id)
		if serr != nil {
			return serr
		}
		c, err := s.db.GetConversation(existing.Channel)
		if err != nil {
			return fail(err, "Unable to get conversation")
		}

		if _, err := s.db.DeleteMessage(id, time.Now().UTC()); err != nil {
			return fail(err, "Unable to delete message")
		}

		s.hub.publish(recipients(c, user.ID), realtime.MessageDeleted{
			ID:      existing.ID,
			Channel: existing.Channel,
			Parent:  existing.Parent,
		})
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

func (s *Server) ownMessage(userID, id int64) (*sidesync.Message, *serverError) {
	m, err := s.db.GetMessage(id)
	if err != nil {
		return nil, fail(err, "Unable to get message")
	}
	if m.Creator != userID {
		return nil, &serverError{errors.Errorf("message %d belongs to %d", id, m.Creator), "Only the author can change a message", http.StatusForbidden}
	}
	return m, nil
}

// ReconnectMessages answers, for every stamped conversation, the messages
// changed after the stamp and the ids removed after it. A zero stamp asks
// for everything.
func (s *Server) ReconnectMessages() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		var req stampsRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}

		var (
			mu    sync.Mutex
			delta = &sidesync.MessageDelta{Changed: []*sidesync.Message{}, Removed: []int64{}}
		)
		g, _ := errgroup.WithContext(r.Context())
		g.SetLimit(fanOut)
		for _, st := range req.Stamps {
			st := st
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

				changed, err := s.db.GetMessages(store.MessageFilter{Channel: c.ID, Changed: true, ChangedSince: st.UpdatedActionTime})
				if err != nil {
					return err
				}
				removed, err := s.db.GetRemovedMessages(c.ID, st.UpdatedActionTime)
				if err != nil {
					return err
				}

				mu.Lock()
				delta.Changed = append(delta.Changed, changed...)
				delta.Removed = append(delta.Removed, removed...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fail(err, "Unable to get changed messages")
		}

		writeJSON(w, delta)
		return nil
	}
}

// GetThread returns a thread by its root. A reply id resolves to the
// thread it belongs to.
func (s *Server) GetThread() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		id, serr := idParam(r)
		if serr != nil {
			return serr
		}

		root, err := s.db.GetMessage(id)
		if err != nil {
			return fail(err, "Unable to get thread")
		}
		if root.IsReply() {
			if root, err = s.db.GetMessage(root.Parent); err != nil {
				return fail(err, "Unable to get thread")
			}
		}
		if _, serr := s.viewable(user.ID, root.Channel); serr != nil {
			return serr
		}

		d, err := s.threadDetail(user.ID, root)
		if err != nil {
			return fail(err, "Unable to get thread")
		}
		writeJSON(w, d)
		return nil
	}
}

func (s *Server) threadDetail(userID int64, root *sidesync.Message) (*sidesync.ThreadDetail, error) {
	replies, unread, _, _, err := s.threadUnread(userID, root)
	if err != nil {
		return nil, err
	}

	d := &sidesync.ThreadDetail{
		Root:         root,
		Replies:      replies,
		Participants: []int64{root.Creator},
		Unread:       unread,
	}
	if d.Replies == nil {
		d.Replies = []*sidesync.Message{}
	}
	for _, m := range replies {
		if !containsID(d.Participants, m.Creator) {
			d.Participants = append(d.Participants, m.Creator)
		}
	}
	return d, nil
}

// recipients are the members of c plus the acting user, who may be
// reading a public channel without having joined it.
func recipients(c *sidesync.Conversation, actor int64) []int64 {
	if containsID(c.Members, actor) {
		return c.Members
	}
	return append(append([]int64{}, c.Members...), actor)
}
