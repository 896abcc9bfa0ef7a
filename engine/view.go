package engine

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/state"
)

// Recovery marks a conversation selection made by the reconnect walk. The
// walk already fetched every missing message, so the selection commits
// those instead of fetching the latest page, and it leaves the first-unread
// marker alone because it no longer matches what the user saw.
type Recovery struct {
	Conversation int64
	Messages     []*sidesync.Message
	Pages        int

	// seq is the selection sequence when the walk started. A selection
	// made by the user since then wins over the recovery.
	seq uint64
}

// SelectConversation opens a conversation in the main pane. The user must
// be a member unless the conversation is public. The latest page of
// messages is fetched first so messages and view change together. A
// non-zero scrollTop is remembered for the conversation and a non-zero
// threadID opens that thread in the side pane.
func (e *Engine) SelectConversation(ctx context.Context, id int64, scrollTop float64, threadID int64) error {
	return e.selectConversation(ctx, id, scrollTop, threadID, nil)
}

func (e *Engine) selectConversation(ctx context.Context, id int64, scrollTop float64, threadID int64, rec *Recovery) error {
	var seq uint64
	if rec != nil {
		seq = rec.seq
	} else {
		seq = atomic.AddUint64(&e.selectSeq, 1)
	}

	conv, ok := e.store.Conversation(id)
	fetched := false
	if !ok {
		c, err := e.svc.Conversations.GetConversation(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "fetching conversation %d", id)
		}
		conv, fetched = c, true
	}
	if !conv.Viewable(e.creds.UserID()) {
		return errors.Wrapf(sidesync.ErrNotMember, "selecting conversation %d", id)
	}

	var page *sidesync.MessagePage
	if rec == nil {
		p, err := e.svc.Messages.ListMessages(ctx, sidesync.MessageQuery{Channel: id, Limit: e.cfg.PageSize})
		if err != nil {
			return errors.Wrapf(err, "fetching messages of %d", id)
		}
		page = p
	}

	var thread *sidesync.ThreadDetail
	if threadID != 0 {
		d, err := e.svc.Threads.GetThread(ctx, threadID)
		if err != nil {
			return errors.Wrapf(err, "fetching thread %d", threadID)
		}
		thread = d
	}

	superseded := false
	e.store.Update(func(tx *state.Tx) {
		if fetched {
			tx.UpsertConversation(conv)
		}
		if rec != nil {
			tx.MergeMessages(rec.Messages)
		} else {
			tx.MergeMessages(page.Messages)
		}

		if atomic.LoadUint64(&e.selectSeq) != seq {
			superseded = true
			return
		}

		if scrollTop > 0 {
			tx.SetScrollTop(id, scrollTop)
		}
		if rec == nil && page.FirstUnread != 0 {
			tx.SetNewMessageID(id, page.FirstUnread)
		}

		v := tx.View()
		if v.SelectedConversationID != id && v.Secondary == sidesync.ThreadDetailView {
			tx.CloseThread()
			v = tx.View()
		}
		v.Primary = sidesync.ConversationDetail
		v.SelectedConversationID = id
		if conv.Team != 0 {
			v.SelectedTeam = conv.Team
		}
		if thread != nil {
			tx.SetThread(thread)
			v.Secondary = sidesync.ThreadDetailView
			v.SelectedThread = threadID
		}
		tx.SetView(v)
	})

	if superseded {
		e.log.WithField("conversation", id).Debug("selection superseded")
	}
	return nil
}

// SelectTeam switches to a team. The view is reset first so nothing from
// the previous team stays on screen, then the conversation is resolved:
// the one with channelSlug, the team's default channel, or the first
// conversation the user is a member of.
func (e *Engine) SelectTeam(ctx context.Context, teamID int64, channelSlug string, threadID int64) error {
	team, ok := e.store.Team(teamID)
	if !ok {
		return errors.Wrapf(sidesync.ErrUnknownTeam, "selecting team %d", teamID)
	}

	atomic.AddUint64(&e.selectSeq, 1)
	e.store.Update(func(tx *state.Tx) {
		tx.SetView(sidesync.View{SelectedTeam: teamID})
		tx.ResetView()
	})

	convs := e.store.TeamConversations(teamID)
	if len(convs) == 0 {
		fetched, err := e.svc.Conversations.ListConversations(ctx, teamID)
		if err != nil {
			return errors.Wrapf(err, "fetching conversations of team %d", teamID)
		}
		e.store.Update(func(tx *state.Tx) { tx.MergeConversations(fetched) })
		convs = e.store.TeamConversations(teamID)
	}

	target := e.resolveConversation(team, convs, channelSlug)
	if target == 0 {
		return nil
	}
	return e.SelectConversation(ctx, target, 0, threadID)
}

func (e *Engine) resolveConversation(team *sidesync.Team, convs []*sidesync.Conversation, slug string) int64 {
	self := e.creds.UserID()
	if slug != "" {
		for _, c := range convs {
			if c.Slug == slug && c.Viewable(self) {
				return c.ID
			}
		}
	}
	if team.DefaultChannel != 0 {
		for _, c := range convs {
			if c.ID == team.DefaultChannel && c.Viewable(self) {
				return c.ID
			}
		}
	}
	for _, c := range convs {
		if c.HasMember(self) {
			return c.ID
		}
	}
	return 0
}

// UpdateSecondaryView changes the side pane. Opening a thread needs the
// root message id and commits only once the thread is fetched. Every other
// pane closes the open thread and resets the new-thread count.
func (e *Engine) UpdateSecondaryView(ctx context.Context, view sidesync.SecondaryView, messageID int64) error {
	switch view {
	case sidesync.ThreadDetailView:
		if messageID == 0 {
			return sidesync.ErrMissingThread
		}
		d, err := e.svc.Threads.GetThread(ctx, messageID)
		if err != nil {
			return errors.Wrapf(err, "fetching thread %d", messageID)
		}
		e.store.Update(func(tx *state.Tx) {
			tx.SetThread(d)
			v := tx.View()
			v.Secondary = sidesync.ThreadDetailView
			v.SelectedThread = messageID
			tx.SetView(v)
		})
		return nil

	case sidesync.ThreadList:
		teamID := e.store.View().SelectedTeam
		threads, err := e.svc.Threads.ListThreads(ctx, teamID)
		if err != nil {
			return errors.Wrapf(err, "fetching threads of team %d", teamID)
		}
		e.store.Update(func(tx *state.Tx) {
			tx.SetThreadList(teamID, threads)
			e.leaveThread(tx, sidesync.ThreadList)
		})
		return nil

	default:
		e.store.Update(func(tx *state.Tx) { e.leaveThread(tx, view) })
		return nil
	}
}

func (e *Engine) leaveThread(tx *state.Tx, view sidesync.SecondaryView) {
	tx.CloseThread()
	v := tx.View()
	tx.ResetNewThreads(v.SelectedTeam)
	v.Secondary = view
	tx.SetView(v)
}

// OpenCreateConversation shows the conversation creation form.
func (e *Engine) OpenCreateConversation() {
	atomic.AddUint64(&e.selectSeq, 1)
	e.store.Update(func(tx *state.Tx) {
		v := tx.View()
		v.Primary = sidesync.CreateConversation
		tx.SetView(v)
	})
}
