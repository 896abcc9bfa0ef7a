package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/state"
)

// Reconnect recovers everything that changed while the connection was
// down. The team list and team notifications are required: if they cannot
// be fetched the network is reported degraded and the error is returned.
// Every later step is best effort and only logs its failure.
func (e *Engine) Reconnect(ctx context.Context) error {
	atomic.StoreInt32(&e.recovering, 1)
	defer atomic.StoreInt32(&e.recovering, 0)
	log := e.log.WithField("event", "reconnect")

	if e.cfg.DeviceToken != "" {
		err := e.retry(ctx, func(ctx context.Context) error {
			return e.svc.Users.RegisterDevice(ctx, e.cfg.DeviceToken)
		})
		if err != nil {
			log.WithError(err).Warn("re-registering push device")
		}
	}

	var summary *sidesync.Summary
	err := e.retry(ctx, func(ctx context.Context) (err error) {
		summary, err = e.svc.Notifications.Summary(ctx)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("refreshing notification summary")
	} else {
		e.store.Update(func(tx *state.Tx) { tx.SetSummary(*summary) })
	}

	var teams []*sidesync.Team
	err = e.retry(ctx, func(ctx context.Context) (err error) {
		teams, err = e.svc.Teams.ListTeams(ctx)
		return err
	})
	if err != nil {
		e.network.SetDegraded(true)
		return errors.Wrap(err, "refreshing teams")
	}

	var teamNotes []*sidesync.TeamNotification
	err = e.retry(ctx, func(ctx context.Context) (err error) {
		teamNotes, err = e.svc.Teams.TeamNotifications(ctx)
		return err
	})
	if err != nil {
		e.network.SetDegraded(true)
		return errors.Wrap(err, "refreshing team notifications")
	}
	e.network.SetDegraded(false)

	selected := e.store.View().SelectedTeam
	e.store.Update(func(tx *state.Tx) {
		tx.ReplaceTeams(teams)
		tx.ReplaceTeamNotifications(teamNotes)
	})

	if _, ok := e.store.Team(selected); !ok {
		remaining := e.store.Teams()
		if len(remaining) == 0 {
			return nil
		}
		log.WithFields(logrus.Fields{"previous": selected, "next": remaining[0].ID}).Info("selected team is gone")
		return e.SelectTeam(ctx, remaining[0].ID, "", 0)
	}

	e.backfillConversations(ctx, log, selected)
	e.backfillNotifications(ctx, log)
	e.backfillMessages(ctx, log)
	e.backfillThreadNotification(ctx, log, selected)

	view := e.store.View()
	if view.SelectedConversationID != 0 {
		if err := e.walkConversation(ctx, view.SelectedConversationID); err != nil {
			log.WithError(err).WithField("conversation", view.SelectedConversationID).Warn("backfilling selected conversation")
		}
	}
	e.refreshSecondary(ctx, log, view)
	e.refreshPresence(ctx, log, view.SelectedConversationID)
	return nil
}

func (e *Engine) backfillConversations(ctx context.Context, log logrus.FieldLogger, teamID int64) {
	stamps := e.store.ConversationStamps()
	var delta *sidesync.ConversationDelta
	err := e.retry(ctx, func(ctx context.Context) (err error) {
		delta, err = e.svc.Conversations.ReconnectConversations(ctx, teamID, stamps)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("backfilling conversations")
		return
	}

	e.store.Update(func(tx *state.Tx) {
		if len(delta.Teams) > 0 {
			tx.MergeTeams(delta.Teams)
		}
		tx.MergeConversations(delta.Changed)
		for _, id := range delta.Removed {
			tx.DeleteConversation(id)
		}
	})
}

func (e *Engine) backfillNotifications(ctx context.Context, log logrus.FieldLogger) {
	stamps := e.store.ConversationStamps()
	var notes []*sidesync.ChannelNotification
	err := e.retry(ctx, func(ctx context.Context) (err error) {
		notes, err = e.svc.Notifications.ReconnectNotifications(ctx, stamps)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("backfilling channel notifications")
		return
	}
	e.store.Update(func(tx *state.Tx) { tx.MergeChannelNotifications(notes) })
}

func (e *Engine) backfillMessages(ctx context.Context, log logrus.FieldLogger) {
	stamps := e.store.MessageStamps()
	var delta *sidesync.MessageDelta
	err := e.retry(ctx, func(ctx context.Context) (err error) {
		delta, err = e.svc.Messages.ReconnectMessages(ctx, stamps)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("backfilling messages")
		return
	}

	e.store.Update(func(tx *state.Tx) {
		tx.MergeMessages(delta.Changed)
		for _, id := range delta.Removed {
			tx.DeleteMessage(id)
		}
	})
}

func (e *Engine) backfillThreadNotification(ctx context.Context, log logrus.FieldLogger, teamID int64) {
	var n *sidesync.ThreadNotification
	err := e.retry(ctx, func(ctx context.Context) (err error) {
		n, err = e.svc.Threads.ThreadNotification(ctx, teamID)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("refreshing thread notification")
		return
	}
	e.store.Update(func(tx *state.Tx) { tx.UpsertThreadNotification(n) })
}

// walkConversation pages forward from the newest local message until the
// backend reports no further page, then reselects the conversation with
// everything that was collected.
func (e *Engine) walkConversation(ctx context.Context, convID int64) error {
	rec := &Recovery{Conversation: convID, seq: atomic.LoadUint64(&e.selectSeq)}

	q := sidesync.MessageQuery{Channel: convID, Limit: e.cfg.PageSize}
	if last, ok := e.store.LastMessage(convID); ok {
		q.After = last.Created
	}

	for {
		var page *sidesync.MessagePage
		err := e.retry(ctx, func(ctx context.Context) (err error) {
			page, err = e.svc.Messages.ListMessages(ctx, q)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "fetching page %d", rec.Pages+1)
		}
		rec.Pages++
		rec.Messages = append(rec.Messages, page.Messages...)

		if page.Next == "" || len(page.Messages) == 0 {
			break
		}
		q = sidesync.MessageQuery{Channel: convID, Limit: e.cfg.PageSize, Cursor: page.Next}
	}

	e.log.WithFields(logrus.Fields{
		"conversation": convID,
		"pages":        rec.Pages,
		"messages":     len(rec.Messages),
	}).Debug("conversation backfilled")

	scrollTop := 0.0
	if c, ok := e.store.Conversation(convID); ok {
		scrollTop = c.ScrollTop
	}
	return e.selectConversation(ctx, convID, scrollTop, 0, rec)
}

func (e *Engine) refreshSecondary(ctx context.Context, log logrus.FieldLogger, view sidesync.View) {
	switch view.Secondary {
	case sidesync.ThreadList:
		var threads []*sidesync.ThreadDetail
		err := e.retry(ctx, func(ctx context.Context) (err error) {
			threads, err = e.svc.Threads.ListThreads(ctx, view.SelectedTeam)
			return err
		})
		if err != nil {
			log.WithError(err).Warn("refreshing thread list")
			return
		}
		e.store.Update(func(tx *state.Tx) { tx.SetThreadList(view.SelectedTeam, threads) })

	case sidesync.ThreadDetailView:
		if view.SelectedThread == 0 {
			return
		}
		var d *sidesync.ThreadDetail
		err := e.retry(ctx, func(ctx context.Context) (err error) {
			d, err = e.svc.Threads.GetThread(ctx, view.SelectedThread)
			return err
		})
		if err != nil {
			log.WithError(err).Warn("refreshing thread")
			return
		}
		e.store.Update(func(tx *state.Tx) {
			if tx.View().SelectedThread == view.SelectedThread {
				tx.SetThread(d)
			}
		})
	}
}

// refreshPresence asks for the status of everyone who posted in the
// selected conversation and every member of the user's direct messages.
// Batches are fetched concurrently.
func (e *Engine) refreshPresence(ctx context.Context, log logrus.FieldLogger, convID int64) {
	ids := e.presenceTargets(convID)
	if len(ids) == 0 {
		return
	}

	var (
		mu        sync.Mutex
		presences []*sidesync.Presence
	)
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += e.cfg.PresenceBatch {
		end := start + e.cfg.PresenceBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		g.Go(func() error {
			ps, err := e.svc.Users.Presence(gctx, batch)
			if err != nil {
				return errors.Wrapf(err, "presence of %d users", len(batch))
			}
			mu.Lock()
			presences = append(presences, ps...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("refreshing presence")
	}
	if len(presences) > 0 {
		e.store.Update(func(tx *state.Tx) { tx.SetPresence(presences) })
	}
}

func (e *Engine) presenceTargets(convID int64) []int64 {
	self := e.creds.UserID()
	seen := map[int64]bool{self: true}
	var ids []int64
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if convID != 0 {
		for _, m := range e.store.Messages(convID) {
			add(m.Creator)
		}
	}
	for _, c := range e.store.DMGs() {
		for _, id := range c.Members {
			add(id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reconnectTimeout bounds a recovery started by a state change.
const reconnectTimeout = 2 * time.Minute
