package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/realtime"
	"github.com/tmitchel/sidesync/state"
)

const eventTimeout = 30 * time.Second

var _ realtime.Handler = (*Engine)(nil)

// HandleEvent applies one realtime event to the store. Applying the same
// event twice leaves the store as applying it once.
func (e *Engine) HandleEvent(ev realtime.Event) {
	self := e.creds.UserID()

	switch ev := ev.(type) {
	case realtime.MessageCreated:
		e.store.Update(func(tx *state.Tx) { tx.UpsertMessage(ev.Message) })
	case realtime.MessageUpdated:
		e.store.Update(func(tx *state.Tx) { tx.UpsertMessage(ev.Message) })
	case realtime.MessageDeleted:
		e.store.Update(func(tx *state.Tx) { tx.DeleteMessage(ev.ID) })
	case realtime.ReactionUpdated:
		e.store.Update(func(tx *state.Tx) { tx.SetReactions(ev.MessageID, ev.Reactions) })

	case realtime.ConversationCreated:
		e.store.Update(func(tx *state.Tx) { tx.UpsertConversation(ev.Conversation) })
	case realtime.ConversationUpdated:
		e.store.Update(func(tx *state.Tx) { tx.UpsertConversation(ev.Conversation) })
	case realtime.ConversationDeleted:
		e.store.Update(func(tx *state.Tx) { tx.DeleteConversation(ev.ID) })

	case realtime.MembersJoined:
		e.membersJoined(ev.Membership)
	case realtime.MembersLeft:
		e.store.Update(func(tx *state.Tx) {
			if containsID(ev.Users, self) {
				tx.DeleteConversation(ev.Target)
				return
			}
			tx.RemoveMembers(ev.Target, ev.Users...)
		})
	case realtime.AdminsPromoted:
		e.store.Update(func(tx *state.Tx) { tx.PromoteAdmins(ev.Target, ev.Users...) })
	case realtime.AdminsDemoted:
		e.store.Update(func(tx *state.Tx) { tx.DemoteAdmins(ev.Target, ev.Users...) })

	case realtime.TeamCreated:
		e.store.Update(func(tx *state.Tx) { tx.UpsertTeam(ev.Team) })
	case realtime.TeamUpdated:
		e.store.Update(func(tx *state.Tx) { tx.UpsertTeam(ev.Team) })
	case realtime.TeamLeft:
		e.leaveTeam(ev.ID)
	case realtime.TeamMembersJoined:
		e.store.Update(func(tx *state.Tx) { tx.AddTeamMembers(ev.Target, ev.Users...) })
	case realtime.TeamMembersLeft:
		if containsID(ev.Users, self) {
			e.leaveTeam(ev.Target)
			return
		}
		e.store.Update(func(tx *state.Tx) { tx.RemoveTeamMembers(ev.Target, ev.Users...) })
	case realtime.TeamAdminsPromoted:
		e.store.Update(func(tx *state.Tx) { tx.PromoteTeamAdmins(ev.Target, ev.Users...) })
	case realtime.TeamAdminsDemoted:
		e.store.Update(func(tx *state.Tx) { tx.DemoteTeamAdmins(ev.Target, ev.Users...) })

	case realtime.ChannelNotificationUpdated:
		n := ev.ChannelNotification
		e.store.Update(func(tx *state.Tx) { tx.MergeChannelNotifications([]*sidesync.ChannelNotification{&n}) })
	case realtime.ThreadNotificationUpdated:
		n := ev.ThreadNotification
		e.store.Update(func(tx *state.Tx) { tx.UpsertThreadNotification(&n) })
	case realtime.PresenceChanged:
		p := ev.Presence
		e.store.Update(func(tx *state.Tx) { tx.SetPresence([]*sidesync.Presence{&p}) })

	case realtime.SubscriptionSucceeded:
		if ev.Channel != realtime.PresenceChannel || len(ev.Members) == 0 {
			return
		}
		online := make([]*sidesync.Presence, len(ev.Members))
		for i, id := range ev.Members {
			online[i] = &sidesync.Presence{UserID: id, Online: true}
		}
		e.store.Update(func(tx *state.Tx) { tx.SetPresence(online) })
	case realtime.SubscriptionFailed:
		e.log.WithFields(logrus.Fields{
			"event":   "subscription_failed",
			"channel": ev.Channel,
			"status":  ev.Status,
		}).Error(ev.Reason)

	default:
		e.log.WithField("kind", ev.Kind()).Warn("unhandled event")
	}
}

// membersJoined adds the members. When the user joined a public
// conversation on their own the view follows them into it.
func (e *Engine) membersJoined(m realtime.Membership) {
	self := e.creds.UserID()
	e.store.Update(func(tx *state.Tx) { tx.AddMembers(m.Target, m.Users...) })
	if !containsID(m.Users, self) {
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, eventTimeout)
	defer cancel()

	conv, ok := e.store.Conversation(m.Target)
	if !ok {
		c, err := e.svc.Conversations.GetConversation(ctx, m.Target)
		if err != nil {
			e.log.WithError(err).WithField("conversation", m.Target).Error("fetching joined conversation")
			return
		}
		e.store.Update(func(tx *state.Tx) { tx.UpsertConversation(c) })
		conv = c
	}

	if m.Initiator != self || conv.Type != sidesync.ConversationPublic {
		return
	}
	if err := e.SelectConversation(ctx, conv.ID, 0, 0); err != nil {
		e.log.WithError(err).WithField("conversation", conv.ID).Error("opening joined conversation")
	}
}

// leaveTeam drops a team the user left. If it was selected the first
// remaining team takes its place.
func (e *Engine) leaveTeam(teamID int64) {
	wasSelected := e.store.View().SelectedTeam == teamID
	e.store.Update(func(tx *state.Tx) { tx.DeleteTeam(teamID) })
	if !wasSelected {
		return
	}

	teams := e.store.Teams()
	if len(teams) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(e.ctx, eventTimeout)
	defer cancel()
	if err := e.SelectTeam(ctx, teams[0].ID, "", 0); err != nil {
		e.log.WithError(err).WithField("team", teams[0].ID).Error("selecting fallback team")
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
