// Package realtime speaks the pub/sub wire protocol: it reassembles chunked
// events, decodes envelopes into typed events and keeps a websocket
// connection to the backend alive.
package realtime

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/tmitchel/sidesync"
)

// ChunkedPrefix marks the fragmented variant of an event.
const ChunkedPrefix = "chunked-"

// Channel names every user subscribes to.
const (
	PresenceChannel    = "presence-global"
	privateChannelBase = "private-user-"
)

// SubscribeEvent is sent by clients to join a channel.
const SubscribeEvent = "subscribe"

// Envelope is one frame on the wire.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Chunk is one fragment of an event that was too large for a single frame.
type Chunk struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Chunk string `json:"chunk"`
	Final bool   `json:"final"`
}

// PrivateChannel is the channel that carries the user's own events.
func PrivateChannel(userID int64) string {
	return privateChannelBase + strconv.FormatInt(userID, 10)
}

// Kind enumerates every event the engine understands.
type Kind int

// event kinds
const (
	KindUnknown Kind = iota
	KindMessageCreated
	KindMessageUpdated
	KindMessageDeleted
	KindReactionUpdated
	KindConversationCreated
	KindConversationUpdated
	KindConversationDeleted
	KindMembersJoined
	KindMembersLeft
	KindAdminsPromoted
	KindAdminsDemoted
	KindTeamCreated
	KindTeamUpdated
	KindTeamLeft
	KindTeamMembersJoined
	KindTeamMembersLeft
	KindTeamAdminsPromoted
	KindTeamAdminsDemoted
	KindChannelNotificationUpdated
	KindThreadNotificationUpdated
	KindPresenceChanged
	KindSubscriptionSucceeded
	KindSubscriptionFailed
)

var kindNames = map[Kind]string{
	KindMessageCreated:             "message_created",
	KindMessageUpdated:             "message_updated",
	KindMessageDeleted:             "message_deleted",
	KindReactionUpdated:            "reaction_updated",
	KindConversationCreated:        "conversation_created",
	KindConversationUpdated:        "conversation_updated",
	KindConversationDeleted:        "conversation_deleted",
	KindMembersJoined:              "members_joined",
	KindMembersLeft:                "members_left",
	KindAdminsPromoted:             "admins_promoted",
	KindAdminsDemoted:              "admins_demoted",
	KindTeamCreated:                "team_created",
	KindTeamUpdated:                "team_updated",
	KindTeamLeft:                   "team_left",
	KindTeamMembersJoined:          "team_members_joined",
	KindTeamMembersLeft:            "team_members_left",
	KindTeamAdminsPromoted:         "team_admins_promoted",
	KindTeamAdminsDemoted:          "team_admins_demoted",
	KindChannelNotificationUpdated: "channel_notification_updated",
	KindThreadNotificationUpdated:  "thread_notification_updated",
	KindPresenceChanged:            "presence_changed",
	KindSubscriptionSucceeded:      "subscription_succeeded",
	KindSubscriptionFailed:         "subscription_failed",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind looks up the kind of a wire event name.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// IsChunked reports whether the event name is the fragmented variant and
// returns the name of the logical event.
func IsChunked(name string) (string, bool) {
	if !strings.HasPrefix(name, ChunkedPrefix) {
		return name, false
	}
	return strings.TrimPrefix(name, ChunkedPrefix), true
}

// Event is a decoded realtime event. The concrete types below are the only
// implementations.
type Event interface {
	Kind() Kind
}

// MessageCreated carries a new confirmed message.
type MessageCreated struct{ Message *sidesync.Message }

// MessageUpdated carries the new version of an edited message.
type MessageUpdated struct{ Message *sidesync.Message }

// MessageDeleted identifies a removed message.
type MessageDeleted struct {
	ID      int64 `json:"id"`
	Channel int64 `json:"channel"`
	Parent  int64 `json:"parent,omitempty"`
}

// ReactionUpdated carries the full reaction list of a message.
type ReactionUpdated struct {
	MessageID int64               `json:"message_id"`
	Reactions []sidesync.Reaction `json:"reactions"`
}

// ConversationCreated carries a conversation the user can now see.
type ConversationCreated struct{ Conversation *sidesync.Conversation }

// ConversationUpdated carries the new version of a conversation.
type ConversationUpdated struct{ Conversation *sidesync.Conversation }

// ConversationDeleted identifies a removed conversation.
type ConversationDeleted struct {
	ID int64 `json:"id"`
}

// Membership lists users added to or removed from a conversation or team.
// Initiator is the user that caused the change.
type Membership struct {
	Target    int64   `json:"target"`
	Users     []int64 `json:"users"`
	Initiator int64   `json:"initiator,omitempty"`
}

// MembersJoined adds conversation members.
type MembersJoined struct{ Membership }

// MembersLeft removes conversation members.
type MembersLeft struct{ Membership }

// AdminsPromoted adds conversation admins.
type AdminsPromoted struct{ Membership }

// AdminsDemoted removes conversation admins.
type AdminsDemoted struct{ Membership }

// TeamCreated carries a team the user joined.
type TeamCreated struct{ Team *sidesync.Team }

// TeamUpdated carries the new version of a team.
type TeamUpdated struct{ Team *sidesync.Team }

// TeamLeft identifies a team the user is no longer part of.
type TeamLeft struct {
	ID int64 `json:"id"`
}

// TeamMembersJoined adds team members.
type TeamMembersJoined struct{ Membership }

// TeamMembersLeft removes team members.
type TeamMembersLeft struct{ Membership }

// TeamAdminsPromoted adds team admins.
type TeamAdminsPromoted struct{ Membership }

// TeamAdminsDemoted removes team admins.
type TeamAdminsDemoted struct{ Membership }

// ChannelNotificationUpdated carries the read state of one conversation.
type ChannelNotificationUpdated struct{ sidesync.ChannelNotification }

// ThreadNotificationUpdated carries the thread read state of one team.
type ThreadNotificationUpdated struct{ sidesync.ThreadNotification }

// PresenceChanged reports a user going online or offline.
type PresenceChanged struct{ sidesync.Presence }

// SubscriptionSucceeded confirms a channel subscription. For the presence
// channel Members lists the users online right now.
type SubscriptionSucceeded struct {
	Channel string  `json:"-"`
	Members []int64 `json:"members,omitempty"`
}

// SubscriptionFailed reports a rejected channel subscription.
type SubscriptionFailed struct {
	Channel string `json:"-"`
	Status  int    `json:"status"`
	Reason  string `json:"reason"`
}

func (MessageCreated) Kind() Kind             { return KindMessageCreated }
func (MessageUpdated) Kind() Kind             { return KindMessageUpdated }
func (MessageDeleted) Kind() Kind             { return KindMessageDeleted }
func (ReactionUpdated) Kind() Kind            { return KindReactionUpdated }
func (ConversationCreated) Kind() Kind        { return KindConversationCreated }
func (ConversationUpdated) Kind() Kind        { return KindConversationUpdated }
func (ConversationDeleted) Kind() Kind        { return KindConversationDeleted }
func (MembersJoined) Kind() Kind              { return KindMembersJoined }
func (MembersLeft) Kind() Kind                { return KindMembersLeft }
func (AdminsPromoted) Kind() Kind             { return KindAdminsPromoted }
func (AdminsDemoted) Kind() Kind              { return KindAdminsDemoted }
func (TeamCreated) Kind() Kind                { return KindTeamCreated }
func (TeamUpdated) Kind() Kind                { return KindTeamUpdated }
func (TeamLeft) Kind() Kind                   { return KindTeamLeft }
func (TeamMembersJoined) Kind() Kind          { return KindTeamMembersJoined }
func (TeamMembersLeft) Kind() Kind            { return KindTeamMembersLeft }
func (TeamAdminsPromoted) Kind() Kind         { return KindTeamAdminsPromoted }
func (TeamAdminsDemoted) Kind() Kind          { return KindTeamAdminsDemoted }
func (ChannelNotificationUpdated) Kind() Kind { return KindChannelNotificationUpdated }
func (ThreadNotificationUpdated) Kind() Kind  { return KindThreadNotificationUpdated }
func (PresenceChanged) Kind() Kind            { return KindPresenceChanged }
func (SubscriptionSucceeded) Kind() Kind      { return KindSubscriptionSucceeded }
func (SubscriptionFailed) Kind() Kind         { return KindSubscriptionFailed }

// Decode turns the payload of a known event kind into its typed event.
func Decode(kind Kind, channel string, data []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch kind {
	case KindMessageCreated:
		var m sidesync.Message
		err = json.Unmarshal(data, &m)
		ev = MessageCreated{Message: &m}
	case KindMessageUpdated:
		var m sidesync.Message
		err = json.Unmarshal(data, &m)
		ev = MessageUpdated{Message: &m}
	case KindMessageDeleted:
		var e MessageDeleted
		err = json.Unmarshal(data, &e)
		ev = e
	case KindReactionUpdated:
		var e ReactionUpdated
		err = json.Unmarshal(data, &e)
		ev = e
	case KindConversationCreated:
		var c sidesync.Conversation
		err = json.Unmarshal(data, &c)
		ev = ConversationCreated{Conversation: &c}
	case KindConversationUpdated:
		var c sidesync.Conversation
		err = json.Unmarshal(data, &c)
		ev = ConversationUpdated{Conversation: &c}
	case KindConversationDeleted:
		var e ConversationDeleted
		err = json.Unmarshal(data, &e)
		ev = e
	case KindMembersJoined, KindMembersLeft, KindAdminsPromoted, KindAdminsDemoted,
		KindTeamMembersJoined, KindTeamMembersLeft, KindTeamAdminsPromoted, KindTeamAdminsDemoted:
		var m Membership
		err = json.Unmarshal(data, &m)
		ev = membershipEvent(kind, m)
	case KindTeamCreated:
		var t sidesync.Team
		err = json.Unmarshal(data, &t)
		ev = TeamCreated{Team: &t}
	case KindTeamUpdated:
		var t sidesync.Team
		err = json.Unmarshal(data, &t)
		ev = TeamUpdated{Team: &t}
	case KindTeamLeft:
		var e TeamLeft
		err = json.Unmarshal(data, &e)
		ev = e
	case KindChannelNotificationUpdated:
		var e ChannelNotificationUpdated
		err = json.Unmarshal(data, &e.ChannelNotification)
		ev = e
	case KindThreadNotificationUpdated:
		var e ThreadNotificationUpdated
		err = json.Unmarshal(data, &e.ThreadNotification)
		ev = e
	case KindPresenceChanged:
		var e PresenceChanged
		err = json.Unmarshal(data, &e.Presence)
		ev = e
	case KindSubscriptionSucceeded:
		e := SubscriptionSucceeded{Channel: channel}
		if len(data) > 0 {
			err = json.Unmarshal(data, &e)
		}
		ev = e
	case KindSubscriptionFailed:
		e := SubscriptionFailed{Channel: channel}
		if len(data) > 0 {
			err = json.Unmarshal(data, &e)
		}
		ev = e
	default:
		return nil, errors.Errorf("unknown event kind %d", int(kind))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", kind)
	}
	return ev, nil
}

func membershipEvent(kind Kind, m Membership) Event {
	switch kind {
	case KindMembersJoined:
		return MembersJoined{m}
	case KindMembersLeft:
		return MembersLeft{m}
	case KindAdminsPromoted:
		return AdminsPromoted{m}
	case KindAdminsDemoted:
		return AdminsDemoted{m}
	case KindTeamMembersJoined:
		return TeamMembersJoined{m}
	case KindTeamAdminsPromoted:
		return TeamAdminsPromoted{m}
	case KindTeamAdminsDemoted:
		return TeamAdminsDemoted{m}
	default:
		return TeamMembersLeft{m}
	}
}

// Encode builds the envelope for a typed event.
func Encode(channel string, ev Event) (Envelope, error) {
	var payload interface{} = ev
	switch e := ev.(type) {
	case MessageCreated:
		payload = e.Message
	case MessageUpdated:
		payload = e.Message
	case ConversationCreated:
		payload = e.Conversation
	case ConversationUpdated:
		payload = e.Conversation
	case TeamCreated:
		payload = e.Team
	case TeamUpdated:
		payload = e.Team
	case MembersJoined:
		payload = e.Membership
	case MembersLeft:
		payload = e.Membership
	case AdminsPromoted:
		payload = e.Membership
	case AdminsDemoted:
		payload = e.Membership
	case TeamMembersJoined:
		payload = e.Membership
	case TeamMembersLeft:
		payload = e.Membership
	case TeamAdminsPromoted:
		payload = e.Membership
	case TeamAdminsDemoted:
		payload = e.Membership
	case ChannelNotificationUpdated:
		payload = e.ChannelNotification
	case ThreadNotificationUpdated:
		payload = e.ThreadNotification
	case PresenceChanged:
		payload = e.Presence
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "encoding %s", ev.Kind())
	}
	return Envelope{Event: ev.Kind().String(), Channel: channel, Data: data}, nil
}
