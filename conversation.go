package sidesync

import (
	"time"

	"github.com/pkg/errors"
)

// ConversationType distinguishes named channels from direct conversations.
type ConversationType int

// conversation types
const (
	ConversationPublic ConversationType = iota + 1
	ConversationPrivate
	ConversationGroup
	ConversationDirect
)

var conversationTypeNames = map[ConversationType]string{
	ConversationPublic:  "public",
	ConversationPrivate: "private",
	ConversationGroup:   "group",
	ConversationDirect:  "direct",
}

func (t ConversationType) String() string {
	if name, ok := conversationTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsDMG reports whether the conversation is a direct message or a group.
// Those are read through a different endpoint than channels.
func (t ConversationType) IsDMG() bool {
	return t == ConversationGroup || t == ConversationDirect
}

// MarshalText implements encoding.TextMarshaler.
func (t ConversationType) MarshalText() ([]byte, error) {
	name, ok := conversationTypeNames[t]
	if !ok {
		return nil, errors.Errorf("unknown conversation type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ConversationType) UnmarshalText(text []byte) error {
	for k, v := range conversationTypeNames {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	return errors.Errorf("unknown conversation type %q", string(text))
}

// Conversation is a channel, private channel, group or direct message.
//
// IsRead and MentionCount are pointers so a payload that does not carry them
// can be told apart from one that resets them.
type Conversation struct {
	ID                int64            `json:"id"`
	Type              ConversationType `json:"type"`
	Name              string           `json:"display_name"`
	Slug              string           `json:"slug,omitempty"`
	Details           string           `json:"details,omitempty"`
	Team              int64            `json:"team,omitempty"`
	Members           []int64          `json:"members"`
	Admins            []int64          `json:"admins"`
	IsRead            *bool            `json:"is_read,omitempty"`
	MentionCount      *int             `json:"mention_count,omitempty"`
	IsFavorite        bool             `json:"is_favorite"`
	IsMute            bool             `json:"is_mute"`
	IsHide            bool             `json:"is_hide"`
	IsArchived        bool             `json:"is_archived"`
	ScrollTop         float64          `json:"-"`
	NewMessageID      int64            `json:"new_message_id,omitempty"`
	UpdatedActionTime time.Time        `json:"updated_action_time"`
}

// Read returns the stored read flag, treating unknown as read.
func (c *Conversation) Read() bool {
	return c.IsRead == nil || *c.IsRead
}

// Mentions returns the stored mention count, zero when unknown.
func (c *Conversation) Mentions() int {
	if c.MentionCount == nil {
		return 0
	}
	return *c.MentionCount
}

// HasMember reports whether the user belongs to the conversation.
func (c *Conversation) HasMember(userID int64) bool {
	return containsID(c.Members, userID)
}

// Viewable reports whether the user may open the conversation. Public
// channels can be viewed without joining them.
func (c *Conversation) Viewable(userID int64) bool {
	return c.Type == ConversationPublic || c.HasMember(userID)
}

// Stamp identifies an entity together with the last change the client
// knows about. Reconnect endpoints answer with whatever changed after it.
type Stamp struct {
	ID                int64     `json:"id"`
	UpdatedActionTime time.Time `json:"updated_action_time"`
}

// ConversationDelta is the reconnect answer for conversations.
type ConversationDelta struct {
	Changed []*Conversation `json:"changed"`
	Removed []int64         `json:"removed"`
	Teams   []*Team         `json:"teams"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
