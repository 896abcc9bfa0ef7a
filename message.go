package sidesync

import (
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Message is a chat message. A message that has not been confirmed by the
// server has no ID yet and is tracked by its TempID.
type Message struct {
	ID                int64      `json:"id,omitempty"`
	TempID            string     `json:"temp_id,omitempty"`
	Channel           int64      `json:"channel"`
	Parent            int64      `json:"parent,omitempty"`
	Creator           int64      `json:"creator"`
	Content           string     `json:"content"`
	Mentions          []int64    `json:"mentions,omitempty"`
	Reactions         []Reaction `json:"reactions,omitempty"`
	IsTemporary       bool       `json:"-"`
	HasError          bool       `json:"-"`
	IsPinned          bool       `json:"is_pinned"`
	IsSaved           bool       `json:"is_saved"`
	Created           time.Time  `json:"created"`
	UpdatedActionTime time.Time  `json:"updated_action_time"`
}

// IsReply reports whether the message belongs to a thread.
func (m *Message) IsReply() bool {
	return m.Parent != 0
}

// Target is the conversation or thread the message is read in.
func (m *Message) Target() int64 {
	if m.Parent != 0 {
		return m.Parent
	}
	return m.Channel
}

// Reaction is one emoji on a message and the users that used it.
type Reaction struct {
	Name      string    `json:"name"`
	Users     []int64   `json:"users"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SortReactions orders reactions most recent first. Ties are broken by name
// so the order is stable between renders.
func SortReactions(reactions []Reaction) {
	sort.SliceStable(reactions, func(i, j int) bool {
		if !reactions[i].UpdatedAt.Equal(reactions[j].UpdatedAt) {
			return reactions[i].UpdatedAt.After(reactions[j].UpdatedAt)
		}
		return reactions[i].Name < reactions[j].Name
	})
}

// MessagePage is one page of a message listing. Next is an opaque URL for
// the following page and is empty on the last one.
type MessagePage struct {
	Messages    []*Message `json:"messages"`
	Next        string     `json:"next,omitempty"`
	FirstUnread int64      `json:"first_unread,omitempty"`
}

// MessageQuery selects messages of a channel. A zero After asks for the
// latest page. Cursor, when set, wins over every other field.
type MessageQuery struct {
	Channel int64
	After   time.Time
	Limit   int
	Cursor  string
}

// MessageDelta is the reconnect answer for messages.
type MessageDelta struct {
	Changed []*Message `json:"changed"`
	Removed []int64    `json:"removed"`
}

var mentionPattern = regexp.MustCompile(`<@(\d+)>`)

// ExtractMentions returns the user ids mentioned as <@id> in content, in
// order of first appearance.
func ExtractMentions(content string) []int64 {
	var ids []int64
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || containsID(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
