// Package mocks holds in-memory fakes of the collaborators the engine
// talks to.
package mocks

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tmitchel/sidesync"
)

// Call is one recorded invocation of a Backend method.
type Call struct {
	Method string
	Args   []interface{}
}

type failure struct {
	remaining int
	err       error
}

// Backend is a fake of every REST collaborator backed by maps. It is safe
// for concurrent use; tests may seed the exported maps before handing the
// Backend to the code under test.
type Backend struct {
	mu sync.Mutex

	Teams           map[int64]*sidesync.Team
	TeamNotes       map[int64]*sidesync.TeamNotification
	Conversations   map[int64]*sidesync.Conversation
	Messages        map[int64]*sidesync.Message
	Threads         map[int64]*sidesync.ThreadDetail
	ThreadNotes     map[int64]*sidesync.ThreadNotification
	ChannelNotes    map[int64]*sidesync.ChannelNotification
	Presences       map[int64]*sidesync.Presence
	FirstUnread     map[int64]int64
	SummaryValue    sidesync.Summary
	RemovedMessages []int64
	Devices         []string

	// PageSize limits ListMessages pages.
	PageSize int
	// Now stamps created messages.
	Now func() time.Time

	nextID   int64
	calls    []Call
	failures map[string]*failure
}

// NewBackend returns an empty Backend with a page size of 50.
func NewBackend() *Backend {
	return &Backend{
		Teams:         make(map[int64]*sidesync.Team),
		TeamNotes:     make(map[int64]*sidesync.TeamNotification),
		Conversations: make(map[int64]*sidesync.Conversation),
		Messages:      make(map[int64]*sidesync.Message),
		Threads:       make(map[int64]*sidesync.ThreadDetail),
		ThreadNotes:   make(map[int64]*sidesync.ThreadNotification),
		ChannelNotes:  make(map[int64]*sidesync.ChannelNotification),
		Presences:     make(map[int64]*sidesync.Presence),
		FirstUnread:   make(map[int64]int64),
		PageSize:      50,
		Now:           time.Now,
		nextID:        1000,
		failures:      make(map[string]*failure),
	}
}

// PutTeams seeds teams.
func (b *Backend) PutTeams(teams ...*sidesync.Team) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range teams {
		b.Teams[t.ID] = t
	}
}

// PutConversations seeds conversations.
func (b *Backend) PutConversations(convs ...*sidesync.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range convs {
		b.Conversations[c.ID] = c
	}
}

// PutMessages seeds messages.
func (b *Backend) PutMessages(msgs ...*sidesync.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range msgs {
		b.Messages[m.ID] = m
		if m.ID >= b.nextID {
			b.nextID = m.ID + 1
		}
	}
}

// RemoveTeam drops a team and its conversations.
func (b *Backend) RemoveTeam(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Teams, id)
	for cid, c := range b.Conversations {
		if c.Team == id {
			delete(b.Conversations, cid)
		}
	}
}

// Fail makes the next n calls of method return err. A negative n fails
// every call.
func (b *Backend) Fail(method string, n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method] = &failure{remaining: n, err: err}
}

// Calls returns the recorded calls of method, or every call when method is
// empty.
func (b *Backend) Calls(method string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// record logs the call and returns the configured failure for it, if any.
// It must be called with b.mu held.
func (b *Backend) record(method string, args ...interface{}) error {
	b.calls = append(b.calls, Call{Method: method, Args: args})
	f, ok := b.failures[method]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

func (b *Backend) newID() int64 {
	id := b.nextID
	b.nextID++
	return id
}

func cursorFor(t time.Time) string {
	return "after:" + strconv.FormatInt(t.UnixNano(), 10)
}

func parseCursor(cursor string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(cursor, "after:"), 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad cursor %q", cursor)
	}
	return time.Unix(0, n), nil
}

func copyMessage(m *sidesync.Message) *sidesync.Message {
	c := *m
	return &c
}

func copyConversation(in *sidesync.Conversation) *sidesync.Conversation {
	c := *in
	return &c
}

// ChannelNoteFor returns the stored read state of a conversation.
func (b *Backend) ChannelNoteFor(channelID int64) (sidesync.ChannelNotification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.ChannelNotes[channelID]
	if !ok {
		return sidesync.ChannelNotification{}, false
	}
	return *n, true
}
