// Package readqueue coalesces "mark as read" signals so that scrolling
// through a conversation costs at most one request per debounce window.
package readqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/state"
)

// DefaultDelay is the debounce window.
const DefaultDelay = 200 * time.Millisecond

// DefaultFlushTimeout bounds each mark-as-read request.
const DefaultFlushTimeout = 10 * time.Second

const keySeparator = ":"

type entry struct {
	conversationType sidesync.ConversationType
	thread           bool
	target           int64
	lastMessageID    int64
	timer            *time.Timer
	generation       uint64
}

// Queue debounces read signals per conversation or thread. Entries stay
// around after a flush so the monotonic guard keeps working.
type Queue struct {
	store         *state.Store
	notifications sidesync.NotificationService
	threads       sidesync.ThreadService
	delay         time.Duration
	timeout       time.Duration
	log           logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New returns a Queue that flushes delay after the last signal for a key.
// Each flush gives up after timeout.
func New(store *state.Store, notifications sidesync.NotificationService, threads sidesync.ThreadService, delay, timeout time.Duration, log logrus.FieldLogger) *Queue {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	if log == nil {
		log = logrus.WithField("component", "readqueue")
	}
	return &Queue{
		store:         store,
		notifications: notifications,
		threads:       threads,
		delay:         delay,
		timeout:       timeout,
		log:           log,
		entries:       make(map[string]*entry),
	}
}

// Signal records that m has been seen. A zero conversation type means the
// message is not read in a context that counts and the call is ignored, as
// are unconfirmed messages and messages not newer than the last one
// recorded for the same key.
func (q *Queue) Signal(m *sidesync.Message, ct sidesync.ConversationType) {
	if m == nil || ct == 0 || m.ID == 0 || m.IsTemporary {
		return
	}

	key := queueKey(ct, m.IsReply(), m.Target())

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	e, ok := q.entries[key]
	if !ok {
		e = &entry{conversationType: ct, thread: m.IsReply(), target: m.Target()}
		q.entries[key] = e
	}
	if m.ID <= e.lastMessageID {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.lastMessageID = m.ID
	e.generation++
	gen := e.generation
	e.timer = time.AfterFunc(q.delay, func() { q.flush(key, gen) })
}

// LastRead returns the furthest message recorded for a conversation, or
// for a thread when thread is set.
func (q *Queue) LastRead(ct sidesync.ConversationType, thread bool, target int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[queueKey(ct, thread, target)]; ok {
		return e.lastMessageID
	}
	return 0
}

// queueKey is the conversation type and the read target. Threads get their
// own prefix because message and conversation ids may overlap.
func queueKey(ct sidesync.ConversationType, thread bool, target int64) string {
	prefix := ct.String()
	if thread {
		prefix = "thread"
	}
	return prefix + keySeparator + strconv.FormatInt(target, 10)
}

// Close stops every pending flush.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

func (q *Queue) flush(key string, gen uint64) {
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok || q.closed || e.generation != gen {
		q.mu.Unlock()
		return
	}
	thread, ct, target, messageID := e.thread, e.conversationType, e.target, e.lastMessageID
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	log := q.log.WithFields(logrus.Fields{"target": target, "message": messageID})
	switch {
	case thread:
		n, err := q.threads.MarkThreadRead(ctx, target, messageID)
		if err != nil {
			log.WithError(err).Error("marking thread read")
			return
		}
		q.store.Update(func(tx *state.Tx) { tx.UpsertThreadNotification(n) })
	case ct.IsDMG():
		n, err := q.notifications.MarkDMGRead(ctx, target, messageID)
		if err != nil {
			log.WithError(err).Error("marking dmg read")
			return
		}
		q.store.Update(func(tx *state.Tx) { tx.MergeChannelNotifications([]*sidesync.ChannelNotification{n}) })
	default:
		n, err := q.notifications.MarkChannelRead(ctx, target, messageID)
		if err != nil {
			log.WithError(err).Error("marking channel read")
			return
		}
		q.store.Update(func(tx *state.Tx) { tx.MergeChannelNotifications([]*sidesync.ChannelNotification{n}) })
	}
}
