package server

import (
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/realtime"
)

// delivery is a set of encoded frames for the subscribers of channel.
// A zero user addresses every connection.
type delivery struct {
	user    int64
	channel string
	frames  [][]byte
}

type subscription struct {
	client  *client
	channel string
}

// chathub owns every websocket client. Its maps are only changed by the
// run goroutine; users and lastSeen are also read by presence lookups and
// are guarded by mu.
type chathub struct {
	clients    map[*client]bool
	deliver    chan delivery
	register   chan *client
	unregister chan *client
	subscribe  chan subscription
	done       chan struct{}
	closeOnce  sync.Once

	maxFrame int
	log      logrus.FieldLogger

	mu       sync.RWMutex
	users    map[int64]map[*client]bool
	lastSeen map[int64]time.Time
}

// newChathub creates a chathub to handle client websocket connections
// and route events to them.
func newChathub(maxFrame int, log logrus.FieldLogger) *chathub {
	return &chathub{
		clients:    make(map[*client]bool),
		deliver:    make(chan delivery),
		register:   make(chan *client),
		unregister: make(chan *client),
		subscribe:  make(chan subscription),
		done:       make(chan struct{}),
		maxFrame:   maxFrame,
		log:        log,
		users:      make(map[int64]map[*client]bool),
		lastSeen:   make(map[int64]time.Time),
	}
}

func (h *chathub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.send)
			}
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case sub := <-h.subscribe:
			h.handleSubscribe(sub)
		case d := <-h.deliver:
			targets := h.clients
			if d.user != 0 {
				targets = h.users[d.user]
			}
			for c := range targets {
				if c.channels[d.channel] {
					h.send(c, d.frames)
				}
			}
		}
	}
}

func (h *chathub) close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *chathub) add(c *client) {
	h.log.WithField("user", c.user.ID).Debug("registering client")
	h.clients[c] = true

	h.mu.Lock()
	first := len(h.users[c.user.ID]) == 0
	if first {
		h.users[c.user.ID] = make(map[*client]bool)
	}
	h.users[c.user.ID][c] = true
	h.mu.Unlock()

	if first {
		h.broadcastPresence(sidesync.Presence{UserID: c.user.ID, Online: true, LastSeen: time.Now().UTC()})
	}
}

// remove drops a client and closes its send channel. The user goes
// offline with their last connection.
func (h *chathub) remove(c *client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)

	now := time.Now().UTC()
	h.mu.Lock()
	delete(h.users[c.user.ID], c)
	last := len(h.users[c.user.ID]) == 0
	if last {
		delete(h.users, c.user.ID)
		h.lastSeen[c.user.ID] = now
	}
	h.mu.Unlock()

	if last {
		h.broadcastPresence(sidesync.Presence{UserID: c.user.ID, Online: false, LastSeen: now})
	}
}

// send queues frames for c. A client that cannot keep up is dropped.
func (h *chathub) send(c *client, frames [][]byte) {
	for _, f := range frames {
		select {
		case c.send <- f:
		default:
			h.log.WithField("user", c.user.ID).Warn("dropping slow client")
			h.remove(c)
			return
		}
	}
}

func (h *chathub) broadcastPresence(p sidesync.Presence) {
	frames, err := h.frames(realtime.PresenceChannel, realtime.PresenceChanged{Presence: p})
	if err != nil {
		h.log.WithError(err).Error("encoding presence")
		return
	}
	for c := range h.clients {
		if c.channels[realtime.PresenceChannel] {
			h.send(c, frames)
		}
	}
}

// handleSubscribe lets a client join its own private channel and the
// presence channel. Anything else is refused.
func (h *chathub) handleSubscribe(sub subscription) {
	c := sub.client
	if !h.clients[c] {
		return
	}

	var ev realtime.Event
	switch sub.channel {
	case realtime.PrivateChannel(c.user.ID):
		c.channels[sub.channel] = true
		ev = realtime.SubscriptionSucceeded{Channel: sub.channel}
	case realtime.PresenceChannel:
		c.channels[sub.channel] = true
		ev = realtime.SubscriptionSucceeded{Channel: sub.channel, Members: h.online()}
	default:
		h.log.WithFields(logrus.Fields{"user": c.user.ID, "channel": sub.channel}).Warn("refusing subscription")
		ev = realtime.SubscriptionFailed{Channel: sub.channel, Status: 403, Reason: "not allowed to subscribe"}
	}

	frames, err := h.frames(sub.channel, ev)
	if err != nil {
		h.log.WithError(err).Error("encoding subscription reply")
		return
	}
	h.send(c, frames)
}

func (h *chathub) online() []int64 {
	ids := make([]int64, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// frames encodes ev for channel, split into chunks when it does not fit
// in one frame.
func (h *chathub) frames(channel string, ev realtime.Event) ([][]byte, error) {
	env, err := realtime.Encode(channel, ev)
	if err != nil {
		return nil, err
	}
	parts, err := realtime.Split(env, h.maxFrame)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(parts))
	for i, p := range parts {
		if out[i], err = json.Marshal(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// publish sends ev to the private channel of every listed user.
func (h *chathub) publish(users []int64, ev realtime.Event) {
	seen := make(map[int64]bool, len(users))
	for _, uid := range users {
		if seen[uid] {
			continue
		}
		seen[uid] = true

		channel := realtime.PrivateChannel(uid)
		frames, err := h.frames(channel, ev)
		if err != nil {
			h.log.WithError(err).WithField("event", ev.Kind()).Error("encoding event")
			return
		}
		select {
		case h.deliver <- delivery{user: uid, channel: channel, frames: frames}:
		case <-h.done:
			return
		}
	}
}

// presence reports the connection state of the given users.
func (h *chathub) presence(ids []int64) []*sidesync.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*sidesync.Presence, 0, len(ids))
	for _, id := range ids {
		out = append(out, &sidesync.Presence{
			UserID:   id,
			Online:   len(h.users[id]) > 0,
			LastSeen: h.lastSeen[id],
		})
	}
	return out
}
