package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tmitchel/sidesync"
)

const (
	// Time allowed to write a frame to the backend.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the backend.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// State is the connection state reported to listeners.
type State int

// connection states
const (
	StateInitialized State = iota
	StateConnecting
	StateConnected
	StateUnavailable
	StateDisconnected
	StateError
)

var stateNames = map[State]string{
	StateInitialized:  "initialized",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateUnavailable:  "unavailable",
	StateDisconnected: "disconnected",
	StateError:        "error",
}

func (s State) String() string {
	return stateNames[s]
}

// StateListener is called on every state transition.
type StateListener func(prev, cur State)

// Conn keeps a websocket connection to the backend open, subscribes to the
// user's channels and feeds every received envelope to the dispatcher.
type Conn struct {
	// MinBackoff and MaxBackoff bound the wait between redials.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	url        string
	creds      sidesync.Credentials
	dispatcher *Dispatcher
	dialer     *websocket.Dialer
	log        logrus.FieldLogger

	mu        sync.Mutex
	state     State
	listeners []StateListener
}

// NewConn returns a Conn for the websocket endpoint at url.
func NewConn(url string, creds sidesync.Credentials, d *Dispatcher, log logrus.FieldLogger) *Conn {
	if log == nil {
		log = logrus.WithField("component", "realtime")
	}
	return &Conn{
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
		url:        url,
		creds:      creds,
		dispatcher: d,
		dialer:     websocket.DefaultDialer,
		log:        log,
	}
}

// OnStateChange registers a listener for state transitions.
func (c *Conn) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(next State) {
	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	ls := make([]StateListener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"from": prev, "to": next}).Info("connection state changed")
	for _, l := range ls {
		l(prev, next)
	}
}

// Run dials the backend and serves the connection until ctx is done. A
// lost connection moves to unavailable and is redialed with backoff. It
// returns an error only when the backend refuses the credentials.
func (c *Conn) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	backoff := c.MinBackoff

	for {
		ws, err := c.dial(ctx)
		if err == nil {
			backoff = c.MinBackoff
			c.setState(StateConnected)
			err = c.serve(ctx, ws)
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}
		if errors.Cause(err) == errUnauthorized {
			c.setState(StateError)
			return err
		}

		c.log.WithError(err).Warnf("connection lost, redialing in %s", backoff)
		c.setState(StateUnavailable)

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

var errUnauthorized = errors.New("websocket credentials rejected")

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", c.creds.AuthHeader())

	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.Wrapf(errUnauthorized, "dial %s: %d", c.url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", c.url)
	}
	return ws, nil
}

// serve subscribes to the user's channels, then reads frames until the
// connection fails or ctx is done. Frames are dispatched on the calling
// goroutine so handlers see them in arrival order.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	for _, channel := range []string{PrivateChannel(c.creds.UserID()), PresenceChannel} {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(Envelope{Event: SubscribeEvent, Channel: channel}); err != nil {
			ws.Close()
			return errors.Wrapf(err, "subscribing to %s", channel)
		}
	}

	go c.writePump(ctx, ws, done)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.Wrap(err, "websocket closed by backend")
			}
			return errors.Wrap(err, "reading websocket")
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.log.WithError(err).Error("dropping malformed frame")
			continue
		}
		c.dispatcher.Deliver(env)
	}
}

// writePump sends pings, sweeps expired chunk groups and closes the
// connection when ctx is done.
func (c *Conn) writePump(ctx context.Context, ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.dispatcher.Sweep()
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Errorf("Error writing ping message. %v", err)
				return
			}
		}
	}
}
