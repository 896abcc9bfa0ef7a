package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Frames buffered per client before it is considered too slow.
	sendBuffer = 256
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *chathub
	user sidesync.User
	log  logrus.FieldLogger

	// channels the client subscribed to. Only the hub touches it.
	channels map[string]bool
}

// HandleWS provides a handler for getting websocket connections setup
// and registering a new client with the hub.
func (s *Server) HandleWS() errHandler {
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader already answered the request
			s.logger(r).WithError(err).Warn("unable to upgrade connection")
			return nil
		}

		cl := &client{
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
			hub:      s.hub,
			user:     user,
			log:      s.logger(r),
			channels: make(map[string]bool),
		}

		select {
		case s.hub.register <- cl:
		case <-s.hub.done:
			conn.Close()
			return nil
		}

		go cl.writePump()
		go cl.readPump()
		return nil
	}
}

// readPump listens for subscribe frames on the websocket connection and
// hands them to the chathub. Anything else a client sends is ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var env realtime.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseGoingAway) {
				c.log.Debug("websocket closed by client")
			} else {
				c.log.Errorf("websocket error %v", err)
			}
			return
		}

		if env.Event != realtime.SubscribeEvent {
			c.log.WithField("event", env.Event).Debug("ignoring client event")
			continue
		}
		select {
		case c.hub.subscribe <- subscription{client: c, channel: env.Channel}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump waits for the chathub to route a frame to the client then
// sends it out on the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Errorf("Error writing to websocket %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Errorf("Error writing ping message. %v", err)
				return
			}
		}
	}
}
