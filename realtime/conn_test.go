package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync/realtime"
)

type staticCreds struct{ id int64 }

func (c staticCreds) UserID() int64      { return c.id }
func (c staticCreds) AuthHeader() string { return "Bearer token" }

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestConnRedialsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials int32
	subscribed := make(chan string, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		n := atomic.AddInt32(&dials, 1)
		for i := 0; i < 2; i++ {
			var env realtime.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			subscribed <- env.Channel
		}
		if n == 1 {
			return
		}

		ws.WriteJSON(realtime.Envelope{Event: "team_left", Channel: "private-user-7", Data: json.RawMessage(`{"id":3}`)})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan realtime.Event, 1)
	logger, _ := test.NewNullLogger()
	d := realtime.NewDispatcher(realtime.HandlerFunc(func(ev realtime.Event) { events <- ev }), nil, logger)

	conn := realtime.NewConn(wsURL(srv), staticCreds{id: 7}, d, logger)
	conn.MinBackoff = 10 * time.Millisecond
	conn.MaxBackoff = 20 * time.Millisecond

	states := make(chan realtime.State, 10)
	conn.OnStateChange(func(prev, cur realtime.State) { states <- cur })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- conn.Run(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, realtime.TeamLeft{ID: 3}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	close(states)

	var seen []realtime.State
	for s := range states {
		seen = append(seen, s)
	}
	assert.Equal(t, []realtime.State{
		realtime.StateConnecting,
		realtime.StateConnected,
		realtime.StateUnavailable,
		realtime.StateConnected,
		realtime.StateDisconnected,
	}, seen)

	var channels []string
	for len(channels) < 4 {
		select {
		case c := <-subscribed:
			channels = append(channels, c)
		case <-time.After(5 * time.Second):
			t.Fatalf("saw %d subscriptions, want 4", len(channels))
		}
	}
	assert.Equal(t, []string{"private-user-7", "presence-global", "private-user-7", "presence-global"}, channels)
}

func TestConnStopsOnRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	d := realtime.NewDispatcher(realtime.HandlerFunc(func(realtime.Event) {}), nil, logger)
	conn := realtime.NewConn(wsURL(srv), staticCreds{id: 7}, d, logger)

	err := conn.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, realtime.StateError, conn.State())
}
