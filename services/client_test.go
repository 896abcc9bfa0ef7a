package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/mocks"
	"github.com/tmitchel/sidesync/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, router *mux.Router) *services.Client {
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	return services.New(srv.URL, mocks.Credentials{ID: 7}, 5*time.Second, logger)
}

func TestListTeamsSendsToken(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/teams", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mock-7" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no token"})
			return
		}
		writeJSON(w, http.StatusOK, []*sidesync.Team{{ID: 1, DisplayName: "one"}, {ID: 2, DisplayName: "two"}})
	}).Methods("GET")

	teams, err := newClient(t, router).ListTeams(context.Background())
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "two", teams[1].DisplayName)
}

func TestListMessagesFollowsCursor(t *testing.T) {
	after := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	router := mux.NewRouter()
	router.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "42", q.Get("channel"))
		if q.Get("page") == "2" {
			writeJSON(w, http.StatusOK, sidesync.MessagePage{Messages: []*sidesync.Message{{ID: 3, Channel: 42}}})
			return
		}
		assert.Equal(t, "2", q.Get("limit"))
		assert.Equal(t, after.Format(time.RFC3339Nano), q.Get("after"))
		writeJSON(w, http.StatusOK, sidesync.MessagePage{
			Messages: []*sidesync.Message{{ID: 1, Channel: 42}, {ID: 2, Channel: 42}},
			Next:     "/api/messages?channel=42&page=2",
		})
	}).Methods("GET")

	c := newClient(t, router)
	page, err := c.ListMessages(context.Background(), sidesync.MessageQuery{Channel: 42, After: after, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.NotEmpty(t, page.Next)

	page, err = c.ListMessages(context.Background(), sidesync.MessageQuery{Channel: 42, Cursor: page.Next})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, int64(3), page.Messages[0].ID)
	assert.Empty(t, page.Next)
}

func TestErrorStatuses(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such conversation"})
	}).Methods("GET")
	router.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}).Methods("GET")

	c := newClient(t, router)

	_, err := c.GetConversation(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sidesync.ErrNotFound))
	var apiErr *services.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode())
	assert.Equal(t, "no such conversation", apiErr.Message)

	_, err = c.Summary(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode())
	assert.Equal(t, "down for maintenance", apiErr.Message)
	assert.False(t, errors.Is(err, sidesync.ErrNotFound))
}

func TestMarkReadPostsPosition(t *testing.T) {
	var got struct {
		MessageID int64 `json:"message_id"`
	}
	router := mux.NewRouter()
	router.HandleFunc("/api/dmgs/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "30", mux.Vars(r)["id"])
		writeJSON(w, http.StatusOK, sidesync.ChannelNotification{ChannelID: 30, IsRead: true})
	}).Methods("POST")

	n, err := newClient(t, router).MarkDMGRead(context.Background(), 30, 512)
	require.NoError(t, err)
	assert.Equal(t, int64(512), got.MessageID)
	assert.True(t, n.IsRead)
}

func TestReconnectSendsStamps(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	router := mux.NewRouter()
	router.HandleFunc("/api/teams/{id}/reconnect", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stamps []sidesync.Stamp `json:"stamps"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if !assert.Len(t, body.Stamps, 1) {
			return
		}
		assert.True(t, body.Stamps[0].UpdatedActionTime.Equal(stamp))
		writeJSON(w, http.StatusOK, sidesync.ConversationDelta{
			Changed: []*sidesync.Conversation{{ID: 42, Type: sidesync.ConversationPublic}},
			Removed: []int64{43},
		})
	}).Methods("POST")

	delta, err := newClient(t, router).ReconnectConversations(context.Background(), 1, []sidesync.Stamp{{ID: 42, UpdatedActionTime: stamp}})
	require.NoError(t, err)
	require.Len(t, delta.Changed, 1)
	assert.Equal(t, sidesync.ConversationPublic, delta.Changed[0].Type)
	assert.Equal(t, []int64{43}, delta.Removed)
}

func signedToken(t *testing.T, userID int64) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &sidesync.Claims{
		UserID:        userID,
		Authenticated: true,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	})
	s, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestLoginAndTokenCredentials(t *testing.T) {
	token := signedToken(t, 7)
	router := mux.NewRouter()
	router.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var req services.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Incorrect username/password"})
			return
		}
		writeJSON(w, http.StatusOK, services.LoginResponse{Token: token, User: &sidesync.User{ID: 7, Email: req.Email}})
	}).Methods("POST")

	c := newClient(t, router)
	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	var apiErr *services.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode())

	resp, err := c.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.User.ID)

	creds, err := services.NewTokenCredentials(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), creds.UserID())
	assert.Equal(t, "Bearer "+token, creds.AuthHeader())

	assert.Error(t, creds.SetToken(signedToken(t, 8)))
	_, err = services.NewTokenCredentials("not-a-token")
	assert.Error(t, err)
}
