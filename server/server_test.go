package server_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/server"
	"github.com/tmitchel/sidesync/services"
	"github.com/tmitchel/sidesync/store"
)

const password = "password"

type fixture struct {
	db  store.Database
	url string

	alice, bob, carol   *sidesync.User
	team                *sidesync.Team
	general, secret, dm *sidesync.Conversation
	tokens              map[int64]string
	hook                *test.Hook
}

func newFixture(t *testing.T, maxFrame int) *fixture {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{db: store.NewMemory(), tokens: make(map[int64]string), hook: hook}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := func(name string) *sidesync.User {
		u, err := f.db.CreateUser(&sidesync.User{DisplayName: name, Email: name + "@example.com", Password: hash})
		require.NoError(t, err)
		return u
	}
	f.alice, f.bob, f.carol = user("alice"), user("bob"), user("carol")

	f.team, err = f.db.CreateTeam(&sidesync.Team{
		DisplayName:       "team",
		Members:           []int64{f.alice.ID, f.bob.ID, f.carol.ID},
		Admins:            []int64{f.alice.ID},
		UpdatedActionTime: time.Now().UTC(),
	})
	require.NoError(t, err)

	conversation := func(c *sidesync.Conversation) *sidesync.Conversation {
		c.UpdatedActionTime = time.Now().UTC()
		out, err := f.db.CreateConversation(c)
		require.NoError(t, err)
		return out
	}
	f.general = conversation(&sidesync.Conversation{Type: sidesync.ConversationPublic, Name: "general", Slug: "general", Team: f.team.ID, Members: []int64{f.alice.ID, f.bob.ID}})
	f.secret = conversation(&sidesync.Conversation{Type: sidesync.ConversationPrivate, Name: "secret", Slug: "secret", Team: f.team.ID, Members: []int64{f.alice.ID}})
	f.dm = conversation(&sidesync.Conversation{Type: sidesync.ConversationDirect, Members: []int64{f.alice.ID, f.bob.ID}})

	srv := server.NewServer(f.db, server.Config{SigningKey: []byte("test-key"), MaxFrame: maxFrame}, logger)
	ts := httptest.NewServer(srv.Serve())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	f.url = ts.URL
	return f
}

// client logs u in and returns a REST client carrying the issued token.
func (f *fixture) client(t *testing.T, u *sidesync.User) *services.Client {
	logger, _ := test.NewNullLogger()
	c := services.New(f.url, nil, 5*time.Second, logger)

	resp, err := c.Login(context.Background(), u.Email, password)
	require.NoError(t, err)
	require.Equal(t, u.ID, resp.User.ID)

	creds, err := services.NewTokenCredentials(resp.Token)
	require.NoError(t, err)
	c.SetCredentials(creds)
	f.tokens[u.ID] = resp.Token
	return c
}

// call sends a request the REST client has no method for.
func (f *fixture) call(t *testing.T, u *sidesync.User, method, path string, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.url+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.tokens[u.ID])

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func status(err error) int {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode()
	}
	return 0
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func conversationIDs(convs []*sidesync.Conversation) []int64 {
	out := make([]int64, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestLogin(t *testing.T) {
	f := newFixture(t, 0)
	logger, _ := test.NewNullLogger()
	anon := services.New(f.url, nil, 5*time.Second, logger)

	_, err := anon.Login(context.Background(), f.alice.Email, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status(err))

	_, err = anon.Login(context.Background(), "nobody@example.com", password)
	assert.Equal(t, http.StatusUnauthorized, status(err))

	_, err = anon.ListTeams(context.Background())
	assert.Equal(t, http.StatusUnauthorized, status(err))

	teams, err := f.client(t, f.alice).ListTeams(context.Background())
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, f.team.ID, teams[0].ID)
}

func TestRejectsForgedToken(t *testing.T) {
	f := newFixture(t, 0)
	f.client(t, f.alice)
	f.tokens[f.alice.ID] += "x"

	resp := f.call(t, f.alice, "GET", "/api/teams", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Unauthorized", body.Error)
}

func TestConversationVisibility(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	alice, bob, carol := f.client(t, f.alice), f.client(t, f.bob), f.client(t, f.carol)

	convs, err := alice.ListConversations(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.general.ID, f.secret.ID, f.dm.ID}, conversationIDs(convs))

	convs, err = bob.ListConversations(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.general.ID, f.dm.ID}, conversationIDs(convs))
	require.NotNil(t, convs[0].IsRead)
	assert.True(t, *convs[0].IsRead)

	_, err = bob.GetConversation(ctx, f.secret.ID)
	assert.Equal(t, http.StatusForbidden, status(err))

	// public channels can be viewed without joining
	c, err := carol.GetConversation(ctx, f.general.ID)
	require.NoError(t, err)
	assert.False(t, c.HasMember(f.carol.ID))

	_, err = carol.GetConversation(ctx, 9999)
	assert.True(t, errors.Is(err, sidesync.ErrNotFound))

	_, err = carol.ListConversations(ctx, 9999)
	assert.True(t, errors.Is(err, sidesync.ErrNotFound))
}

func TestJoinAndLeaveConversation(t *testing.T) {
	f := newFixture(t, 0)
	f.client(t, f.carol)
	path := "/api/conversations/"

	resp := f.call(t, f.carol, "POST", path+itoa(f.secret.ID)+"/join", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.call(t, f.carol, "POST", path+itoa(f.general.ID)+"/join", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var joined sidesync.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&joined))
	assert.ElementsMatch(t, []int64{f.alice.ID, f.bob.ID, f.carol.ID}, joined.Members)

	resp = f.call(t, f.carol, "POST", path+itoa(f.general.ID)+"/leave", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	c, err := f.db.GetConversation(f.general.ID)
	require.NoError(t, err)
	assert.False(t, c.HasMember(f.carol.ID))

	resp = f.call(t, f.carol, "POST", path+itoa(f.general.ID)+"/leave", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReconnectConversations(t *testing.T) {
	f := newFixture(t, 0)
	alice := f.client(t, f.alice)

	delta, err := alice.ReconnectConversations(context.Background(), f.team.ID, []sidesync.Stamp{
		{ID: f.general.ID},
		{ID: f.secret.ID, UpdatedActionTime: f.secret.UpdatedActionTime},
		{ID: 9999},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{f.general.ID, f.dm.ID}, conversationIDs(delta.Changed))
	assert.Equal(t, []int64{9999}, delta.Removed)
	require.Len(t, delta.Teams, 1)
	assert.Equal(t, f.team.ID, delta.Teams[0].ID)
}

func TestReconnectReportsLostAccess(t *testing.T) {
	f := newFixture(t, 0)
	bob := f.client(t, f.bob)

	delta, err := bob.ReconnectConversations(context.Background(), f.team.ID, []sidesync.Stamp{
		{ID: f.secret.ID, UpdatedActionTime: f.secret.UpdatedActionTime},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.secret.ID}, delta.Removed)
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture(t, 0)
	bob := f.client(t, f.bob)

	assert.NoError(t, bob.RegisterDevice(context.Background(), "device-token"))
	err := bob.RegisterDevice(context.Background(), "")
	assert.Equal(t, http.StatusBadRequest, status(err))
}

func TestErrorsLoggedWithRequestFields(t *testing.T) {
	f := newFixture(t, 0)
	f.client(t, f.alice)

	resp := f.call(t, f.alice, "GET", "/api/conversations/9999", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var found *logrus.Entry
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Unable to get conversation" {
			found = e
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, logrus.DebugLevel, found.Level)
	assert.Equal(t, "/api/conversations/9999", found.Data["path"])
	assert.Equal(t, f.alice.ID, found.Data["user"])
}
