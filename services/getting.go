package services

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// ListTeams returns the teams of the authenticated user.
func (c *Client) ListTeams(ctx context.Context) ([]*sidesync.Team, error) {
	var teams []*sidesync.Team
	r := c.request(ctx).SetResult(&teams)
	if err := c.do(r, resty.MethodGet, "/api/teams"); err != nil {
		return nil, errors.Wrap(err, "listing teams")
	}
	return teams, nil
}

// TeamNotifications returns the read state of every team.
func (c *Client) TeamNotifications(ctx context.Context) ([]*sidesync.TeamNotification, error) {
	var notes []*sidesync.TeamNotification
	r := c.request(ctx).SetResult(&notes)
	if err := c.do(r, resty.MethodGet, "/api/teams/notifications"); err != nil {
		return nil, errors.Wrap(err, "listing team notifications")
	}
	return notes, nil
}

// ListConversations returns the team's conversations and the user's
// direct messages.
func (c *Client) ListConversations(ctx context.Context, teamID int64) ([]*sidesync.Conversation, error) {
	var convs []*sidesync.Conversation
	r := c.request(ctx).SetResult(&convs).SetPathParam("id", formatID(teamID))
	if err := c.do(r, resty.MethodGet, "/api/teams/{id}/conversations"); err != nil {
		return nil, errors.Wrapf(err, "listing conversations of team %d", teamID)
	}
	return convs, nil
}

func (c *Client) GetConversation(ctx context.Context, id int64) (*sidesync.Conversation, error) {
	conv := &sidesync.Conversation{}
	r := c.request(ctx).SetResult(conv).SetPathParam("id", formatID(id))
	if err := c.do(r, resty.MethodGet, "/api/conversations/{id}"); err != nil {
		return nil, errors.Wrapf(err, "getting conversation %d", id)
	}
	return conv, nil
}

// ListMessages fetches one page of messages. A query with a cursor follows
// the URL the previous page handed out.
func (c *Client) ListMessages(ctx context.Context, q sidesync.MessageQuery) (*sidesync.MessagePage, error) {
	page := &sidesync.MessagePage{}
	r := c.request(ctx).SetResult(page)

	url := q.Cursor
	if url == "" {
		url = "/api/messages"
		r.SetQueryParam("channel", formatID(q.Channel))
		if q.Limit > 0 {
			r.SetQueryParam("limit", strconv.Itoa(q.Limit))
		}
		if !q.After.IsZero() {
			r.SetQueryParam("after", q.After.UTC().Format(time.RFC3339Nano))
		}
	}

	if err := c.do(r, resty.MethodGet, url); err != nil {
		return nil, errors.Wrapf(err, "listing messages of %d", q.Channel)
	}
	return page, nil
}

func (c *Client) GetThread(ctx context.Context, messageID int64) (*sidesync.ThreadDetail, error) {
	d := &sidesync.ThreadDetail{}
	r := c.request(ctx).SetResult(d).SetPathParam("id", formatID(messageID))
	if err := c.do(r, resty.MethodGet, "/api/threads/{id}"); err != nil {
		return nil, errors.Wrapf(err, "getting thread %d", messageID)
	}
	return d, nil
}

func (c *Client) ListThreads(ctx context.Context, teamID int64) ([]*sidesync.ThreadDetail, error) {
	var threads []*sidesync.ThreadDetail
	r := c.request(ctx).SetResult(&threads).SetPathParam("id", formatID(teamID))
	if err := c.do(r, resty.MethodGet, "/api/teams/{id}/threads"); err != nil {
		return nil, errors.Wrapf(err, "listing threads of team %d", teamID)
	}
	return threads, nil
}

func (c *Client) ThreadNotification(ctx context.Context, teamID int64) (*sidesync.ThreadNotification, error) {
	n := &sidesync.ThreadNotification{}
	r := c.request(ctx).SetResult(n).SetPathParam("id", formatID(teamID))
	if err := c.do(r, resty.MethodGet, "/api/teams/{id}/threads/notifications"); err != nil {
		return nil, errors.Wrapf(err, "getting thread notification of team %d", teamID)
	}
	return n, nil
}

// Summary returns the notification summary of the authenticated user.
func (c *Client) Summary(ctx context.Context) (*sidesync.Summary, error) {
	s := &sidesync.Summary{}
	r := c.request(ctx).SetResult(s)
	if err := c.do(r, resty.MethodGet, "/api/notifications"); err != nil {
		return nil, errors.Wrap(err, "getting notification summary")
	}
	return s, nil
}

type presenceRequest struct {
	IDs []int64 `json:"ids"`
}

// Presence returns the online status of the given users.
func (c *Client) Presence(ctx context.Context, userIDs []int64) ([]*sidesync.Presence, error) {
	var out []*sidesync.Presence
	r := c.request(ctx).SetResult(&out).SetBody(presenceRequest{IDs: userIDs})
	if err := c.do(r, resty.MethodPost, "/api/users/presence"); err != nil {
		return nil, errors.Wrapf(err, "getting presence of %d users", len(userIDs))
	}
	return out, nil
}
