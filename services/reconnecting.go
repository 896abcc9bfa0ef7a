package services

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// stampsRequest is the body of every reconnect endpoint.
type stampsRequest struct {
	Stamps []sidesync.Stamp `json:"stamps"`
}

func (c *Client) ReconnectConversations(ctx context.Context, teamID int64, stamps []sidesync.Stamp) (*sidesync.ConversationDelta, error) {
	delta := &sidesync.ConversationDelta{}
	r := c.request(ctx).
		SetResult(delta).
		SetBody(stampsRequest{Stamps: stamps}).
		SetPathParam("id", formatID(teamID))
	if err := c.do(r, resty.MethodPost, "/api/teams/{id}/reconnect"); err != nil {
		return nil, errors.Wrapf(err, "reconnecting conversations of team %d", teamID)
	}
	return delta, nil
}

func (c *Client) ReconnectMessages(ctx context.Context, stamps []sidesync.Stamp) (*sidesync.MessageDelta, error) {
	delta := &sidesync.MessageDelta{}
	r := c.request(ctx).SetResult(delta).SetBody(stampsRequest{Stamps: stamps})
	if err := c.do(r, resty.MethodPost, "/api/messages/reconnect"); err != nil {
		return nil, errors.Wrap(err, "reconnecting messages")
	}
	return delta, nil
}

func (c *Client) ReconnectNotifications(ctx context.Context, stamps []sidesync.Stamp) ([]*sidesync.ChannelNotification, error) {
	var notes []*sidesync.ChannelNotification
	r := c.request(ctx).SetResult(&notes).SetBody(stampsRequest{Stamps: stamps})
	if err := c.do(r, resty.MethodPost, "/api/notifications/reconnect"); err != nil {
		return nil, errors.Wrap(err, "reconnecting channel notifications")
	}
	return notes, nil
}
