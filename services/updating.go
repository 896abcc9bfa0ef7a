package services

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

func (c *Client) UpdateMessage(ctx context.Context, m *sidesync.Message) (*sidesync.Message, error) {
	out := &sidesync.Message{}
	r := c.request(ctx).SetResult(out).SetBody(m).SetPathParam("id", formatID(m.ID))
	if err := c.do(r, resty.MethodPut, "/api/messages/{id}"); err != nil {
		return nil, errors.Wrapf(err, "updating message %d", m.ID)
	}
	return out, nil
}

type readRequest struct {
	MessageID int64 `json:"message_id"`
}

// MarkChannelRead moves the read position of a channel to messageID.
func (c *Client) MarkChannelRead(ctx context.Context, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	return c.markRead(ctx, "/api/channels/{id}/read", channelID, messageID)
}

// MarkDMGRead moves the read position of a direct message to messageID.
func (c *Client) MarkDMGRead(ctx context.Context, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	return c.markRead(ctx, "/api/dmgs/{id}/read", channelID, messageID)
}

func (c *Client) markRead(ctx context.Context, path string, channelID, messageID int64) (*sidesync.ChannelNotification, error) {
	n := &sidesync.ChannelNotification{}
	r := c.request(ctx).
		SetResult(n).
		SetBody(readRequest{MessageID: messageID}).
		SetPathParam("id", formatID(channelID))
	if err := c.do(r, resty.MethodPost, path); err != nil {
		return nil, errors.Wrapf(err, "marking %d read up to %d", channelID, messageID)
	}
	return n, nil
}

// MarkThreadRead moves the read position of a thread to messageID and
// returns the thread notification of its team.
func (c *Client) MarkThreadRead(ctx context.Context, threadID, messageID int64) (*sidesync.ThreadNotification, error) {
	n := &sidesync.ThreadNotification{}
	r := c.request(ctx).
		SetResult(n).
		SetBody(readRequest{MessageID: messageID}).
		SetPathParam("id", formatID(threadID))
	if err := c.do(r, resty.MethodPost, "/api/threads/{id}/read"); err != nil {
		return nil, errors.Wrapf(err, "marking thread %d read up to %d", threadID, messageID)
	}
	return n, nil
}
