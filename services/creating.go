package services

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// CreateMessage posts a new message. The backend echoes the temp id so the
// answer can be matched with the pending copy.
func (c *Client) CreateMessage(ctx context.Context, m *sidesync.Message) (*sidesync.Message, error) {
	out := &sidesync.Message{}
	r := c.request(ctx).SetResult(out).SetBody(m)
	if err := c.do(r, resty.MethodPost, "/api/messages"); err != nil {
		return nil, errors.Wrapf(err, "creating message in %d", m.Channel)
	}
	return out, nil
}

type deviceRequest struct {
	Token string `json:"token"`
}

// RegisterDevice registers a push notification token for the user.
func (c *Client) RegisterDevice(ctx context.Context, token string) error {
	r := c.request(ctx).SetBody(deviceRequest{Token: token})
	return errors.Wrap(c.do(r, resty.MethodPost, "/api/devices"), "registering device")
}
