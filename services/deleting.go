package services

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	r := c.request(ctx).SetPathParam("id", formatID(id))
	return errors.Wrapf(c.do(r, resty.MethodDelete, "/api/messages/{id}"), "deleting message %d", id)
}
