// Package services is the REST client of the backend. One Client
// implements every collaborator interface the engine talks to.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
)

var (
	_ sidesync.TeamService         = (*Client)(nil)
	_ sidesync.ConversationService = (*Client)(nil)
	_ sidesync.MessageService      = (*Client)(nil)
	_ sidesync.ThreadService       = (*Client)(nil)
	_ sidesync.NotificationService = (*Client)(nil)
	_ sidesync.UserService         = (*Client)(nil)
)

// APIError is a response the backend answered with a 4xx or 5xx status.
type APIError struct {
	Status  int
	Method  string
	URL     string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int {
	return e.Status
}

// Is lets a 404 match sidesync.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == sidesync.ErrNotFound && e.Status == 404
}

type errorBody struct {
	Message string `json:"error"`
}

// Client sends authenticated JSON requests to the backend.
type Client struct {
	http  *resty.Client
	creds sidesync.Credentials
	log   logrus.FieldLogger
}

// New returns a Client for the backend at baseURL. creds may be nil until
// the user has logged in; requests are then sent without a token.
func New(baseURL string, creds sidesync.Credentials, timeout time.Duration, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.WithField("component", "services")
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{http: rc, creds: creds, log: log}
}

// SetCredentials replaces the credentials used for later requests.
func (c *Client) SetCredentials(creds sidesync.Credentials) {
	c.creds = creds
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if c.creds != nil {
		r.SetHeader("Authorization", c.creds.AuthHeader())
	}
	return r
}

// do executes r and turns error statuses into an *APIError.
func (c *Client) do(r *resty.Request, method, url string) error {
	resp, err := r.Execute(method, url)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}

	c.log.WithFields(logrus.Fields{
		"method":  method,
		"url":     url,
		"status":  resp.StatusCode(),
		"elapsed": resp.Time(),
	}).Debug("request done")

	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode(), Method: method, URL: url}
	if body, ok := resp.Error().(*errorBody); ok && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
