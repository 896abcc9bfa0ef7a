package services

import (
	"context"
	"sync"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is what the backend answers a successful login with.
type LoginResponse struct {
	Token string         `json:"token"`
	User  *sidesync.User `json:"user"`
}

// Login exchanges an email and password for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	out := &LoginResponse{}
	r := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		SetResult(out).
		SetBody(LoginRequest{Email: email, Password: password})
	if err := c.do(r, resty.MethodPost, "/login"); err != nil {
		return nil, errors.Wrapf(err, "logging in as %s", email)
	}
	return out, nil
}

// TokenCredentials authenticates with a token issued by the backend. The
// user id is read from the token's claims without checking the signature;
// the backend does that on every request.
type TokenCredentials struct {
	mu     sync.RWMutex
	token  string
	userID int64
}

// NewTokenCredentials reads the user id out of token.
func NewTokenCredentials(token string) (*TokenCredentials, error) {
	tc := &TokenCredentials{}
	if err := tc.SetToken(token); err != nil {
		return nil, err
	}
	return tc, nil
}

// SetToken swaps in a refreshed token. It must belong to the same user.
func (tc *TokenCredentials) SetToken(token string) error {
	claims := &sidesync.Claims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return errors.Wrap(err, "reading token claims")
	}
	if claims.UserID == 0 {
		return errors.New("token carries no user id")
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.userID != 0 && tc.userID != claims.UserID {
		return errors.Errorf("token belongs to user %d, not %d", claims.UserID, tc.userID)
	}
	tc.token = token
	tc.userID = claims.UserID
	return nil
}

func (tc *TokenCredentials) UserID() int64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.userID
}

func (tc *TokenCredentials) AuthHeader() string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return "Bearer " + tc.token
}
