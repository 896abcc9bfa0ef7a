package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmitchel/sidesync"
)

func withLogger(ctx context.Context, log logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey("logger"), log)
}

func (s *Server) logger(r *http.Request) logrus.FieldLogger {
	if l, ok := r.Context().Value(ctxKey("logger")).(logrus.FieldLogger); ok {
		return l
	}
	return s.log
}

// currentUser returns the user requireAuth put in the request context.
func currentUser(r *http.Request) (sidesync.User, *serverError) {
	user, ok := r.Context().Value(ctxKey("user_info")).(sidesync.User)
	if !ok {
		return sidesync.User{}, &serverError{errors.New("Unable to decode user info from context"), "Unable to decode current user", http.StatusBadRequest}
	}
	return user, nil
}

// Login returns an errHandler to deal with user attempts to log in. The
// user is authenticated and a signed token is returned with the user.
func (s *Server) Login() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		var auther loginRequest
		if err := decode(r, &auther); err != nil {
			return err
		}

		user, err := s.db.UserForAuth(auther.Email)
		if err != nil {
			if errors.Is(err, sidesync.ErrNotFound) {
				return &serverError{err, "Incorrect username/password", http.StatusUnauthorized}
			}
			return &serverError{err, "Unable to look up user", http.StatusInternalServerError}
		}
		if err := bcrypt.CompareHashAndPassword(user.Password, []byte(auther.Password)); err != nil {
			return &serverError{err, "Incorrect username/password", http.StatusUnauthorized}
		}

		tokenString, err := s.issueToken(user)
		if err != nil {
			return &serverError{err, "Unable to sign token", http.StatusInternalServerError}
		}

		writeJSON(w, loginResponse{Token: tokenString, User: user})
		return nil
	}
}

func (s *Server) issueToken(user *sidesync.User) (string, error) {
	claims := &sidesync.Claims{
		UserID:        user.ID,
		Email:         user.Email,
		UserName:      user.DisplayName,
		Authenticated: true,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(s.cfg.TokenTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.SigningKey)
}

// requireAuth provides an authentication middleware. The bearer token is
// verified and the user it names is stored in the request context.
func (s *Server) requireAuth(f http.Handler) http.Handler {
	return errHandler(func(w http.ResponseWriter, r *http.Request) *serverError {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return &serverError{errors.New("missing bearer token"), "Unauthorized", http.StatusUnauthorized}
		}

		claims := &sidesync.Claims{}
		tkn, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return s.cfg.SigningKey, nil
		})
		if err != nil || !tkn.Valid {
			return &serverError{err, "Unauthorized", http.StatusUnauthorized}
		}

		// Check if user is authenticated
		if !claims.Authenticated || claims.UserID == 0 {
			return &serverError{errors.New("token not authenticated"), "Forbidden", http.StatusForbidden}
		}

		user := sidesync.User{
			ID:          claims.UserID,
			Email:       claims.Email,
			DisplayName: claims.UserName,
		}

		ctx := context.WithValue(r.Context(), ctxKey("user_info"), user)
		ctx = withLogger(ctx, s.logger(r).WithField("user", user.ID))
		f.ServeHTTP(w, r.WithContext(ctx))
		return nil
	})
}
