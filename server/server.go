// Package server is the reference backend the sync engine talks to. It
// serves the REST API over a store.Database and pushes realtime events to
// connected websocket clients.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/store"
)

// type for context.WithValue keys
type ctxKey string

type serverError struct {
	Error   error
	Message string
	Status  int
}

// errHandler provides a less verbose way to handle errors
type errHandler func(http.ResponseWriter, *http.Request) *serverError

func (fn errHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		var log logrus.FieldLogger = logrus.WithField("component", "server")
		if l, ok := r.Context().Value(ctxKey("logger")).(logrus.FieldLogger); ok {
			log = l
		}
		if err.Status >= http.StatusInternalServerError {
			log.WithError(err.Error).Error(err.Message)
		} else {
			log.WithError(err.Error).Debug(err.Message)
		}
		writeJSONStatus(w, err.Status, errorResponse{Error: err.Message})
	}
}

// fail picks the status of a store error. Missing rows are a 404, anything
// else is the server's fault.
func fail(err error, message string) *serverError {
	if errors.Is(err, sidesync.ErrNotFound) {
		return &serverError{err, message, http.StatusNotFound}
	}
	return &serverError{err, message, http.StatusInternalServerError}
}

// Config holds the settings of the backend.
type Config struct {
	// SigningKey signs and verifies issued tokens.
	SigningKey []byte
	// TokenTTL is how long an issued token stays valid.
	TokenTTL time.Duration
	// MaxFrame is the largest event payload sent in one frame. Larger
	// events are split into chunks. Zero disables chunking.
	MaxFrame int
}

// Server routes the REST API and the websocket endpoint.
type Server struct {
	hub    *chathub
	router *mux.Router
	db     store.Database
	cfg    Config
	log    logrus.FieldLogger
}

// NewServer receives the database and uses it to spin-up the HTTP API.
// A hub for handling websocket connections is also started in a
// goroutine; Close stops it.
func NewServer(db store.Database, cfg Config, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.WithField("component", "server")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}

	s := &Server{
		hub: newChathub(cfg.MaxFrame, log.WithField("component", "hub")),
		db:  db,
		cfg: cfg,
		log: log,
	}

	router := mux.NewRouter().StrictSlash(true)
	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.Handle("/teams", s.ListTeams()).Methods("GET")
	apiRouter.Handle("/teams/notifications", s.TeamNotifications()).Methods("GET")
	apiRouter.Handle("/teams/{id}/conversations", s.ListConversations()).Methods("GET")
	apiRouter.Handle("/teams/{id}/reconnect", s.ReconnectConversations()).Methods("POST")
	apiRouter.Handle("/teams/{id}/threads", s.ListThreads()).Methods("GET")
	apiRouter.Handle("/teams/{id}/threads/notifications", s.ThreadNotification()).Methods("GET")

	apiRouter.Handle("/conversations/{id}", s.GetConversation()).Methods("GET")
	apiRouter.Handle("/conversations/{id}/join", s.JoinConversation()).Methods("POST")
	apiRouter.Handle("/conversations/{id}/leave", s.LeaveConversation()).Methods("POST")

	apiRouter.Handle("/messages", s.ListMessages()).Methods("GET")
	apiRouter.Handle("/messages", s.CreateMessage()).Methods("POST")
	apiRouter.Handle("/messages/reconnect", s.ReconnectMessages()).Methods("POST")
	apiRouter.Handle("/messages/{id}", s.UpdateMessage()).Methods("PUT")
	apiRouter.Handle("/messages/{id}", s.DeleteMessage()).Methods("DELETE")

	apiRouter.Handle("/threads/{id}", s.GetThread()).Methods("GET")
	apiRouter.Handle("/threads/{id}/read", s.MarkThreadRead()).Methods("POST")

	apiRouter.Handle("/notifications", s.Summary()).Methods("GET")
	apiRouter.Handle("/notifications/reconnect", s.ReconnectNotifications()).Methods("POST")
	apiRouter.Handle("/channels/{id}/read", s.MarkRead(false)).Methods("POST")
	apiRouter.Handle("/dmgs/{id}/read", s.MarkRead(true)).Methods("POST")

	apiRouter.Handle("/users/presence", s.Presence()).Methods("POST")
	apiRouter.Handle("/devices", s.RegisterDevice()).Methods("POST")
	apiRouter.Use(s.logRequests, s.requireAuth) // must be authenticated to use the api endpoints

	router.Handle("/ws", s.requireAuth(s.HandleWS()))
	router.Handle("/login", s.logRequests(s.Login())).Methods("POST")

	s.router = router
	go s.hub.run()
	return s
}

// Serve returns the handler to be used in http.ListenAndServe.
func (s *Server) Serve() http.Handler {
	return s.router
}

// Close disconnects every websocket client and stops the hub.
func (s *Server) Close() {
	s.hub.close()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every request once it has been served and hands a
// request scoped logger to the handlers.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path})
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(withLogger(r.Context(), log)))

		log.WithFields(logrus.Fields{
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("served request")
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v interface{}) *serverError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &serverError{err, "Unable to decode payload", http.StatusBadRequest}
	}
	return nil
}

func idParam(r *http.Request) (int64, *serverError) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &serverError{err, "Unable to get id from request param", http.StatusBadRequest}
	}
	return id, nil
}
