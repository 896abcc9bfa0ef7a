package server

import (
	"net/http"

	"github.com/pkg/errors"
)

// Presence reports which of the requested users have a live websocket
// connection and when the others were last seen.
func (s *Server) Presence() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		var req presenceRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}

		writeJSON(w, s.hub.presence(req.IDs))
		return nil
	}
}

func (s *Server) RegisterDevice() errHandler {
	return func(w http.ResponseWriter, r *http.Request) *serverError {
		user, serr := currentUser(r)
		if serr != nil {
			return serr
		}
		var req deviceRequest
		if serr := decode(r, &req); serr != nil {
			return serr
		}
		if req.Token == "" {
			return &serverError{errors.New("empty device token"), "Missing device token", http.StatusBadRequest}
		}

		if err := s.db.RegisterDevice(user.ID, req.Token); err != nil {
			return fail(err, "Unable to register device")
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}
