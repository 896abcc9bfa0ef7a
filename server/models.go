package server

import (
	"github.com/tmitchel/sidesync"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  *sidesync.User `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type stampsRequest struct {
	Stamps []sidesync.Stamp `json:"stamps"`
}

type readRequest struct {
	MessageID int64 `json:"message_id"`
}

type presenceRequest struct {
	IDs []int64 `json:"ids"`
}

type deviceRequest struct {
	Token string `json:"token"`
}
