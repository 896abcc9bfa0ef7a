// Package sidesync keeps a client's view of teams, conversations, messages,
// threads and notifications consistent with a server that changes them
// concurrently. This package holds the shared data model and the interfaces
// of the collaborators the engine talks to.
package sidesync

import "github.com/pkg/errors"

// Sentinel errors shared across packages.
var (
	ErrNotFound       = errors.New("not found")
	ErrNotMember      = errors.New("not a member of the conversation")
	ErrUnknownTeam    = errors.New("unknown team")
	ErrMissingThread  = errors.New("thread detail requires a message id")
	ErrUnknownMessage = errors.New("unknown message")
)
