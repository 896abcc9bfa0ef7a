package mocks

import (
	"strconv"
	"sync"
)

// Credentials authenticates as a fixed user.
type Credentials struct {
	ID int64
}

func (c Credentials) UserID() int64 { return c.ID }

func (c Credentials) AuthHeader() string {
	return "Bearer mock-" + strconv.FormatInt(c.ID, 10)
}

// Network records the degraded-connectivity indicator.
type Network struct {
	mu      sync.Mutex
	history []bool
}

func (n *Network) SetDegraded(degraded bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, degraded)
}

// Degraded returns the last reported value.
func (n *Network) Degraded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.history) == 0 {
		return false
	}
	return n.history[len(n.history)-1]
}

// History returns every reported value in order.
func (n *Network) History() []bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]bool(nil), n.history...)
}
