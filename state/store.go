// Package state holds the normalized client-side collections and the view
// state. Every write goes through Store.Update so each change is one atomic
// transaction and one notification to listeners.
package state

import (
	"sync"

	"github.com/tmitchel/sidesync"
)

// Listener is called once after every committed transaction.
type Listener func()

// Store is the single shared entity store. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	teams                map[int64]*sidesync.Team
	conversations        map[int64]*sidesync.Conversation
	messages             map[int64]*sidesync.Message
	pending              map[string]*sidesync.Message
	users                map[int64]*sidesync.User
	channelNotifications map[int64]*sidesync.ChannelNotification
	teamNotifications    map[int64]*sidesync.TeamNotification
	threadNotifications  map[int64]*sidesync.ThreadNotification
	threads              map[int64][]int64
	thread               *sidesync.ThreadDetail
	summary              sidesync.Summary
	view                 sidesync.View
	revision             int64

	lmu          sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		teams:                make(map[int64]*sidesync.Team),
		conversations:        make(map[int64]*sidesync.Conversation),
		messages:             make(map[int64]*sidesync.Message),
		pending:              make(map[string]*sidesync.Message),
		users:                make(map[int64]*sidesync.User),
		channelNotifications: make(map[int64]*sidesync.ChannelNotification),
		teamNotifications:    make(map[int64]*sidesync.TeamNotification),
		threadNotifications:  make(map[int64]*sidesync.ThreadNotification),
		threads:              make(map[int64][]int64),
		listeners:            make(map[int]Listener),
	}
}

// Tx is the write handle passed to Update. It must not escape the callback.
type Tx struct {
	s *Store
}

// Update runs fn as one transaction. Listeners are notified after the lock
// is released, so they may read the store.
func (s *Store) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	fn(&Tx{s: s})
	s.revision++
	s.mu.Unlock()

	s.notify()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

// Revision counts committed transactions.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) notify() {
	s.lmu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.lmu.Unlock()

	for _, l := range ls {
		l()
	}
}

// View returns the current view state.
func (s *Store) View() sidesync.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// View returns the view state as seen inside the transaction.
func (tx *Tx) View() sidesync.View {
	return tx.s.view
}

// SetView replaces the view state.
func (tx *Tx) SetView(v sidesync.View) {
	tx.s.view = v
}

// ResetView drops the selected conversation and side pane but keeps the
// selected team.
func (tx *Tx) ResetView() {
	tx.s.view = sidesync.View{SelectedTeam: tx.s.view.SelectedTeam}
	tx.s.thread = nil
}
