package navigator

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"checkin/internal/attendee"
)

var ErrSessionNotFound = errors.New("session not found")

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID    string        `json:"id"`
	Mode  attendee.Kind `json:"mode"`
	Query string        `json:"query"`
	State
}

// Session is one operator's screen state: the attendee kind being worked
// ("mode"), the search query and the navigator. The query survives every
// transition.
type Session struct {
	id string

	mu    sync.Mutex
	mode  attendee.Kind
	query string
	nav   *Navigator

	// touched is read without mu so the registry never waits on a busy session.
	touched atomic.Int64
}

// NewSession starts a session in mode on the pending list.
func NewSession(mode attendee.Kind) *Session {
	s := &Session{id: uuid.NewString(), mode: mode, nav: New()}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{ID: s.id, Mode: s.mode, Query: s.query, State: s.nav.State()}
}

// Do runs fn against the navigator under the session lock.
func (s *Session) Do(fn func(n *Navigator) error) (Snapshot, error) {
	return s.Act(func(_ attendee.Kind, n *Navigator) error { return fn(n) })
}

// Act is Do with the current mode. A remote write started from a detail view
// runs inside fn so the operator cannot navigate away mid-write.
func (s *Session) Act(fn func(mode attendee.Kind, n *Navigator) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	err := fn(s.mode, s.nav)
	return s.snapshot(), err
}

// SetQuery replaces the search query without touching the view.
func (s *Session) SetQuery(q string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.query = q
	return s.snapshot()
}

// SetMode switches attendee kind. A different kind returns to the pending list
// because the selection belongs to the old roster.
func (s *Session) SetMode(mode attendee.Kind) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if mode != s.mode {
		s.mode = mode
		s.nav.Reset()
	}
	return s.snapshot()
}

func (s *Session) touch() { s.touched.Store(time.Now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.touched.Load()) }

// Sessions is a registry of live sessions.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{byID: map[string]*Session{}}
}

// Create registers a new session in mode.
func (r *Sessions) Create(mode attendee.Kind) *Session {
	s := NewSession(mode)
	r.mu.Lock()
	r.byID[s.id] = s
	r.mu.Unlock()
	return s
}

// Get looks a session up by id.
func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete drops a session.
func (r *Sessions) Delete(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// Prune drops sessions idle for longer than maxIdle and returns how many. It
// does not wait for sessions that are in use.
func (r *Sessions) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.byID {
		if s.idleSince().Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
