package model

import (
	"sync"
	"time"

	"github.com/okian/eldlog/internal/domain/status"
)

// Submission is a validated append request travelling from the coordinator
// to the collaborator.
type Submission struct {
	OperationID string
	Status      status.Status
	Time        time.Time
	TripID      string
	SubmittedAt time.Time
}

// Session is the per-view context: which trip new events belong to and the
// location day windows are computed in. It is created when a timeline
// session starts and closed when the session ends.
type Session struct {
	mu        sync.RWMutex
	tripID    string
	location  *time.Location
	startedAt time.Time
	closed    bool
}

// NewSession starts a session. A nil location means time.Local.
func NewSession(tripID string, loc *time.Location) *Session {
	if loc == nil {
		loc = time.Local
	}
	return &Session{tripID: tripID, location: loc, startedAt: time.Now()}
}

// TripID returns the current trip identifier.
func (s *Session) TripID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tripID
}

// SetTripID switches the session to another trip.
func (s *Session) SetTripID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.tripID = id
	}
}

// Location returns the session's time zone.
func (s *Session) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Close clears the session state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tripID = ""
	s.closed = true
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
