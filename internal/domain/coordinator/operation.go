package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
)

// State is the lifecycle position of one append operation.
type State int

// Operation states.
const (
	Idle State = iota
	Pending
	Confirmed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Operation tracks one submitted status change.
type Operation struct {
	sub model.Submission

	mu        sync.RWMutex
	state     State
	err       error
	remoteID  string
	settledAt time.Time
	done      chan struct{}
}

func newOperation(sub model.Submission) *Operation {
	return &Operation{sub: sub, state: Idle, done: make(chan struct{})}
}

// ID returns the operation id.
func (o *Operation) ID() string { return o.sub.OperationID }

// Submission returns what was submitted.
func (o *Operation) Submission() model.Submission { return o.sub }

// State returns the current state.
func (o *Operation) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Err returns the failure that rolled the operation back, if any.
func (o *Operation) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// RemoteID returns the collaborator's id for the created record.
func (o *Operation) RemoteID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.remoteID
}

// SettledAt returns when the operation left Pending.
func (o *Operation) SettledAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settledAt
}

// Done is closed once the operation is confirmed or rolled back.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation settles or ctx ends.
func (o *Operation) Wait(ctx context.Context) (State, error) {
	select {
	case <-o.done:
		return o.State(), o.Err()
	case <-ctx.Done():
		return o.State(), ctx.Err()
	}
}

func (o *Operation) begin() {
	o.mu.Lock()
	o.state = Pending
	o.mu.Unlock()
}

// settle moves a pending operation to its final state. It reports false if
// the operation had already settled.
func (o *Operation) settle(state State, remoteID string, err error, at time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Pending {
		return false
	}
	o.state, o.remoteID, o.err, o.settledAt = state, remoteID, err, at
	close(o.done)
	return true
}
