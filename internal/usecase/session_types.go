package usecase

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

var (
	ErrIllegalTransition = errors.New("illegal session transition")
	ErrStateMismatch     = errors.New("session state changed concurrently")
)

type stateEdge struct {
	from domain.SessionState
	to   domain.SessionState
}

// Only these edges exist. Failures still pass through finalizing.
var legalEdges = map[stateEdge]struct{}{
	{from: domain.SessionStateIdle, to: domain.SessionStateListening}:       {},
	{from: domain.SessionStateListening, to: domain.SessionStateFinalizing}: {},
	{from: domain.SessionStateFinalizing, to: domain.SessionStateIdle}:      {},
}

// stateMachine holds the single session state together with the session that
// owns it. idle is closed whenever the state is Idle and replaced when leaving
// it, so waiters never poll.
type stateMachine struct {
	mu      sync.Mutex
	state   domain.SessionState
	session *activeSession
	idle    chan struct{}
}

func newStateMachine() *stateMachine {
	idle := make(chan struct{})
	close(idle)
	return &stateMachine{state: domain.SessionStateIdle, idle: idle}
}

func (m *stateMachine) get() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) current() (domain.SessionState, *activeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.session
}

// idleCh returns a channel that is closed once the state is Idle.
func (m *stateMachine) idleCh() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle
}

// start moves Idle -> Listening and makes session the owner.
func (m *stateMachine) start(session *activeSession) error {
	return m.startWith(session, nil)
}

// startWith is start with onStart run under the state lock right after the
// transition, so no stop can observe the session before onStart returns.
func (m *stateMachine) startWith(session *activeSession, onStart func()) error {
	return m.advance(domain.SessionStateIdle, domain.SessionStateListening, nil, session, onStart)
}

// stop moves Listening -> Finalizing if session still owns the state.
func (m *stateMachine) stop(session *activeSession) error {
	return m.advance(domain.SessionStateListening, domain.SessionStateFinalizing, session, session, nil)
}

// finish moves Finalizing -> Idle if session still owns the state.
func (m *stateMachine) finish(session *activeSession) error {
	return m.advance(domain.SessionStateFinalizing, domain.SessionStateIdle, session, nil, nil)
}

func (m *stateMachine) advance(from, to domain.SessionState, owner, next *activeSession, hook func()) error {
	if _, ok := legalEdges[stateEdge{from: from, to: to}]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("%w: want %s, have %s", ErrStateMismatch, from, m.state)
	}
	if m.session != owner {
		return fmt.Errorf("%w: session no longer owns %s", ErrStateMismatch, from)
	}
	m.state = to
	m.session = next
	switch {
	case to == domain.SessionStateIdle:
		close(m.idle)
	case from == domain.SessionStateIdle:
		m.idle = make(chan struct{})
	}
	if hook != nil {
		hook()
	}
	return nil
}

// activeSession is the capture owned by one Listening period.
type activeSession struct {
	id        string
	trigger   string
	startedAt time.Time
	release   func()

	// period is the endpoint detector token for this Listening period.
	period atomic.Uint64

	mu         sync.Mutex
	handle     ports.CaptureHandle
	stopCause  string
	stopIssued bool
}

// attach stores the capture handle and reports whether a stop was requested
// while the capture was still starting.
func (s *activeSession) attach(handle ports.CaptureHandle) (stopNow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = handle
	return s.stopIssued
}

// requestStop records why the capture is being stopped. Only the first call
// returns ok; handle is nil if the capture has not been attached yet.
func (s *activeSession) requestStop(cause string) (handle ports.CaptureHandle, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopIssued {
		return nil, false
	}
	s.stopIssued = true
	s.stopCause = cause
	return s.handle, true
}

func (s *activeSession) cause() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCause
}
