package usecase

import (
	"errors"
	"testing"

	"hotmic/internal/domain"
)

func TestStateMachineLegalCycle(t *testing.T) {
	t.Parallel()

	m := newStateMachine()
	select {
	case <-m.idleCh():
	default:
		t.Fatalf("expected idle channel closed initially")
	}

	session := &activeSession{id: "s1"}
	if err := m.start(session); err != nil {
		t.Fatalf("idle->listening: %v", err)
	}
	waiter := m.idleCh()
	select {
	case <-waiter:
		t.Fatalf("idle channel must be open while listening")
	default:
	}

	if err := m.stop(session); err != nil {
		t.Fatalf("listening->finalizing: %v", err)
	}
	if state, owner := m.current(); state != domain.SessionStateFinalizing || owner != session {
		t.Fatalf("unexpected state %s owner %v", state, owner)
	}
	if err := m.finish(session); err != nil {
		t.Fatalf("finalizing->idle: %v", err)
	}

	select {
	case <-waiter:
	default:
		t.Fatalf("expected waiter to be released on idle")
	}
	if _, owner := m.current(); owner != nil {
		t.Fatalf("expected owner cleared on idle")
	}
}

func TestStateMachineRejectsIllegalEdges(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from domain.SessionState
		to   domain.SessionState
	}{
		{domain.SessionStateIdle, domain.SessionStateFinalizing},
		{domain.SessionStateListening, domain.SessionStateIdle},
		{domain.SessionStateFinalizing, domain.SessionStateListening},
		{domain.SessionStateIdle, domain.SessionStateIdle},
	}
	for _, tc := range cases {
		m := newStateMachine()
		err := m.advance(tc.from, tc.to, nil, nil, nil)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s -> %s: expected ErrIllegalTransition, got %v", tc.from, tc.to, err)
		}
		if m.get() != domain.SessionStateIdle {
			t.Fatalf("state mutated by illegal edge: %s", m.get())
		}
	}
}

func TestStateMachineRejectsStaleSession(t *testing.T) {
	t.Parallel()

	m := newStateMachine()
	first := &activeSession{id: "first"}
	stale := &activeSession{id: "stale"}

	if err := m.stop(first); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected mismatch while idle, got %v", err)
	}
	if err := m.start(first); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.start(stale); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected second start to fail, got %v", err)
	}
	if err := m.stop(stale); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected stale stop to fail, got %v", err)
	}
	if m.get() != domain.SessionStateListening {
		t.Fatalf("stale session changed state to %s", m.get())
	}
}

func TestActiveSessionRequestStopBeforeAttach(t *testing.T) {
	t.Parallel()

	s := &activeSession{id: "s1"}
	handle, ok := s.requestStop("endpoint")
	if !ok || handle != nil {
		t.Fatalf("expected first stop to be accepted without handle")
	}
	if _, ok := s.requestStop("user"); ok {
		t.Fatalf("expected second stop request to be ignored")
	}
	if !s.attach(&fakeCaptureHandle{}) {
		t.Fatalf("expected attach to report the pending stop")
	}
	if s.cause() != "endpoint" {
		t.Fatalf("unexpected stop cause %q", s.cause())
	}
}

func TestStateMachineStartWithRunsHookOnlyOnTransition(t *testing.T) {
	t.Parallel()

	m := newStateMachine()
	first := &activeSession{id: "first"}
	ran := 0
	if err := m.startWith(first, func() { ran++ }); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if ran != 1 {
		t.Fatalf("expected hook to run once, ran %d times", ran)
	}

	if err := m.startWith(&activeSession{id: "second"}, func() { ran++ }); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
	if ran != 1 {
		t.Fatalf("hook ran for a rejected start")
	}
}
