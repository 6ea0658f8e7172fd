package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves time forward, running due timers in order outside the lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := make([]*manualTimer, 0, len(c.timers))
		for _, t := range c.timers {
			if !t.fired && !t.stopped && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type fakeCaptureHandle struct {
	mu        sync.Mutex
	stopCalls int
	stopErr   error
	onStop    func()
}

func (h *fakeCaptureHandle) Stop() error {
	h.mu.Lock()
	h.stopCalls++
	onStop := h.onStop
	err := h.stopErr
	h.mu.Unlock()
	if onStop != nil {
		onStop()
	}
	return err
}

func (h *fakeCaptureHandle) stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCalls
}

type captureCall struct {
	ctx     context.Context
	handle  *fakeCaptureHandle
	onLevel ports.LevelFunc
	onDone  ports.CompletionFunc
}

// fakeAudioCapture hands out one handle per Start. With completeOnStop the
// completion callback runs as soon as Stop is called. startOnce, if set, runs
// in place of the next Start and its error is returned.
type fakeAudioCapture struct {
	mu             sync.Mutex
	calls          []*captureCall
	err            error
	completeOnStop bool
	stopErr        error
	onStart        func()
	startOnce      func(ctx context.Context) error
}

func (f *fakeAudioCapture) Start(ctx context.Context, _ ports.AudioConfig, onLevel ports.LevelFunc, onDone ports.CompletionFunc) (ports.CaptureHandle, error) {
	f.mu.Lock()
	if script := f.startOnce; script != nil {
		f.startOnce = nil
		f.mu.Unlock()
		return nil, script(ctx)
	}
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	call := &captureCall{ctx: ctx, handle: &fakeCaptureHandle{stopErr: f.stopErr}, onLevel: onLevel, onDone: onDone}
	if f.completeOnStop {
		call.handle.onStop = func() { onDone(nil) }
	}
	f.calls = append(f.calls, call)
	onStart := f.onStart
	f.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	return call.handle, nil
}

func (f *fakeAudioCapture) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAudioCapture) call(i int) *captureCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeProgressSink struct {
	mu     sync.Mutex
	levels []int
	busy   []bool
}

func (f *fakeProgressSink) ReportLevel(level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
}

func (f *fakeProgressSink) ReportBusy(busy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = append(f.busy, busy)
}

func (f *fakeProgressSink) snapshotLevels() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.levels))
	copy(out, f.levels)
	return out
}

func (f *fakeProgressSink) countBusy(value bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.busy {
		if b == value {
			n++
		}
	}
	return n
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu       sync.Mutex
	states   []stateEvent
	errors   []errEvent
	finished int
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) ProcessingFinished() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) finishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

type fakePlayback struct {
	mu      sync.Mutex
	started chan domain.ControlAction
	release chan struct{}
	err     error
	panicOn domain.ControlAction
	playing bool
	done    []domain.ControlAction
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{started: make(chan domain.ControlAction, 16)}
}

func (f *fakePlayback) Execute(_ context.Context, action domain.ControlAction) error {
	f.started <- action
	if f.release != nil {
		<-f.release
	}
	if action == f.panicOn {
		panic("handler exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, action)
	return f.err
}

func (f *fakePlayback) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

var errFakeCapture = errors.New("microphone busy")
