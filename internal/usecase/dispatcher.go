package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"hotmic/internal/domain"
	"hotmic/internal/metrics"
	"hotmic/internal/ports"
)

var (
	ErrUnknownAction    = errors.New("unknown control action")
	ErrDispatcherClosed = errors.New("action dispatcher is closed")
)

// ActionDispatcher runs each control action on its own goroutine so a slow
// playback handler never stalls level processing or endpointing.
type ActionDispatcher struct {
	handler  ports.PlaybackHandler
	progress ports.ProgressSink
	events   ports.EventSink
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewActionDispatcher(handler ports.PlaybackHandler, progress ports.ProgressSink, events ports.EventSink, logger zerolog.Logger) *ActionDispatcher {
	if progress == nil {
		progress = ports.NopProgressSink{}
	}
	return &ActionDispatcher{
		handler:  handler,
		progress: progress,
		events:   events,
		logger:   logger,
	}
}

// Dispatch signals busy and executes action asynchronously. The idle signal is
// always sent once the handler returns, fails or panics. The returned error
// only covers validation.
func (d *ActionDispatcher) Dispatch(ctx context.Context, action domain.ControlAction) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// Detach from the caller's cancellation; the action outlives the request
	// that triggered it.
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.progress.ReportBusy(true)
	metrics.ActionStarted()
	go d.run(ctx, action)
	return nil
}

// Close rejects further dispatches. Actions already running are not affected;
// use Wait to join them.
func (d *ActionDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// Wait blocks until all dispatched actions have finished.
func (d *ActionDispatcher) Wait() {
	d.wg.Wait()
}

func (d *ActionDispatcher) run(ctx context.Context, action domain.ControlAction) {
	var err error
	defer d.wg.Done()
	defer func() {
		d.progress.ReportBusy(false)
		metrics.ActionFinished(string(action), err)
		if err != nil {
			d.logger.Warn().Err(err).
				Str("event", "action.failed").
				Str("action", string(action)).
				Msg("playback command failed")
			if d.events != nil {
				d.events.SessionError(domain.ErrorCodeCommand, err.Error())
			}
		}
	}()

	err = d.execute(ctx, action)
	if err == nil {
		d.logger.Debug().Str("event", "action.done").Str("action", string(action)).Msg("playback command executed")
	}
}

func (d *ActionDispatcher) execute(ctx context.Context, action domain.ControlAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("playback handler panicked on %s: %v", action, r)
		}
	}()
	if d.handler == nil {
		return fmt.Errorf("no playback handler configured for %s", action)
	}
	if err := d.handler.Execute(ctx, action); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}
