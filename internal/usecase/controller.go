package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hotmic/internal/domain"
	xlog "hotmic/internal/log"
	"hotmic/internal/metrics"
	"hotmic/internal/ports"
)

var (
	ErrCaptureStart     = errors.New("audio capture could not start")
	ErrControllerClosed = errors.New("session controller is closed")
)

const DefaultExpectSpeechTimeout = 30 * time.Second

const (
	triggerUser         = "user"
	triggerExpectSpeech = "expect_speech"

	causeUser         = "user"
	causeEndpoint     = "endpoint"
	causeCaptureEnded = "capture_ended"
	causeFinish       = "finish"
	causeShutdown     = "shutdown"
)

// Config controls listening behavior.
type Config struct {
	Audio               ports.AudioConfig
	Endpoint            domain.EndpointParams
	ExpectSpeechTimeout time.Duration
}

// SessionController owns the listening state machine, the endpoint detector
// and the action dispatcher.
type SessionController struct {
	audio      ports.AudioCapture
	playback   ports.PlaybackHandler
	progress   ports.ProgressSink
	events     ports.EventSink
	detector   *EndpointDetector
	dispatcher *ActionDispatcher
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time

	state *stateMachine

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu            sync.Mutex
	expectPending bool
	closed        bool
}

func NewSessionController(
	audio ports.AudioCapture,
	playback ports.PlaybackHandler,
	progress ports.ProgressSink,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	return newSessionController(audio, playback, progress, events, cfg, realAfterFunc)
}

func newSessionController(
	audio ports.AudioCapture,
	playback ports.PlaybackHandler,
	progress ports.ProgressSink,
	events ports.EventSink,
	cfg Config,
	after afterFunc,
) *SessionController {
	if progress == nil {
		progress = ports.NopProgressSink{}
	}
	if cfg.ExpectSpeechTimeout <= 0 {
		cfg.ExpectSpeechTimeout = DefaultExpectSpeechTimeout
	}
	logger := xlog.WithComponent("session")

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		audio:    audio,
		playback: playback,
		progress: progress,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		state:    newStateMachine(),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	c.detector = newEndpointDetector(cfg.Endpoint, c.onEndpoint, after)
	c.dispatcher = NewActionDispatcher(playback, progress, events, xlog.WithComponent("dispatcher"))
	return c
}

// Toggle starts listening when idle and requests a stop while listening.
// It is a no-op while a stop is being finalized. A capture start failure is
// reported to the event sink and returned.
func (c *SessionController) Toggle(ctx context.Context) error {
	switch state, session := c.state.current(); state {
	case domain.SessionStateIdle:
		err := c.startListening(ctx, triggerUser)
		if errors.Is(err, ErrStateMismatch) {
			c.logger.Debug().Str("event", "toggle.raced").Msg("state changed before listening could start")
			return nil
		}
		return err
	case domain.SessionStateListening:
		c.requestStop(session, causeUser, domain.SessionReasonUserStop)
		return nil
	default:
		c.logger.Debug().Str("event", "toggle.ignored").Str("state", string(state)).Msg("toggle ignored while finalizing")
		return nil
	}
}

// ExpectSpeech waits, without holding any lock, until the current utterance is
// fully processed and then starts listening. At most one wait is pending; extra
// directives are suppressed.
func (c *SessionController) ExpectSpeech(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.expectPending {
		c.mu.Unlock()
		metrics.RecordDirective("suppressed")
		c.logger.Debug().Str("event", "directive.suppressed").Msg("expect-speech already pending")
		return
	}
	c.expectPending = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.awaitIdleAndListen(ctx)
}

func (c *SessionController) awaitIdleAndListen(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.expectPending = false
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.cfg.ExpectSpeechTimeout)
	defer timer.Stop()

	select {
	case <-c.state.idleCh():
	case <-timer.C:
		metrics.RecordDirective("timeout")
		c.logger.Warn().Str("event", "directive.timeout").Dur("timeout", c.cfg.ExpectSpeechTimeout).Msg("gave up waiting for idle")
		c.events.SessionError(domain.ErrorCodeDirective, "timed out waiting for the current utterance to finish")
		return
	case <-ctx.Done():
		metrics.RecordDirective("cancelled")
		return
	case <-c.baseCtx.Done():
		metrics.RecordDirective("cancelled")
		return
	}

	err := c.startListening(ctx, triggerExpectSpeech)
	switch {
	case err == nil:
		metrics.RecordDirective("started")
	case errors.Is(err, ErrStateMismatch):
		// Someone else started listening first; the directive is satisfied.
		metrics.RecordDirective("suppressed")
		c.logger.Debug().Str("event", "directive.suppressed").Msg("listening already started")
	default:
		metrics.RecordDirective("failed")
	}
}

// OnLevel forwards one audio level to the endpoint detector and the progress sink.
func (c *SessionController) OnLevel(level int) {
	c.detector.Observe(level)
	c.progress.ReportLevel(level)
}

// levelsFor binds a capture's level stream to session. Samples that arrive
// after another session took over are dropped.
func (c *SessionController) levelsFor(session *activeSession) ports.LevelFunc {
	return func(level int) {
		if _, owner := c.state.current(); owner != session {
			return
		}
		c.detector.ObservePeriod(session.period.Load(), level)
		c.progress.ReportLevel(level)
	}
}

// Finish clears the busy signal and notifies completion for the current
// session. Calling it while idle does nothing.
func (c *SessionController) Finish() {
	state, session := c.state.current()
	switch state {
	case domain.SessionStateListening:
		c.requestStop(session, causeFinish, domain.SessionReasonProcessingDone)
		c.finishSession(session, domain.SessionReasonProcessingDone)
	case domain.SessionStateFinalizing:
		c.finishSession(session, domain.SessionReasonProcessingDone)
	}
}

// Dispatch runs a playback control action without touching session state.
func (c *SessionController) Dispatch(ctx context.Context, action domain.ControlAction) error {
	if c.isClosed() {
		return ErrControllerClosed
	}
	if err := c.dispatcher.Dispatch(ctx, action); err != nil {
		if errors.Is(err, ErrDispatcherClosed) {
			return ErrControllerClosed
		}
		return err
	}
	return nil
}

// TogglePlayback pauses when the playback handler reports it is playing and
// plays otherwise.
func (c *SessionController) TogglePlayback(ctx context.Context) error {
	action := domain.ActionPlay
	if state, ok := c.playback.(ports.PlaybackState); ok && state.IsPlaying() {
		action = domain.ActionPause
	}
	return c.Dispatch(ctx, action)
}

// UpdateEndpoint changes endpointing parameters from the next listening period.
func (c *SessionController) UpdateEndpoint(params domain.EndpointParams) {
	c.detector.SetParams(params)
	applied := c.detector.Params()
	c.logger.Info().
		Str("event", "endpoint.updated").
		Int("threshold", applied.Threshold).
		Dur("silence", applied.Silence).
		Msg("endpoint parameters updated")
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	state, session := c.state.current()
	status := domain.Status{State: state, Active: state != domain.SessionStateIdle}
	if session != nil {
		status.SessionID = session.id
	}
	c.mu.Lock()
	status.ExpectSpeechPending = c.expectPending
	c.mu.Unlock()
	return status
}

// Close cancels pending directive waits, stops an active capture and waits for
// background work to drain or ctx to expire.
func (c *SessionController) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.dispatcher.Close()
	if state, session := c.state.current(); state == domain.SessionStateListening {
		c.requestStop(session, causeShutdown, domain.SessionReasonControllerClosing)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		c.dispatcher.Wait()
		<-c.state.idleCh()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SessionController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *SessionController) startListening(ctx context.Context, trigger string) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	// Captures outlive the caller's request but not the controller.
	if ctx == nil {
		ctx = context.Background()
	}
	captureCtx, cancelCapture := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(c.baseCtx, cancelCapture)
	session := &activeSession{
		id:        uuid.NewString(),
		trigger:   trigger,
		startedAt: c.now(),
		release: func() {
			unlink()
			cancelCapture()
		},
	}
	var period uint64
	if err := c.state.startWith(session, func() {
		period = c.detector.Begin()
		session.period.Store(period)
	}); err != nil {
		session.release()
		return err
	}
	logger := c.logger.With().Str("session_id", session.id).Logger()

	reason := domain.SessionReasonListeningStarted
	if trigger == triggerExpectSpeech {
		reason = domain.SessionReasonExpectSpeech
	}
	c.events.SessionStateChanged(domain.SessionStateListening, reason)

	handle, err := c.audio.Start(captureCtx, c.cfg.Audio, c.levelsFor(session), func(err error) {
		c.onCaptureDone(session, err)
	})
	if err != nil {
		c.detector.End(period)
		if _, first := session.requestStop(causeCaptureEnded); !first {
			// Stopped or finished while the capture was starting.
			logger.Info().Err(err).Str("event", "capture.start_cancelled").Str("cause", session.cause()).Msg("capture start cancelled")
			c.finishSession(session, domain.SessionReasonProcessingDone)
			return nil
		}

		err = fmt.Errorf("%w: %w", ErrCaptureStart, err)
		metrics.RecordCaptureFailure("start")
		logger.Error().Err(err).Str("event", "capture.start_failed").Msg("could not start listening")
		c.events.SessionError(domain.ErrorCodeCaptureStart, err.Error())

		if stopErr := c.state.stop(session); stopErr == nil {
			c.events.SessionStateChanged(domain.SessionStateFinalizing, domain.SessionReasonCaptureFailed)
		}
		c.finishSession(session, domain.SessionReasonCaptureFailed)
		return err
	}

	if session.attach(handle) {
		c.stopCapture(session, handle)
	}

	metrics.RecordSessionStarted(trigger)
	logger.Info().Str("event", "session.started").Str("trigger", trigger).Msg("listening")
	return nil
}

// requestStop moves Listening -> Finalizing and stops the capture. It reports
// whether this call performed the transition.
func (c *SessionController) requestStop(session *activeSession, cause string, reason domain.SessionStateReason) bool {
	if session == nil {
		return false
	}
	if err := c.state.stop(session); err != nil {
		return false
	}

	c.progress.ReportBusy(true)
	c.detector.End(session.period.Load())
	c.events.SessionStateChanged(domain.SessionStateFinalizing, reason)

	listened := c.now().Sub(session.startedAt)
	metrics.RecordSessionStopped(cause, listened.Seconds())
	c.logger.Info().
		Str("event", "session.stopping").
		Str("session_id", session.id).
		Str("cause", cause).
		Dur("listened", listened).
		Msg("stop requested")

	if handle, ok := session.requestStop(cause); ok && handle != nil {
		c.stopCapture(session, handle)
	}
	return true
}

func (c *SessionController) stopCapture(session *activeSession, handle ports.CaptureHandle) {
	if err := handle.Stop(); err != nil {
		metrics.RecordCaptureFailure("stop")
		c.logger.Warn().Err(err).Str("event", "capture.stop_failed").Str("session_id", session.id).Msg("capture did not stop cleanly")
		c.events.SessionError(domain.ErrorCodeCaptureStop, "failed to stop audio capture cleanly")
	}
}

func (c *SessionController) onCaptureDone(session *activeSession, err error) {
	if err != nil {
		metrics.RecordCaptureFailure("run")
		c.logger.Warn().Err(err).Str("event", "capture.failed").Str("session_id", session.id).Msg("capture ended with error")
		c.events.SessionError(domain.ErrorCodeCapture, err.Error())
	}

	state, owner := c.state.current()
	if owner != session {
		c.logger.Debug().Str("event", "capture.stale_completion").Str("session_id", session.id).Msg("ignoring completion of a finished session")
		return
	}
	if state == domain.SessionStateListening {
		c.requestStop(session, causeCaptureEnded, domain.SessionReasonCaptureEnded)
	}
	c.finishSession(session, domain.SessionReasonProcessingDone)
}

func (c *SessionController) onEndpoint() {
	_, session := c.state.current()
	if c.requestStop(session, causeEndpoint, domain.SessionReasonEndpointDetected) {
		metrics.RecordEndpointFired()
	}
}

func (c *SessionController) finishSession(session *activeSession, reason domain.SessionStateReason) {
	if err := c.state.finish(session); err != nil {
		return
	}
	session.release()
	c.progress.ReportBusy(false)
	c.events.SessionStateChanged(domain.SessionStateIdle, reason)
	c.events.ProcessingFinished()
	c.logger.Info().Str("event", "session.finished").Str("session_id", session.id).Str("reason", string(reason)).Msg("idle")
}
