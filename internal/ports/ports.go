package ports

import (
	"context"

	"hotmic/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	ChunkSize   int
}

// LevelFunc receives instantaneous audio levels in capture order. A level of
// zero means the device is not capturing.
type LevelFunc func(level int)

// CompletionFunc is invoked exactly once when a capture ends. err is nil when
// the capture was stopped or drained normally.
type CompletionFunc func(err error)

// CaptureHandle is a live capture.
type CaptureHandle interface {
	Stop() error
}

// AudioCapture starts microphone captures that report audio levels.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig, onLevel LevelFunc, onDone CompletionFunc) (CaptureHandle, error)
}

// ProgressSink receives level updates and busy/idle signals.
type ProgressSink interface {
	ReportLevel(level int)
	ReportBusy(busy bool)
}

// NopProgressSink discards progress updates for headless operation.
type NopProgressSink struct{}

func (NopProgressSink) ReportLevel(int) {}
func (NopProgressSink) ReportBusy(bool) {}

// PlaybackHandler executes transport commands. Execute may block.
type PlaybackHandler interface {
	Execute(ctx context.Context, action domain.ControlAction) error
}

// PlaybackState is optionally implemented by playback handlers that know
// whether media is currently playing.
type PlaybackState interface {
	IsPlaying() bool
}

// EventSink emits session state and errors to the surrounding application.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	SessionError(code domain.ErrorCode, detail string)
	ProcessingFinished()
}
