package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionState models the listening lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateListening  SessionState = "listening"
	SessionStateFinalizing SessionState = "finalizing"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady             SessionStateReason = "ready"
	SessionReasonListeningStarted  SessionStateReason = "listening_started"
	SessionReasonExpectSpeech      SessionStateReason = "expect_speech"
	SessionReasonUserStop          SessionStateReason = "user_stop"
	SessionReasonEndpointDetected  SessionStateReason = "endpoint_detected"
	SessionReasonCaptureEnded      SessionStateReason = "capture_ended"
	SessionReasonCaptureFailed     SessionStateReason = "capture_failed"
	SessionReasonProcessingDone    SessionStateReason = "processing_done"
	SessionReasonControllerClosing SessionStateReason = "controller_closing"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup      ErrorCode = "startup"
	ErrorCodeCaptureStart ErrorCode = "capture_start"
	ErrorCodeCapture      ErrorCode = "capture"
	ErrorCodeCaptureStop  ErrorCode = "capture_stop"
	ErrorCodeCommand      ErrorCode = "command"
	ErrorCodeDirective    ErrorCode = "directive"
)

// ControlAction is a playback transport command.
type ControlAction string

const (
	ActionPlay     ControlAction = "play"
	ActionPause    ControlAction = "pause"
	ActionNext     ControlAction = "next"
	ActionPrevious ControlAction = "previous"
)

// ControlActions lists every supported transport command.
func ControlActions() []ControlAction {
	return []ControlAction{ActionPlay, ActionPause, ActionNext, ActionPrevious}
}

// Valid reports whether a is one of the supported transport commands.
func (a ControlAction) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionNext, ActionPrevious:
		return true
	default:
		return false
	}
}

// ParseControlAction resolves a user supplied name ("Next", "prev", ...) into an action.
func ParseControlAction(name string) (ControlAction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "play":
		return ActionPlay, nil
	case "pause":
		return ActionPause, nil
	case "next", "skip":
		return ActionNext, nil
	case "previous", "prev", "back":
		return ActionPrevious, nil
	default:
		return "", fmt.Errorf("unknown control action %q", name)
	}
}

// EndpointParams configures silence endpointing.
type EndpointParams struct {
	// Threshold is the highest level still considered silence.
	Threshold int
	// Silence is how long a silent run must last before the utterance ends.
	Silence time.Duration
}

// Status summarizes the current runtime status.
type Status struct {
	State               SessionState `json:"state"`
	Active              bool         `json:"active"`
	SessionID           string       `json:"sessionId,omitempty"`
	ExpectSpeechPending bool         `json:"expectSpeechPending"`
	Message             string       `json:"message,omitempty"`
}
