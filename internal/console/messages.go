package console

import "hotmic/internal/domain"

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonListeningStarted:
		return "Listening"
	case domain.SessionReasonExpectSpeech:
		return "Listening for a reply"
	case domain.SessionReasonUserStop:
		return "Stopped by user. Processing..."
	case domain.SessionReasonEndpointDetected:
		return "Silence detected. Processing..."
	case domain.SessionReasonCaptureEnded:
		return "Microphone closed. Processing..."
	case domain.SessionReasonCaptureFailed:
		return "Microphone failed"
	case domain.SessionReasonProcessingDone:
		return "Done"
	case domain.SessionReasonControllerClosing:
		return "Shutting down"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCaptureStart:
		return "Microphone could not start"
	case domain.ErrorCodeCapture:
		return "Microphone capture issue"
	case domain.ErrorCodeCaptureStop:
		return "Microphone stop issue"
	case domain.ErrorCodeCommand:
		return "Playback command failed"
	case domain.ErrorCodeDirective:
		return "Directive not handled"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
