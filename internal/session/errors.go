package session

import "errors"

// Error kinds surfaced through Status.Err. Use errors.Is to classify.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrStartFailure    = errors.New("start failure")
	ErrStreamCancelled = errors.New("stream cancelled")
	ErrStopFailure     = errors.New("stop failure")
)

const (
	genericStreamError  = "Speech recognition error"
	genericStartFailure = "Failed to start listening."
)

// Error is the last error of a session. Message is what the UI shows.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// KindName returns a stable identifier of the error kind for clients and metrics.
func (e *Error) KindName() string {
	return kindName(e.Kind)
}

func kindName(kind error) string {
	switch kind {
	case ErrConfiguration:
		return "configuration"
	case ErrStartFailure:
		return "start_failure"
	case ErrStreamCancelled:
		return "stream_cancelled"
	case ErrStopFailure:
		return "stop_failure"
	}
	return "unknown"
}

func startFailureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return genericStartFailure
	}
	return err.Error()
}
