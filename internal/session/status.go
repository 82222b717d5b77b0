package session

// Status is a snapshot of the session as the UI sees it
type Status struct {
	State       State
	InterimText string
	Err         *Error
}

// IsListening reports whether the recognizer confirmed the session
func (s Status) IsListening() bool {
	return s.State == Listening
}

// IsConnecting reports whether a start is in progress
func (s Status) IsConnecting() bool {
	return s.State == Connecting
}

// LastError returns the error message, or "" when there is none
func (s Status) LastError() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}
