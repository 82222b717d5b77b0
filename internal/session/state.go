package session

import "fmt"

// State is the lifecycle state of a transcription session
type State int

const (
	Idle State = iota
	Connecting
	Listening
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
