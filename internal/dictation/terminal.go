package dictation

import (
	"context"
	"fmt"
	"io"

	"github.com/lexiqai/voice-stt/internal/session"
	"github.com/lexiqai/voice-stt/internal/transcript"
)

// Terminal renders one session on a terminal: interim text on a single
// rewritten line, finals on their own lines.
//
// OnStatus only signals that the status changed. Run reads the latest status
// from the manager on every wake-up, so a burst of updates can never hide the
// final idle status.
type Terminal struct {
	out        io.Writer
	transcript *transcript.Buffer
	wake       chan struct{}
}

// NewTerminal creates a terminal renderer writing to out
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		out:        out,
		transcript: transcript.NewBuffer(),
		wake:       make(chan struct{}, 1),
	}
}

// Transcript returns the accumulated transcript
func (t *Terminal) Transcript() *transcript.Buffer {
	return t.transcript
}

// OnTranscript is a session.Options OnTranscript callback
func (t *Terminal) OnTranscript(text string) {
	t.transcript.Append(text)
	fmt.Fprintf(t.out, "\r\033[K%s\n", text)
}

// OnStatus is a session.Options OnStatus callback. It never blocks the
// manager loop.
func (t *Terminal) OnStatus(session.Status) {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run renders status changes until the session returns to idle or ctx is
// done. It returns the session error that ended the session, if any.
// status is normally Manager.Status.
func (t *Terminal) Run(ctx context.Context, status func() session.Status) error {
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out, "\r\033[KStopping...")
			return nil
		case <-t.wake:
		}

		// Every wake-up follows a change made after Start, so idle means
		// the session is over.
		current := status()
		switch {
		case current.IsConnecting():
			fmt.Fprint(t.out, "\r\033[KConnecting...")
		case current.IsListening():
			if current.InterimText == "" {
				fmt.Fprint(t.out, "\r\033[KListening (Ctrl+C to stop)")
			} else {
				fmt.Fprintf(t.out, "\r\033[K%s", current.InterimText)
			}
		case current.State == session.Idle:
			if current.Err != nil {
				fmt.Fprintf(t.out, "\r\033[KError: %s\n", current.LastError())
				return current.Err
			}
			return nil
		}
	}
}
