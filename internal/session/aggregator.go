package session

import (
	"strings"

	"github.com/lexiqai/voice-stt/internal/stt"
)

// observer is the stt.Sink bound to one handle. It queues every event on
// the manager loop tagged with the handle's generation.
type observer struct {
	m   *Manager
	gen uint64
}

func (o *observer) Partial(text string) {
	o.m.post(func() { o.m.onPartial(o.gen, text) })
}

func (o *observer) Final(result stt.Result) {
	o.m.post(func() { o.m.onFinal(o.gen, result) })
}

func (o *observer) Cancelled(cancellation stt.Cancellation) {
	o.m.post(func() { o.m.onCancelled(o.gen, cancellation) })
}

func (o *observer) Boundary(boundary stt.Boundary) {
	o.m.post(func() { o.m.onBoundary(o.gen, boundary) })
}

func (m *Manager) onPartial(gen uint64, text string) {
	if !m.isCurrent(gen) {
		return
	}
	m.interim = text
	m.opts.Metrics.RecordResult("partial")
}

// onFinal delivers finals from the live handle and from one being stopped,
// so an utterance finalized while the stop is in flight is not lost.
func (m *Manager) onFinal(gen uint64, result stt.Result) {
	live := m.isCurrent(gen)
	if !live && !m.isDraining(gen) {
		m.logger.Debug().Uint64("generation", gen).Msg("Dropping final result of released recognizer")
		return
	}
	if live {
		m.interim = ""
	}

	switch result.Reason {
	case stt.RecognizedSpeech:
		text := strings.TrimSpace(result.Text)
		if text == "" {
			return
		}
		m.opts.Metrics.RecordResult("final")
		if m.opts.OnTranscript != nil {
			m.opts.OnTranscript(text)
		}
	case stt.NoMatch:
		m.opts.Metrics.RecordResult("no_match")
	}
}

func (m *Manager) onCancelled(gen uint64, cancellation stt.Cancellation) {
	if !m.isCurrent(gen) {
		return
	}
	m.interim = ""
	if cancellation.Reason == stt.CancelError {
		detail := cancellation.Detail
		if strings.TrimSpace(detail) == "" {
			detail = genericStreamError
		}
		m.fail(ErrStreamCancelled, detail)
	}
	m.retire(false)
	m.setState(Idle)
}

func (m *Manager) onBoundary(gen uint64, boundary stt.Boundary) {
	if !m.isCurrent(gen) {
		// A late boundary of a released handle must not resurrect the session.
		return
	}

	switch boundary.Kind {
	case stt.SessionStarted:
		if m.state == Connecting {
			m.setState(Listening)
			m.opts.Metrics.RecordListening(m.current.openedAt)
		}
	case stt.SessionStopped:
		m.interim = ""
		m.retire(false)
		m.setState(Idle)
	}
}
