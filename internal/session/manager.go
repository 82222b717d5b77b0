package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-stt/internal/observability"
	"github.com/lexiqai/voice-stt/internal/resilience"
	"github.com/lexiqai/voice-stt/internal/stt"
)

const (
	defaultStopTimeout = 5 * time.Second
	taskQueueSize      = 256
)

var errStopTimeout = errors.New("stop request timed out")

// Options configures a Manager
type Options struct {
	// Recognizer opens the recognizer handle of each session. Required.
	Recognizer stt.Factory

	// OnTranscript receives every finalized non-empty utterance
	OnTranscript func(text string)

	// OnStatus is called whenever the status changes
	OnStatus func(status Status)

	Logger zerolog.Logger

	// Breaker guards recognizer start. Optional.
	Breaker *resilience.CircuitBreaker

	// Metrics records session metrics. Optional.
	Metrics *observability.SessionMetrics

	// StopTimeout bounds the wait for the end-recognition request before the
	// handle is released anyway.
	StopTimeout time.Duration
}

// binding is one acquired recognizer handle. gen tags the events it emits.
type binding struct {
	gen      uint64
	handle   stt.Handle
	openedAt time.Time

	releaseOnce sync.Once
	releaseErr  error
}

func (b *binding) release() error {
	b.releaseOnce.Do(func() {
		b.releaseErr = b.handle.Close()
	})
	return b.releaseErr
}

// Manager owns one streaming transcription session at a time.
//
// All state lives on a single goroutine that runs queued tasks: Start and
// Stop requests, recognizer events and the completions of asynchronous
// recognizer requests. Start, Stop and WriteAudio never wait on the remote
// service. Callbacks in Options run on that goroutine.
type Manager struct {
	settings stt.Settings
	opts     Options
	logger   zerolog.Logger

	tasks     chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	releases  sync.WaitGroup

	// Owned by the loop goroutine. At most one of current and draining is set.
	state        State
	interim      string
	err          *Error
	gen          uint64
	current      *binding
	draining     *binding
	pendingStart bool
	published    Status

	mu       sync.RWMutex
	snapshot Status
}

// NewManager creates a manager and starts its event loop. Call Close to
// release it.
func NewManager(settings stt.Settings, opts Options) *Manager {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	m := &Manager{
		settings: settings,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "session").Logger(),
		tasks:    make(chan func(), taskQueueSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go m.run()
	return m
}

// Start begins a session. It is a no-op while a session is connecting or
// listening.
func (m *Manager) Start() {
	m.post(m.start)
}

// Stop ends the active session. It is a no-op when idle.
func (m *Manager) Stop() {
	m.post(m.stop)
}

// Toggle stops a listening session and starts one otherwise, deciding on the
// state the request finds when it runs.
func (m *Manager) Toggle() {
	m.post(func() {
		if m.state == Listening {
			m.stop()
			return
		}
		m.start()
	})
}

// WriteAudio pushes PCM audio to the live recognizer, if it takes pushed
// audio. Audio written while no session is active is dropped.
func (m *Manager) WriteAudio(p []byte) {
	if len(p) == 0 {
		return
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	m.post(func() { m.writeAudio(buf) })
}

// Status returns the last published status
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Close stops any active session, waits for recognizer handles to be
// released and shuts down the event loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	<-m.loopDone
	m.releases.Wait()
}

func (m *Manager) run() {
	defer close(m.loopDone)
	for {
		select {
		case task := <-m.tasks:
			task()
			m.publish()
		case <-m.done:
			m.shutdown()
			m.publish()
			return
		}
	}
}

// post queues task on the loop. It returns false once the manager is closed.
func (m *Manager) post(task func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.tasks <- task:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) publish() {
	status := Status{State: m.state, InterimText: m.interim, Err: m.err}
	if status == m.published {
		return
	}
	m.published = status

	m.mu.Lock()
	m.snapshot = status
	m.mu.Unlock()

	if m.opts.OnStatus != nil {
		m.opts.OnStatus(status)
	}
}

func (m *Manager) setState(state State) {
	if m.state == state {
		return
	}
	m.logger.Debug().
		Str("from", m.state.String()).
		Str("to", state.String()).
		Msg("Session state changed")
	m.state = state
}

func (m *Manager) fail(kind error, message string) {
	m.err = &Error{Kind: kind, Message: message}
	m.opts.Metrics.RecordError(kindName(kind))
	m.logger.Warn().
		Str("kind", kindName(kind)).
		Str("error", message).
		Msg("Session error")
}

func (m *Manager) start() {
	if m.state != Idle || m.current != nil {
		m.logger.Debug().Str("state", m.state.String()).Msg("Start ignored, session already active")
		return
	}

	if err := m.settings.Validate(); err != nil {
		m.fail(ErrConfiguration, err.Error())
		return
	}

	m.err = nil
	m.interim = ""
	m.setState(Connecting)

	if m.draining != nil {
		// The previous handle is still being released; open once it is gone.
		m.pendingStart = true
		m.logger.Debug().Msg("Start deferred until previous recognizer is released")
		return
	}
	m.open()
}

func (m *Manager) open() {
	if m.opts.Breaker != nil && !m.opts.Breaker.Allow() {
		m.setState(Idle)
		m.fail(ErrStartFailure, startFailureMessage(resilience.ErrCircuitOpen))
		return
	}

	m.gen++
	gen := m.gen
	handle, err := m.opts.Recognizer.Open(m.settings, &observer{m: m, gen: gen})
	if err != nil {
		m.recordStart(false)
		m.logger.Error().Err(err).Msg("Failed to open recognizer")
		m.setState(Idle)
		m.fail(ErrStartFailure, startFailureMessage(err))
		return
	}

	b := &binding{gen: gen, handle: handle, openedAt: time.Now()}
	m.current = b
	m.opts.Metrics.RecordSessionStart()
	m.logger.Info().Uint64("generation", gen).Msg("Starting continuous recognition")

	started := handle.StartContinuous()
	go func() {
		err := <-started
		m.post(func() { m.onStartResult(b, err) })
	}()
}

func (m *Manager) recordStart(success bool) {
	if m.opts.Breaker != nil {
		m.opts.Breaker.RecordResult(success)
	}
}

func (m *Manager) onStartResult(b *binding, err error) {
	m.recordStart(err == nil)

	if m.current != b {
		// Stopped before the request resolved; the release path owns the handle.
		m.logger.Debug().Uint64("generation", b.gen).Err(err).Msg("Start completed for a retired session")
		return
	}

	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to start continuous recognition")
		m.interim = ""
		m.fail(ErrStartFailure, startFailureMessage(err))
		m.retire(false)
		m.setState(Idle)
		return
	}
	m.logger.Debug().Uint64("generation", b.gen).Msg("Continuous recognition start accepted")
}

func (m *Manager) stop() {
	if m.current == nil {
		if m.pendingStart {
			m.pendingStart = false
			m.setState(Idle)
			m.logger.Debug().Msg("Deferred start cancelled")
		}
		return
	}

	m.setState(Stopping)
	m.publish()

	m.interim = ""
	m.retire(true)
	m.setState(Idle)
}

// retire moves the current handle to draining and releases it in the
// background. With stop set the end-recognition request is issued first.
func (m *Manager) retire(stop bool) {
	b := m.current
	if b == nil {
		return
	}
	m.current = nil
	m.draining = b
	m.opts.Metrics.RecordSessionEnd()

	timeout := m.opts.StopTimeout
	metrics := m.opts.Metrics
	m.releases.Add(1)
	go func() {
		defer m.releases.Done()

		var stopErr error
		if stop {
			stopErr = awaitStop(b.handle, timeout)
		}
		closeErr := b.release()
		metrics.RecordHandleReleased()

		m.post(func() { m.onReleased(b, stopErr, closeErr) })
	}()
}

func awaitStop(handle stt.Handle, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-handle.StopContinuous():
		return err
	case <-timer.C:
		return errStopTimeout
	}
}

func (m *Manager) onReleased(b *binding, stopErr, closeErr error) {
	if stopErr != nil {
		m.opts.Metrics.RecordError(kindName(ErrStopFailure))
		m.logger.Warn().Err(stopErr).Uint64("generation", b.gen).Msg("Failed to stop continuous recognition")
	} else {
		m.logger.Debug().Uint64("generation", b.gen).Msg("Recognizer released")
	}
	if closeErr != nil {
		m.logger.Warn().Err(closeErr).Msg("Failed to close recognizer")
	}

	if m.draining == b {
		m.draining = nil
	}
	if m.pendingStart && m.draining == nil {
		m.pendingStart = false
		m.open()
	}
}

func (m *Manager) writeAudio(p []byte) {
	if m.current == nil || (m.state != Connecting && m.state != Listening) {
		return
	}
	w, ok := m.current.handle.(stt.AudioWriter)
	if !ok {
		return
	}
	if _, err := w.Write(p); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to write audio")
	}
}

func (m *Manager) shutdown() {
	m.pendingStart = false
	if m.current != nil {
		m.interim = ""
		m.retire(true)
	}
	m.setState(Idle)
}

func (m *Manager) isCurrent(gen uint64) bool {
	return m.current != nil && m.current.gen == gen
}

func (m *Manager) isDraining(gen uint64) bool {
	return m.draining != nil && m.draining.gen == gen
}
