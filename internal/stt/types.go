package stt

import (
	"errors"
	"fmt"

	"github.com/lexiqai/voice-stt/internal/config"
)

// ErrMissingCredentials is returned by Settings.Validate when the credential
// or region/endpoint of the speech service is absent.
var ErrMissingCredentials = errors.New("missing speech credential or region")

// ResultReason classifies a finalized recognizer result
type ResultReason int

const (
	// RecognizedSpeech carries a finalized transcription of one utterance
	RecognizedSpeech ResultReason = iota
	// NoMatch means the service heard audio but could not recognize speech
	NoMatch
)

func (r ResultReason) String() string {
	switch r {
	case RecognizedSpeech:
		return "recognized_speech"
	case NoMatch:
		return "no_match"
	}
	return fmt.Sprintf("result_reason(%d)", int(r))
}

// Result is a finalized recognizer result
type Result struct {
	Reason ResultReason
	Text   string
}

// CancellationReason explains why the remote stream was cancelled
type CancellationReason int

const (
	// CancelError means the stream failed; Detail carries the service message
	CancelError CancellationReason = iota
	// CancelEndOfStream means the audio input ended naturally
	CancelEndOfStream
)

func (r CancellationReason) String() string {
	switch r {
	case CancelError:
		return "error"
	case CancelEndOfStream:
		return "end_of_stream"
	}
	return fmt.Sprintf("cancellation_reason(%d)", int(r))
}

// Cancellation describes a remote-initiated cancellation
type Cancellation struct {
	Reason CancellationReason
	Code   string // provider specific error code, may be empty
	Detail string // provider supplied error detail, may be empty
}

// BoundaryKind tells whether the remote session started or stopped
type BoundaryKind int

const (
	SessionStarted BoundaryKind = iota
	SessionStopped
)

func (k BoundaryKind) String() string {
	if k == SessionStarted {
		return "started"
	}
	return "stopped"
}

// Boundary is a remote session start/stop signal
type Boundary struct {
	Kind      BoundaryKind
	SessionID string
}

// Sink receives the recognizer's event stream. Implementations must not
// block for long: providers call it from their own event goroutines, in the
// order the service emits events.
type Sink interface {
	// Partial delivers a provisional transcription of the current utterance
	Partial(text string)

	// Final delivers a finalized utterance or a no-match result
	Final(result Result)

	// Cancelled reports that the stream ended by error or end of input
	Cancelled(cancellation Cancellation)

	// Boundary reports the remote session starting or stopping
	Boundary(boundary Boundary)
}

// Handle is a live recognizer bound to an audio input. It is owned by
// exactly one session and must be closed exactly once.
type Handle interface {
	// StartContinuous begins continuous recognition. The channel yields
	// exactly one value: nil once the request is accepted, or the failure.
	StartContinuous() <-chan error

	// StopContinuous ends continuous recognition, with the same contract
	StopContinuous() <-chan error

	// Close releases the recognizer and its audio input
	Close() error
}

// AudioWriter is implemented by handles whose audio is pushed by the caller
// rather than captured from a device.
type AudioWriter interface {
	Write(p []byte) (int, error)
}

// Factory opens recognizer handles for one speech provider
type Factory interface {
	// Name returns the provider name used in logs and metrics
	Name() string

	// Open creates a handle whose events are delivered to sink. On error any
	// partially acquired resources have already been released.
	Open(settings Settings, sink Sink) (Handle, error)
}

// Settings are the per-session recognizer parameters
type Settings struct {
	Provider   string
	Credential string // subscription key / API key
	Region     string // Azure region or Deepgram host
	Language   string // fixed recognition locale
	Input      string // config.InputMicrophone or config.InputStream
	SampleRate int    // PCM sample rate of pushed audio
	Model      string // provider model, if any

	hint string
}

// SettingsFromConfig extracts the session settings of the selected provider.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		Provider:   cfg.Provider,
		Credential: cfg.SpeechCredential(),
		Region:     cfg.SpeechRegion(),
		Language:   cfg.Language,
		Input:      cfg.AudioInput,
		SampleRate: cfg.SampleRate,
		hint:       cfg.MissingSpeechHint(),
	}
	if cfg.Provider == config.ProviderDeepgram {
		s.Model = cfg.DeepgramModel
	}
	return s
}

// Validate checks that the credential and region are present.
func (s Settings) Validate() error {
	if s.Credential != "" && s.Region != "" {
		return nil
	}
	if s.hint != "" {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, s.hint)
	}
	return ErrMissingCredentials
}
