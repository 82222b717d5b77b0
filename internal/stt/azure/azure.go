// Package azure backs stt.Factory with Azure Cognitive Services Speech.
// It links the native Speech SDK through cgo.
package azure

import (
	"fmt"
	"sync"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/stt"
)

// Factory opens continuous recognizers on an Azure Speech resource
type Factory struct {
	logger zerolog.Logger
}

// NewFactory creates a factory for Azure Cognitive Services Speech
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{logger: logger.With().Str("provider", config.ProviderAzure).Logger()}
}

// Name implements stt.Factory
func (f *Factory) Name() string {
	return config.ProviderAzure
}

// Open implements stt.Factory. The recognizer reads from the default microphone
// or from a push stream fed through Write, depending on settings.Input.
func (f *Factory) Open(settings stt.Settings, sink stt.Sink) (stt.Handle, error) {
	speechConfig, err := speech.NewSpeechConfigFromSubscription(settings.Credential, settings.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech config: %w", err)
	}
	h := &handle{speechConfig: speechConfig}

	if err := speechConfig.SetSpeechRecognitionLanguage(settings.Language); err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to set recognition language %q: %w", settings.Language, err)
	}

	if settings.Input == config.InputMicrophone {
		h.audioConfig, err = audio.NewAudioConfigFromDefaultMicrophoneInput()
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to open default microphone: %w", err)
		}
	} else {
		if err := h.openPushStream(settings.SampleRate); err != nil {
			h.Close()
			return nil, err
		}
	}

	h.recognizer, err = speech.NewSpeechRecognizerFromConfig(speechConfig, h.audioConfig)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to create speech recognizer: %w", err)
	}

	f.bind(h.recognizer, sink)
	return h, nil
}

func (f *Factory) bind(recognizer *speech.SpeechRecognizer, sink stt.Sink) {
	logger := f.logger

	recognizer.Recognizing(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()
		logger.Debug().Str("text", event.Result.Text).Msg("Recognizing")
		sink.Partial(event.Result.Text)
	})

	recognizer.Recognized(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()
		switch event.Result.Reason {
		case common.RecognizedSpeech:
			logger.Debug().Str("text", event.Result.Text).Msg("Recognized")
			sink.Final(stt.Result{Reason: stt.RecognizedSpeech, Text: event.Result.Text})
		case common.NoMatch:
			logger.Debug().Msg("No match, could not recognize speech")
			sink.Final(stt.Result{Reason: stt.NoMatch})
		default:
			logger.Debug().Int("reason", int(event.Result.Reason)).Msg("Ignoring recognized event")
		}
	})

	recognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		cancellation := stt.Cancellation{
			Reason: stt.CancelEndOfStream,
			Code:   fmt.Sprint(event.ErrorCode),
			Detail: event.ErrorDetails,
		}
		if event.Reason == common.Error {
			cancellation.Reason = stt.CancelError
		}
		logger.Info().
			Str("reason", cancellation.Reason.String()).
			Str("details", event.ErrorDetails).
			Msg("Recognition canceled")
		sink.Cancelled(cancellation)
	})

	recognizer.SessionStarted(func(event speech.SessionEventArgs) {
		defer event.Close()
		logger.Info().Str("session_id", event.SessionID).Msg("Session started")
		sink.Boundary(stt.Boundary{Kind: stt.SessionStarted, SessionID: event.SessionID})
	})

	recognizer.SessionStopped(func(event speech.SessionEventArgs) {
		defer event.Close()
		logger.Info().Str("session_id", event.SessionID).Msg("Session stopped")
		sink.Boundary(stt.Boundary{Kind: stt.SessionStopped, SessionID: event.SessionID})
	})
}

// handle owns the SDK objects of one session
type handle struct {
	speechConfig *speech.SpeechConfig
	audioConfig  *audio.AudioConfig
	pushStream   *audio.PushAudioInputStream
	recognizer   *speech.SpeechRecognizer

	closeOnce sync.Once
}

func (h *handle) openPushStream(sampleRate int) error {
	format, err := audio.GetWaveFormatPCM(uint32(sampleRate), 16, 1)
	if err != nil {
		return fmt.Errorf("could not create audio format: %w", err)
	}
	defer format.Close()

	h.pushStream, err = audio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return fmt.Errorf("could not create push audio stream: %w", err)
	}

	h.audioConfig, err = audio.NewAudioConfigFromStreamInput(h.pushStream)
	if err != nil {
		return fmt.Errorf("could not create audio config from push stream: %w", err)
	}
	return nil
}

// StartContinuous implements stt.Handle
func (h *handle) StartContinuous() <-chan error {
	return h.recognizer.StartContinuousRecognitionAsync()
}

// StopContinuous implements stt.Handle
func (h *handle) StopContinuous() <-chan error {
	return h.recognizer.StopContinuousRecognitionAsync()
}

// Write implements stt.AudioWriter for push stream input
func (h *handle) Write(p []byte) (int, error) {
	if h.pushStream == nil {
		return 0, fmt.Errorf("recognizer reads from the microphone, not a push stream")
	}
	if err := h.pushStream.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements stt.Handle. Resources are released in reverse order of
// acquisition; partially opened handles are closed the same way.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		if h.recognizer != nil {
			h.recognizer.Close()
		}
		if h.pushStream != nil {
			h.pushStream.Close()
		}
		if h.audioConfig != nil {
			h.audioConfig.Close()
		}
		if h.speechConfig != nil {
			h.speechConfig.Close()
		}
	})
	return nil
}
