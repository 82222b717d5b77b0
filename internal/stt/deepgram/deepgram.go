// Package deepgram backs stt.Factory with Deepgram's live transcription API
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/resilience"
	"github.com/lexiqai/voice-stt/internal/stt"
)

var (
	errConnect      = errors.New("failed to connect to Deepgram")
	errNotConnected = errors.New("deepgram websocket is not connected")
)

// callback implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the events a session needs.
type callback struct {
	*websocketv1api.DefaultCallbackHandler
	sink   stt.Sink
	logger zerolog.Logger
}

// Open maps the websocket opening to the remote session starting
func (c *callback) Open(_ *msginterfaces.OpenResponse) error {
	c.logger.Info().Msg("Session started")
	c.sink.Boundary(stt.Boundary{Kind: stt.SessionStarted})
	return nil
}

// Message forwards interim and final transcripts
func (c *callback) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil {
		return nil
	}

	text := ""
	if len(msg.Channel.Alternatives) > 0 {
		text = msg.Channel.Alternatives[0].Transcript
	}

	if !msg.IsFinal {
		c.logger.Debug().Str("text", text).Msg("Recognizing")
		c.sink.Partial(text)
		return nil
	}

	if strings.TrimSpace(text) == "" {
		c.logger.Debug().Msg("No match, could not recognize speech")
		c.sink.Final(stt.Result{Reason: stt.NoMatch})
		return nil
	}

	c.logger.Debug().Str("text", text).Msg("Recognized")
	c.sink.Final(stt.Result{Reason: stt.RecognizedSpeech, Text: text})
	return nil
}

// Close maps the websocket closing to the remote session stopping
func (c *callback) Close(_ *msginterfaces.CloseResponse) error {
	c.logger.Info().Msg("Session stopped")
	c.sink.Boundary(stt.Boundary{Kind: stt.SessionStopped})
	return nil
}

// Error reports a stream failure as a cancellation with error
func (c *callback) Error(errorResponse *msginterfaces.ErrorResponse) error {
	cancellation := stt.Cancellation{Reason: stt.CancelError}
	if errorResponse != nil {
		cancellation.Code = errorResponse.ErrCode
		cancellation.Detail = errorResponse.Description
		if cancellation.Detail == "" {
			cancellation.Detail = errorResponse.ErrMsg
		}
	}
	c.logger.Warn().
		Str("code", cancellation.Code).
		Str("details", cancellation.Detail).
		Msg("Recognition canceled")
	c.sink.Cancelled(cancellation)
	return nil
}

// Factory opens streaming recognizers on Deepgram's live API
type Factory struct {
	retry  *resilience.RetryConfig
	logger zerolog.Logger
}

// NewFactory creates a factory for Deepgram. retry bounds the connection
// attempts made by StartContinuous; each attempt dials once.
func NewFactory(retry *resilience.RetryConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		retry:  retry,
		logger: logger.With().Str("provider", config.ProviderDeepgram).Logger(),
	}
}

// Name implements stt.Factory
func (f *Factory) Name() string {
	return config.ProviderDeepgram
}

// Open implements stt.Factory. Audio is always pushed through Write.
func (f *Factory) Open(settings stt.Settings, sink stt.Sink) (stt.Handle, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          settings.Model,
		Language:       settings.Language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000", // string in v3
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     settings.SampleRate,
	}
	cOptions := &interfaces.ClientOptions{
		Host: settings.Region,
	}

	cb := &callback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		sink:                   sink,
		logger:                 f.logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	client, err := listenClient.NewWSUsingCallback(ctx, settings.Credential, cOptions, tOptions, cb)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	return &handle{
		ctx:    ctx,
		cancel: cancel,
		client: client,
		retry:  f.retry,
		logger: f.logger,
	}, nil
}

// handle owns one Deepgram websocket
type handle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	client    *listenClient.WSCallback
	retry     *resilience.RetryConfig
	logger    zerolog.Logger
	connected atomic.Bool

	closeOnce sync.Once
}

// StartContinuous implements stt.Handle by connecting the websocket.
// The SDK gives up on a client after its own retries run out, so every
// attempt goes through AttemptReconnectWithCancel with a single dial.
func (h *handle) StartContinuous() <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- resilience.Retry(h.ctx, func() error {
			if !h.client.AttemptReconnectWithCancel(h.ctx, h.cancel, 1) {
				return resilience.NewRetryableError(errConnect)
			}
			h.connected.Store(true)
			return nil
		}, h.retry, resilience.IsRetryableNetworkError)
	}()
	return result
}

// StopContinuous implements stt.Handle. Stop sends CloseStream, so Deepgram
// flushes pending results, and then closes the socket.
func (h *handle) StopContinuous() <-chan error {
	result := make(chan error, 1)
	go func() {
		h.connected.Store(false)
		h.client.Stop()
		result <- nil
	}()
	return result
}

// Write implements stt.AudioWriter. Audio written before the websocket is up
// is rejected; the SDK would otherwise dial on its own.
func (h *handle) Write(p []byte) (int, error) {
	if !h.connected.Load() {
		return 0, errNotConnected
	}
	return h.client.Write(p)
}

// Close implements stt.Handle. The context is cancelled first so a dial in
// flight is abandoned, then the socket is closed if it is still open.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.connected.Store(false)
		h.cancel()
		h.client.Stop()
		h.logger.Debug().Msg("Deepgram client closed")
	})
	return nil
}
