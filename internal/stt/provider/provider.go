// Package provider selects the recognizer backend named by the configuration.
// It is the only package that links every speech SDK; the Azure backend
// needs the native Speech SDK at build time.
package provider

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/resilience"
	"github.com/lexiqai/voice-stt/internal/stt"
	"github.com/lexiqai/voice-stt/internal/stt/azure"
	"github.com/lexiqai/voice-stt/internal/stt/deepgram"
)

// NewFactory returns the recognizer factory of the configured provider
func NewFactory(cfg *config.Config, logger zerolog.Logger) (stt.Factory, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		return azure.NewFactory(logger), nil
	case config.ProviderDeepgram:
		return deepgram.NewFactory(RetryConfig(cfg), logger), nil
	}
	return nil, fmt.Errorf("unsupported speech provider %q", cfg.Provider)
}

// RetryConfig bounds the connection attempts of providers that dial on start
func RetryConfig(cfg *config.Config) *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}
