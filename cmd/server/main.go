package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/dictation"
	"github.com/lexiqai/voice-stt/internal/observability"
	"github.com/lexiqai/voice-stt/internal/resilience"
	"github.com/lexiqai/voice-stt/internal/stt"
	"github.com/lexiqai/voice-stt/internal/stt/provider"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("provider", cfg.Provider).
		Str("audio_input", cfg.AudioInput).
		Str("language", cfg.Language).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice STT service starting")

	if !cfg.SpeechConfigured() {
		// Sessions will fail with a configuration error until this is fixed.
		logger.Warn().Str("hint", cfg.MissingSpeechHint()).Msg("Speech credentials are not configured")
	}

	factory, err := provider.NewFactory(cfg, observability.Component("stt"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech recognizer factory")
	}

	breaker := resilience.NewCircuitBreaker(
		factory.Name(),
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("service", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	})
	observability.UpdateCircuitBreakerState(breaker.Name(), int(breaker.GetState()))

	// Create HTTP server
	mux := http.NewServeMux()

	// Register dictation WebSocket handler
	mux.HandleFunc("/ws/dictation", dictation.HandleDictationWS(cfg, factory, breaker))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: credentials present and the breaker letting sessions through
	speechCheck := func(ctx context.Context) (bool, error) {
		if err := stt.SettingsFromConfig(cfg).Validate(); err != nil {
			return false, err
		}
		return true, nil
	}
	breakerCheck := func(ctx context.Context) (bool, error) {
		if state := breaker.GetState(); state == resilience.StateOpen {
			return false, fmt.Errorf("%s circuit breaker is %s", breaker.Name(), state)
		}
		return true, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"speech":          speechCheck,
		"circuit_breaker": breakerCheck,
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WebSocket connections are long lived, so no read/write timeouts here;
	// the dictation handler sets per-frame write deadlines.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/dictation", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
