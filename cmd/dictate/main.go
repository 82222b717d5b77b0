package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/dictation"
	"github.com/lexiqai/voice-stt/internal/observability"
	"github.com/lexiqai/voice-stt/internal/session"
	"github.com/lexiqai/voice-stt/internal/stt"
	"github.com/lexiqai/voice-stt/internal/stt/provider"
)

// dictate transcribes the default microphone until interrupted, then prints
// the accumulated transcript to stdout. Progress goes to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Provider != config.ProviderAzure {
		fmt.Fprintf(os.Stderr, "Microphone dictation requires STT_PROVIDER=%s\n", config.ProviderAzure)
		os.Exit(1)
	}
	cfg.AudioInput = config.InputMicrophone

	// Logs share stderr with the interim display.
	observability.InitLoggerWithWriter(os.Stderr, cfg.LogLevel, true)
	logger := observability.Component("dictate")

	factory, err := provider.NewFactory(cfg, observability.Component("stt"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech recognizer factory")
	}

	term := dictation.NewTerminal(os.Stderr)
	manager := session.NewManager(stt.SettingsFromConfig(cfg), session.Options{
		Recognizer:   factory,
		OnTranscript: term.OnTranscript,
		OnStatus:     term.OnStatus,
		Logger:       logger,
		Metrics:      observability.NewSessionMetrics(factory.Name()),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	manager.Start()
	exitCode := 0
	if err := term.Run(ctx, manager.Status); err != nil {
		exitCode = 1
	}
	// A second interrupt while the recognizer is released exits at once.
	stop()
	manager.Close()

	buf := term.Transcript()
	if text := buf.Text(); text != "" {
		fmt.Println(text)
	}
	logger.Info().Int("word_count", buf.WordCount()).Msg("Dictation finished")
	os.Exit(exitCode)
}
