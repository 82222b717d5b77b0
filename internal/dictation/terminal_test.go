package dictation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-stt/internal/session"
	"github.com/lexiqai/voice-stt/internal/stt"
)

type lockedWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *lockedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func runTerminal(ctx context.Context, term *Terminal, status func() session.Status) <-chan error {
	result := make(chan error, 1)
	go func() { result <- term.Run(ctx, status) }()
	return result
}

func awaitRun(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Terminal did not return after the session ended")
		return nil
	}
}

func TestTerminal_ErrorAfterPartialBurstEndsRun(t *testing.T) {
	out := &lockedWriter{}
	term := NewTerminal(out)
	factory := &fakeFactory{}
	cfg := testConfig()

	manager := session.NewManager(stt.SettingsFromConfig(cfg), session.Options{
		Recognizer:   factory,
		OnTranscript: term.OnTranscript,
		OnStatus:     term.OnStatus,
		Logger:       zerolog.Nop(),
		StopTimeout:  100 * time.Millisecond,
	})
	defer manager.Close()

	result := runTerminal(context.Background(), term, manager.Status)
	manager.Start()

	_, sink := waitForOpen(t, factory)
	sink.Boundary(stt.Boundary{Kind: stt.SessionStarted})
	for i := 0; i < 500; i++ {
		sink.Partial(strings.Repeat("a", i%7+1))
	}
	sink.Final(stt.Result{Reason: stt.RecognizedSpeech, Text: "hello"})
	sink.Cancelled(stt.Cancellation{Reason: stt.CancelError, Detail: "network lost"})

	err := awaitRun(t, result)
	var sessionErr *session.Error
	if !errors.As(err, &sessionErr) {
		t.Fatalf("Expected session error, got %v", err)
	}
	if sessionErr.Message != "network lost" {
		t.Errorf("Expected 'network lost', got '%s'", sessionErr.Message)
	}
	if got := term.Transcript().Text(); got != "hello" {
		t.Errorf("Expected transcript 'hello', got '%s'", got)
	}
	if !strings.Contains(out.String(), "Error: network lost") {
		t.Errorf("Expected error rendered, got %q", out.String())
	}
}

func TestTerminal_CoalescedWakeSeesLatestStatus(t *testing.T) {
	term := NewTerminal(&lockedWriter{})

	var mu sync.Mutex
	current := session.Status{State: session.Listening, InterimText: "x"}
	status := func() session.Status {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	// Many changes land before Run reads; only the last one matters.
	for i := 0; i < 100; i++ {
		term.OnStatus(session.Status{State: session.Listening})
	}
	mu.Lock()
	current = session.Status{State: session.Idle}
	mu.Unlock()
	term.OnStatus(current)

	if err := awaitRun(t, runTerminal(context.Background(), term, status)); err != nil {
		t.Errorf("Expected clean end of session, got %v", err)
	}
}

func TestTerminal_ContextCancelStops(t *testing.T) {
	out := &lockedWriter{}
	term := NewTerminal(out)
	ctx, cancel := context.WithCancel(context.Background())

	result := runTerminal(ctx, term, func() session.Status {
		return session.Status{State: session.Listening}
	})
	term.OnStatus(session.Status{State: session.Listening})
	cancel()

	if err := awaitRun(t, result); err != nil {
		t.Errorf("Expected nil on interrupt, got %v", err)
	}
	if !strings.Contains(out.String(), "Stopping...") {
		t.Errorf("Expected stopping notice, got %q", out.String())
	}
}
