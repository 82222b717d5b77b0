package dictation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/stt"
)

type fakeHandle struct {
	mu      sync.Mutex
	written int
	closed  int
}

func (h *fakeHandle) StartContinuous() <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (h *fakeHandle) StopContinuous() <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.written += len(p)
	return len(p), nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *fakeHandle) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written, h.closed
}

type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	sinks   []stt.Sink
}

func (f *fakeFactory) Name() string { return "fake" }

func (f *fakeFactory) Open(settings stt.Settings, sink stt.Sink) (stt.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{}
	f.handles = append(f.handles, h)
	f.sinks = append(f.sinks, sink)
	return h, nil
}

func (f *fakeFactory) last() (*fakeHandle, stt.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil, nil
	}
	return f.handles[len(f.handles)-1], f.sinks[len(f.sinks)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Provider:          config.ProviderAzure,
		AudioInput:        config.InputStream,
		Language:          "en-US",
		SampleRate:        16000,
		AzureSpeechKey:    "test-key",
		AzureSpeechRegion: "westus2",
		AllowedOrigins:    "*",
		StopTimeoutMs:     100,
	}
}

func dial(t *testing.T, cfg *config.Config, factory stt.Factory) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(HandleDictationWS(cfg, factory, nil))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func waitForOpen(t *testing.T, factory *fakeFactory) (*fakeHandle, stt.Sink) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h, sink := factory.last(); h != nil {
			return h, sink
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Timed out waiting for recognizer open")
	return nil, nil
}

func sendControl(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send %s: %v", msg.Type, err)
	}
}

func TestHandleDictationWS_Session(t *testing.T) {
	factory := &fakeFactory{}
	conn := dial(t, testConfig(), factory)

	initial := readUntil(t, conn, "initial status", func(m ServerMessage) bool { return m.Type == MessageStatus })
	if initial.State != "idle" || initial.Listening {
		t.Errorf("Expected idle initial status, got %+v", initial)
	}

	sendControl(t, conn, ClientMessage{Type: MessageStart})
	readUntil(t, conn, "connecting", func(m ServerMessage) bool { return m.Connecting })

	handle, sink := waitForOpen(t, factory)
	sink.Boundary(stt.Boundary{Kind: stt.SessionStarted})
	readUntil(t, conn, "listening", func(m ServerMessage) bool { return m.Listening })

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
		t.Fatalf("Failed to send audio: %v", err)
	}

	sink.Partial("hel")
	interim := readUntil(t, conn, "interim", func(m ServerMessage) bool { return m.Interim == "hel" })
	if interim.Display != "hel" {
		t.Errorf("Expected display 'hel', got '%s'", interim.Display)
	}

	sink.Final(stt.Result{Reason: stt.RecognizedSpeech, Text: "hello"})
	sink.Final(stt.Result{Reason: stt.RecognizedSpeech, Text: "world"})
	msg := readUntil(t, conn, "second transcript", func(m ServerMessage) bool {
		return m.Type == MessageTranscript && m.Text == "world"
	})
	if msg.Transcript != "hello world" {
		t.Errorf("Expected transcript 'hello world', got '%s'", msg.Transcript)
	}
	if msg.Words != 2 {
		t.Errorf("Expected 2 words, got %d", msg.Words)
	}

	if written, _ := handle.counts(); written != 320 {
		t.Errorf("Expected 320 audio bytes written, got %d", written)
	}

	sendControl(t, conn, ClientMessage{Type: MessageToggle})
	readUntil(t, conn, "idle after toggle", func(m ServerMessage) bool {
		return m.Type == MessageStatus && m.State == "idle"
	})

	sendControl(t, conn, ClientMessage{Type: MessageSetText, Text: "edited text"})
	edited := readUntil(t, conn, "edited status", func(m ServerMessage) bool { return m.Transcript == "edited text" })
	if edited.Words != 2 || edited.Display != "edited text" {
		t.Errorf("Unexpected edited status: %+v", edited)
	}

	sendControl(t, conn, ClientMessage{Type: MessageClear})
	readUntil(t, conn, "cleared status", func(m ServerMessage) bool {
		return m.Type == MessageStatus && m.Transcript == "" && m.Words == 0
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, closed := handle.counts(); closed == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("Expected recognizer closed after stop")
}

func TestHandleDictationWS_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.AzureSpeechKey = ""
	factory := &fakeFactory{}
	conn := dial(t, cfg, factory)

	sendControl(t, conn, ClientMessage{Type: MessageStart})
	msg := readUntil(t, conn, "error status", func(m ServerMessage) bool { return m.Error != "" })

	if msg.ErrorKind != "configuration" {
		t.Errorf("Expected error kind 'configuration', got '%s'", msg.ErrorKind)
	}
	if msg.State != "idle" {
		t.Errorf("Expected idle, got '%s'", msg.State)
	}
	if h, _ := factory.last(); h != nil {
		t.Error("Expected no recognizer opened")
	}
}

func TestHandleDictationWS_UnknownMessage(t *testing.T) {
	conn := dial(t, testConfig(), &fakeFactory{})

	sendControl(t, conn, ClientMessage{Type: "rewind"})
	msg := readUntil(t, conn, "error frame", func(m ServerMessage) bool { return m.Type == MessageError })
	if !strings.Contains(msg.Error, "rewind") {
		t.Errorf("Expected error naming the message type, got '%s'", msg.Error)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	readUntil(t, conn, "invalid frame error", func(m ServerMessage) bool {
		return m.Type == MessageError && m.Error == "invalid control message"
	})
}

func TestHandleDictationWS_DisconnectReleasesRecognizer(t *testing.T) {
	factory := &fakeFactory{}
	conn := dial(t, testConfig(), factory)

	sendControl(t, conn, ClientMessage{Type: MessageStart})
	handle, sink := waitForOpen(t, factory)
	sink.Boundary(stt.Boundary{Kind: stt.SessionStarted})
	readUntil(t, conn, "listening", func(m ServerMessage) bool { return m.Listening })

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, closed := handle.counts(); closed == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("Expected recognizer released when client disconnects")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker("https://editor.example.com, http://localhost:3000")

	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/dictation", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	if !check(request("https://editor.example.com")) {
		t.Error("Expected listed origin allowed")
	}
	if !check(request("HTTP://LOCALHOST:3000")) {
		t.Error("Expected origin match to ignore case")
	}
	if check(request("https://evil.example.com")) {
		t.Error("Expected unlisted origin rejected")
	}
	if !check(request("")) {
		t.Error("Expected request without origin allowed")
	}
	if !originChecker("*")(request("https://anything.example.com")) {
		t.Error("Expected wildcard to allow any origin")
	}
}
