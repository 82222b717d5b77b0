package dictation

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-stt/internal/config"
	"github.com/lexiqai/voice-stt/internal/observability"
	"github.com/lexiqai/voice-stt/internal/resilience"
	"github.com/lexiqai/voice-stt/internal/session"
	"github.com/lexiqai/voice-stt/internal/stt"
	"github.com/lexiqai/voice-stt/internal/transcript"
)

const (
	writeTimeout      = 10 * time.Second
	outboundQueueSize = 64
	correlationHeader = "X-Correlation-ID"
)

// ClientSession binds one editor connection to its own session manager and
// transcript buffer.
type ClientSession struct {
	conn       *websocket.Conn
	manager    *session.Manager
	transcript *transcript.Buffer
	logger     zerolog.Logger

	outbound   chan ServerMessage
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// HandleDictationWS is the entry point for editor WebSocket connections
func HandleDictationWS(cfg *config.Config, factory stt.Factory, breaker *resilience.CircuitBreaker) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	settings := stt.SettingsFromConfig(cfg)
	metrics := observability.NewSessionMetrics(factory.Name())

	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.WithCorrelationID(r.Header.Get(correlationHeader))

		// Upgrade replies to the client itself on failure.
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		observability.ClientConnected()
		defer observability.ClientDisconnected()

		s := newClientSession(conn, logger)
		s.manager = session.NewManager(settings, session.Options{
			Recognizer:   factory,
			OnTranscript: s.onTranscript,
			OnStatus:     s.onStatus,
			Logger:       logger,
			Breaker:      breaker,
			Metrics:      metrics,
			StopTimeout:  time.Duration(cfg.StopTimeoutMs) * time.Millisecond,
		})
		s.send(statusMessage(s.manager.Status(), s.transcript))
		logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Dictation client connected")

		go s.processOutgoingMessages()
		s.processIncomingMessages()
		s.close()

		logger.Info().Int("word_count", s.transcript.WordCount()).Msg("Dictation client disconnected")
	}
}

func newClientSession(conn *websocket.Conn, logger zerolog.Logger) *ClientSession {
	return &ClientSession{
		conn:       conn,
		transcript: transcript.NewBuffer(),
		logger:     logger,
		outbound:   make(chan ServerMessage, outboundQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (s *ClientSession) onTranscript(phrase string) {
	s.transcript.Append(phrase)
	s.send(transcriptMessage(phrase, s.transcript))
}

func (s *ClientSession) onStatus(status session.Status) {
	s.send(statusMessage(status, s.transcript))
}

// send queues msg without blocking the caller; frames are dropped when the
// client cannot keep up.
func (s *ClientSession) send(msg ServerMessage) {
	select {
	case s.outbound <- msg:
	default:
		s.logger.Warn().Str("type", msg.Type).Msg("Outbound queue full, dropping frame")
	}
}

// processIncomingMessages reads control and audio frames until the client
// goes away.
func (s *ClientSession) processIncomingMessages() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			observability.RecordAudioBytes(len(data))
			s.manager.WriteAudio(data)
		case websocket.TextMessage:
			s.handleControl(data)
		}
	}
}

func (s *ClientSession) handleControl(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to parse control message")
		s.send(ServerMessage{Type: MessageError, Error: "invalid control message"})
		return
	}

	switch msg.Type {
	case MessageStart:
		s.manager.Start()
	case MessageStop:
		s.manager.Stop()
	case MessageToggle:
		s.manager.Toggle()
	case MessageClear:
		s.transcript.Clear()
		s.send(statusMessage(s.manager.Status(), s.transcript))
	case MessageSetText:
		s.transcript.Set(msg.Text)
		s.send(statusMessage(s.manager.Status(), s.transcript))
	default:
		s.logger.Warn().Str("type", msg.Type).Msg("Unknown control message")
		s.send(ServerMessage{Type: MessageError, Error: "unknown message type " + msg.Type})
	}
}

// processOutgoingMessages is the only writer of the connection
func (s *ClientSession) processOutgoingMessages() {
	defer close(s.writerDone)
	for {
		select {
		case msg := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to write frame")
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *ClientSession) close() {
	s.closeOnce.Do(func() {
		s.manager.Close()
		close(s.done)
		<-s.writerDone
	})
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and origins listed in the comma separated allowed list.
func originChecker(allowed string) func(r *http.Request) bool {
	origins := make(map[string]bool)
	wildcard := false
	for _, origin := range strings.Split(allowed, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			wildcard = true
		}
		if origin != "" {
			origins[strings.ToLower(origin)] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		return origins[strings.ToLower(origin)]
	}
}
