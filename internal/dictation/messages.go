package dictation

import (
	"github.com/lexiqai/voice-stt/internal/session"
	"github.com/lexiqai/voice-stt/internal/transcript"
)

// Control frame types sent by the editor
const (
	MessageStart   = "start"
	MessageStop    = "stop"
	MessageToggle  = "toggle"
	MessageClear   = "clear"
	MessageSetText = "set_text"
)

// Frame types sent to the editor
const (
	MessageStatus     = "status"
	MessageTranscript = "transcript"
	MessageError      = "error"
)

// ClientMessage is a JSON control frame from the editor. Audio arrives as
// binary frames of 16-bit mono PCM.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"` // set_text only
}

// ServerMessage is a JSON frame pushed to the editor
type ServerMessage struct {
	Type string `json:"type"`

	// Session status
	State      string `json:"state,omitempty"`
	Listening  bool   `json:"listening"`
	Connecting bool   `json:"connecting"`
	Interim    string `json:"interim"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`

	// Editor contents
	Text       string `json:"text,omitempty"` // finalized phrase of a transcript frame
	Transcript string `json:"transcript"`
	Display    string `json:"display"`
	Words      int    `json:"words"`
}

func statusMessage(status session.Status, buf *transcript.Buffer) ServerMessage {
	msg := ServerMessage{
		Type:       MessageStatus,
		State:      status.State.String(),
		Listening:  status.IsListening(),
		Connecting: status.IsConnecting(),
		Interim:    status.InterimText,
		Error:      status.LastError(),
		Transcript: buf.Text(),
		Display:    buf.Display(status.InterimText),
		Words:      buf.WordCount(),
	}
	if status.Err != nil {
		msg.ErrorKind = status.Err.KindName()
	}
	return msg
}

func transcriptMessage(phrase string, buf *transcript.Buffer) ServerMessage {
	return ServerMessage{
		Type:       MessageTranscript,
		Text:       phrase,
		Transcript: buf.Text(),
		Display:    buf.Text(),
		Words:      buf.WordCount(),
	}
}
