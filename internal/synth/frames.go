package synth

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// FrameKind tags a decoded session frame.
type FrameKind int

const (
	// FrameText is a JSON control frame
	FrameText FrameKind = iota

	// FrameBinary carries audio bytes
	FrameBinary

	// FrameClose is a normal end of session
	FrameClose

	// FrameFailure is a transport error or abnormal close
	FrameFailure
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameClose:
		return "close"
	case FrameFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Control is the JSON body of a text frame.
type Control struct {
	Event   string `json:"event"`
	Code    int    `json:"code"`
	Message string `json:"message"`

	SentenceStart struct {
		ReadableText string `json:"readable_text"`
	} `json:"sentence_start_result"`
}

// Frame is one message read from a session.
type Frame struct {
	Kind    FrameKind
	Data    []byte
	Control Control
	Err     error
}

// clientEvent is sent by the client.
type clientEvent struct {
	Event string `json:"event"`
	Text  string `json:"text,omitempty"`
}

// readFrame reads and classifies the next message from conn.
func readFrame(conn *websocket.Conn) Frame {
	mt, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Frame{Kind: FrameClose}
		}
		return Frame{Kind: FrameFailure, Err: err}
	}

	switch mt {
	case websocket.BinaryMessage:
		return Frame{Kind: FrameBinary, Data: data}
	default:
		f := Frame{Kind: FrameText, Data: data}
		if err := json.Unmarshal(data, &f.Control); err != nil {
			f.Err = err
		}
		return f
	}
}
