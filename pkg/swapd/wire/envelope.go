package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope contains only the discriminator used to pick the concrete type.
type Envelope struct {
	MsgType string `json:"msg_type"`
}

var msgRegistry = map[string]func() any{
	TypeHello:       func() any { return &HelloMsg{} },
	TypeRequestFile: func() any { return &RequestFileMsg{} },
}

// ReadTypedMessage reads a single websocket text message, inspects
// msg_type, and unmarshals into the matching struct. Binary frames are
// chunk payloads, not envelopes, and are rejected here.
func ReadTypedMessage(conn *websocket.Conn) (interface{}, error) {
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if mt != websocket.TextMessage {
		return nil, fmt.Errorf("unsupported websocket message type: %d", mt)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	if env.MsgType == "" {
		return nil, fmt.Errorf("missing msg_type")
	}

	f, ok := msgRegistry[env.MsgType]
	if !ok {
		return nil, fmt.Errorf("unknown msg_type: %q", env.MsgType)
	}

	v := f()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.MsgType, err)
	}

	return v, nil
}

// ReadTypedMessageWithDeadline sets a temporary read deadline for this
// read, for per-message timeouts during the handshake phase.
func ReadTypedMessageWithDeadline(conn *websocket.Conn, timeout time.Duration) (interface{}, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	msg, err := ReadTypedMessage(conn)
	_ = conn.SetReadDeadline(time.Time{})
	return msg, err
}

// WriteTypedMessage marshals v and writes it as a single text message.
func WriteTypedMessage(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}
