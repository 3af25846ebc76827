// Package protocol defines the chat message record and the JSON payloads
// exchanged over the HTTP API. Messages are serialized as JSON both in the
// log store and on the wire, so Encode/Decode must remain a stable round trip.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators.
const (
	TypeMsg  = "msg"
	TypeJoin = "join"
	TypePart = "part"
)

// Message is one entry in a channel's append-only log. Index is assigned at
// append time as the log length, so indices within a channel are contiguous
// starting at 0. Messages are immutable once appended.
type Message struct {
	Index     int64  `json:"index"`
	Nick      string `json:"nick"`
	Type      string `json:"type"` // "msg", "join", "part"
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Encode serializes a message for storage and transmission.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode message: %w", err)
	}
	return data, nil
}

// Decode parses a serialized log entry back into a Message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: decode message: %w", err)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// HTTP response payloads
// ---------------------------------------------------------------------------

// JoinResponse is returned by /join on success.
type JoinResponse struct {
	ID   string `json:"id"`
	Nick string `json:"nick"`
}

// RecvResponse is returned by /recv after immediate or delayed resolution.
type RecvResponse struct {
	Messages []Message `json:"messages"`
}

// WhoResponse lists the nicks of all live sessions.
type WhoResponse struct {
	Nicks []string `json:"nicks"`
}

// ErrorResponse carries a short machine-readable error string.
type ErrorResponse struct {
	Error string `json:"error"`
}
