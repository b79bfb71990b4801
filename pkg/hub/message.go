// Package hub fans frames and events out to every connected viewer. One
// goroutine owns the subscriber set; publishers never block on a viewer.
package hub

// MessageType selects the websocket frame type a message is sent as.
type MessageType int

const (
	// JSONMessage is sent as a text frame (events, state).
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (encoded pane images).
	BinaryMessage
)

// Message is one broadcast payload. Data is shared by every subscriber and
// must not be modified after Broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps an encoded frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
