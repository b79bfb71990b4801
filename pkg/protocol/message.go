// Package protocol defines the JSON envelope exchanged with clients over the
// control and event websockets.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → server commands
	TypeLoadModel MessageType = "load_model" // PathData
	TypeLoadImage MessageType = "load_image" // PathData
	TypeLoadVideo MessageType = "load_video" // PathData
	TypeDetect    MessageType = "detect"     // no data
	TypePlay      MessageType = "play"       // no data
	TypePause     MessageType = "pause"      // no data
	TypeStop      MessageType = "stop"       // no data
	TypeStatus    MessageType = "status"     // no data

	// Server → client messages
	TypeResult     MessageType = "result"     // ResultData, reply to a command
	TypeState      MessageType = "state"      // StateData
	TypeDetections MessageType = "detections" // DetectionsData, one per processed frame
	TypeNotice     MessageType = "notice"     // NoticeData, after a single-image pass
	TypeError      MessageType = "error"      // ErrorData
	TypeFrame      MessageType = "frame"      // FrameData, annotated JPEG snapshot

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// IsCommand reports whether t is a client command.
func (t MessageType) IsCommand() bool {
	switch t {
	case TypeLoadModel, TypeLoadImage, TypeLoadVideo, TypeDetect,
		TypePlay, TypePause, TypeStop, TypeStatus:
		return true
	}
	return false
}

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"` // Correlates a result with its command
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// PathData names a file to load. An empty path for load_model selects the
// default model.
type PathData struct {
	Path string `json:"path"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// Error codes carried by ResultData and ErrorData.
const (
	CodeNoModel        = "no_model"
	CodeNoSource       = "no_source"
	CodeNoImage        = "no_image"
	CodeAlreadyPlaying = "already_playing"
	CodeBusy           = "busy"
	CodeNotFound       = "not_found"
	CodeUnsupported    = "unsupported"
	CodeBadRequest     = "bad_request"
	CodeDetection      = "detection_failed"
	CodeInternal       = "internal"
)

// ResultData answers a command.
type ResultData struct {
	OK      bool        `json:"ok"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Changed *bool       `json:"changed,omitempty"` // pause/stop: whether a transition happened
	Notice  *NoticeData `json:"notice,omitempty"`  // detect
	State   *StateData  `json:"state,omitempty"`
}

// StateData describes the application state.
type StateData struct {
	Playback  string `json:"playback"` // idle, loaded, playing, paused
	ModelPath string `json:"model_path,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
	MediaKind string `json:"media_kind,omitempty"` // image, video
	HasModel  bool   `json:"has_model"`
	HasImage  bool   `json:"has_image"`
	HasVideo  bool   `json:"has_video"`
	RunID     string `json:"run_id,omitempty"`
	Frames    int    `json:"frames"`
	CanPlay   bool   `json:"can_play"`
	CanPause  bool   `json:"can_pause"`
	CanDetect bool   `json:"can_detect"`
	Recording string `json:"recording,omitempty"`
}

// Box is one detection in client coordinates of the original frame.
type Box struct {
	X1          int     `json:"x1"`
	Y1          int     `json:"y1"`
	X2          int     `json:"x2"`
	Y2          int     `json:"y2"`
	Confidence  float64 `json:"confidence"`
	ClassID     int     `json:"class_id"`
	Name        string  `json:"name"`
	Carnivorous bool    `json:"carnivorous"`
}

// DetectionsData summarizes one processed playback frame.
type DetectionsData struct {
	RunID            string   `json:"run_id"`
	Index            int      `json:"index"`
	Boxes            []Box    `json:"boxes"`
	CarnivorousCount int      `json:"carnivorous_count"`
	Species          []string `json:"species"`
}

// NoticeData is the one-shot message after a single-image pass.
type NoticeData struct {
	Title            string   `json:"title"`
	Body             string   `json:"body"`
	CarnivorousCount int      `json:"carnivorous_count"`
	Species          []string `json:"species"`
	Boxes            []Box    `json:"boxes,omitempty"`
}

// ClassInfo is one entry of the class catalog.
type ClassInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Carnivorous bool   `json:"carnivorous"`
}

// CatalogData lists the classes the model can report.
type CatalogData struct {
	Classes     []ClassInfo `json:"classes"`
	Carnivorous []string    `json:"carnivorous"`
}

// ErrorData reports a failure not tied to a command, such as a playback
// frame that could not be processed.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Frame   *int   `json:"frame,omitempty"`
}

// FrameData contains an encoded frame
type FrameData struct {
	Pane    string `json:"pane"` // "original", "annotated"
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
