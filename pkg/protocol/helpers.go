package protocol

import (
	"encoding/base64"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewCommandMessage creates a command with a path argument. path is ignored
// for commands that take no data.
func NewCommandMessage(t MessageType, id, path string) (*Message, error) {
	var data any
	switch t {
	case TypeLoadModel, TypeLoadImage, TypeLoadVideo:
		data = PathData{Path: path}
	}
	msg, err := NewMessage(t, data)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// NewResultMessage creates the reply to command id.
func NewResultMessage(id string, result ResultData) (*Message, error) {
	msg, err := NewMessage(TypeResult, result)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// NewStateMessage creates a state message
func NewStateMessage(state StateData) (*Message, error) {
	return NewMessage(TypeState, state)
}

// NewDetectionsMessage creates a per-frame detections message
func NewDetectionsMessage(data DetectionsData) (*Message, error) {
	return NewMessage(TypeDetections, data)
}

// NewNoticeMessage creates a notice message
func NewNoticeMessage(data NoticeData) (*Message, error) {
	return NewMessage(TypeNotice, data)
}

// NewErrorMessage creates an error message. frame < 0 omits the frame index.
func NewErrorMessage(code, message string, frame int) (*Message, error) {
	data := ErrorData{Code: code, Message: message}
	if frame >= 0 {
		data.Frame = &frame
	}
	return NewMessage(TypeError, data)
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(pane string, width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Pane:    pane,
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetPathData extracts the path argument of a load command
func (m *Message) GetPathData() (*PathData, error) {
	var data PathData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResultData extracts a command result
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDetectionsData extracts per-frame detections
func (m *Message) GetDetectionsData() (*DetectionsData, error) {
	var data DetectionsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetNoticeData extracts a notice
func (m *Message) GetNoticeData() (*NoticeData, error) {
	var data NoticeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
