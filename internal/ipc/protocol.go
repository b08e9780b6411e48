package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	pb "github.com/bnema/segbridge/internal/proto"
)

// maxMessageSize bounds a single framed message.
const maxMessageSize = 1 << 20

// NewStatusMessage creates a new status query message
func NewStatusMessage() *pb.IPCMessage {
	return &pb.IPCMessage{
		Type:        pb.MessageTypeStatus,
		StatusQuery: &pb.StatusQuery{},
	}
}

// NewStatusResponseMessage wraps a status response
func NewStatusResponseMessage(status *pb.StatusResponse) *pb.IPCMessage {
	return &pb.IPCMessage{
		Type:           pb.MessageTypeStatusResponse,
		StatusResponse: status,
	}
}

// NewRunStateMessage creates a run-state command message
func NewRunStateMessage(action pb.RunStateAction) *pb.IPCMessage {
	return &pb.IPCMessage{
		Type:            pb.MessageTypeRunState,
		RunStateCommand: &pb.RunStateCommand{Action: action},
	}
}

// NewLEDMessage creates an LED command message
func NewLEDMessage(mask int32) *pb.IPCMessage {
	return &pb.IPCMessage{
		Type:       pb.MessageTypeLED,
		LEDCommand: &pb.LEDCommand{Mask: mask},
	}
}

// NewErrorMessage creates a new error message
func NewErrorMessage(errMsg string) *pb.IPCMessage {
	return &pb.IPCMessage{
		Type:          pb.MessageTypeError,
		ErrorResponse: &pb.ErrorResponse{Error: errMsg},
	}
}

// GetStatusResponse extracts status response from message
func GetStatusResponse(msg *pb.IPCMessage) (*pb.StatusResponse, error) {
	if msg.Type != pb.MessageTypeStatusResponse || msg.StatusResponse == nil {
		return nil, fmt.Errorf("message is not a status response")
	}
	return msg.StatusResponse, nil
}

// GetRunStateCommand extracts run-state command from message
func GetRunStateCommand(msg *pb.IPCMessage) (*pb.RunStateCommand, error) {
	if msg.Type != pb.MessageTypeRunState || msg.RunStateCommand == nil {
		return nil, fmt.Errorf("message is not a run-state command")
	}
	return msg.RunStateCommand, nil
}

// GetLEDCommand extracts LED command from message
func GetLEDCommand(msg *pb.IPCMessage) (*pb.LEDCommand, error) {
	if msg.Type != pb.MessageTypeLED || msg.LEDCommand == nil {
		return nil, fmt.Errorf("message is not an LED command")
	}
	return msg.LEDCommand, nil
}

// GetErrorResponse extracts error response from message
func GetErrorResponse(msg *pb.IPCMessage) (*pb.ErrorResponse, error) {
	if msg.Type != pb.MessageTypeError || msg.ErrorResponse == nil {
		return nil, fmt.Errorf("message is not an error response")
	}
	return msg.ErrorResponse, nil
}

// readMessage reads a length-prefixed message
func readMessage(r io.Reader) (*pb.IPCMessage, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	var msg pb.IPCMessage
	if err := pb.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// writeMessage writes a length-prefixed message
func writeMessage(w io.Writer, msg *pb.IPCMessage) error {
	data, err := pb.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	length := uint32(len(data)) //nolint:gosec // bounded by maxMessageSize on read
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}
