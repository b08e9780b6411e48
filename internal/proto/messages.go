// Package proto defines the control socket messages. They use the protobuf
// wire format so any protobuf decoder can read them, but are encoded by
// hand with protowire.
package proto

import "fmt"

// MessageType selects the payload of an IPCMessage.
type MessageType int32

const (
	MessageTypeUnspecified MessageType = iota
	MessageTypeStatus
	MessageTypeStatusResponse
	MessageTypeRunState
	MessageTypeLED
	MessageTypeError
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeStatus:
		return "status"
	case MessageTypeStatusResponse:
		return "status-response"
	case MessageTypeRunState:
		return "run-state"
	case MessageTypeLED:
		return "led"
	case MessageTypeError:
		return "error"
	default:
		return fmt.Sprintf("unspecified(%d)", int32(t))
	}
}

// RunStateAction is a guest run-state request.
type RunStateAction int32

const (
	RunStateActionUnspecified RunStateAction = iota
	RunStateActionPause
	RunStateActionResume
	RunStateActionReset
	RunStateActionShutdown
)

func (a RunStateAction) String() string {
	switch a {
	case RunStateActionPause:
		return "pause"
	case RunStateActionResume:
		return "resume"
	case RunStateActionReset:
		return "reset"
	case RunStateActionShutdown:
		return "shutdown"
	default:
		return "unspecified"
	}
}

// ParseRunStateAction maps a command-line verb to an action.
func ParseRunStateAction(s string) (RunStateAction, bool) {
	for a := RunStateActionPause; a <= RunStateActionShutdown; a++ {
		if a.String() == s {
			return a, true
		}
	}
	return RunStateActionUnspecified, false
}

// StatusQuery asks for a StatusResponse.
type StatusQuery struct{}

// DisplayInfo describes one bound display.
type DisplayInfo struct {
	Index             int32
	Width             int32
	Height            int32
	Mode              string
	Hidden            bool
	Frames            uint64
	PressedKeys       int32
	RefreshIntervalMs int32
}

// StatusResponse is the bridge state as seen from the guest loop.
type StatusResponse struct {
	Running    bool
	State      string
	Name       string
	LedState   int32
	Gl         bool
	Compositor string
	Displays   []*DisplayInfo
}

// RunStateCommand requests a run-state change.
type RunStateCommand struct {
	Action RunStateAction
}

// LEDCommand replaces the keyboard LED mask.
type LEDCommand struct {
	Mask int32
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	Error string
}

// IPCMessage is the envelope of every control socket exchange. Only the
// payload matching Type is set.
type IPCMessage struct {
	Type            MessageType
	StatusQuery     *StatusQuery
	StatusResponse  *StatusResponse
	RunStateCommand *RunStateCommand
	LEDCommand      *LEDCommand
	ErrorResponse   *ErrorResponse
}
