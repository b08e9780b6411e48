package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestIPCMessage_Serialization(t *testing.T) {
	tests := []struct {
		name string
		msg  *IPCMessage
	}{
		{
			name: "status query",
			msg:  &IPCMessage{Type: MessageTypeStatus, StatusQuery: &StatusQuery{}},
		},
		{
			name: "status response",
			msg: &IPCMessage{
				Type: MessageTypeStatusResponse,
				StatusResponse: &StatusResponse{
					Running:    true,
					State:      "running",
					Name:       "debian",
					LedState:   5,
					Gl:         true,
					Compositor: "/tmp/compositor.sock",
					Displays: []*DisplayInfo{
						{Index: 0, Width: 640, Height: 480, Mode: "repack", Frames: 1 << 40, RefreshIntervalMs: 30},
						{Index: 2, Width: 800, Height: 600, Mode: "direct", Hidden: true, PressedKeys: 3, RefreshIntervalMs: 500},
					},
				},
			},
		},
		{
			name: "run state",
			msg:  &IPCMessage{Type: MessageTypeRunState, RunStateCommand: &RunStateCommand{Action: RunStateActionReset}},
		},
		{
			name: "led",
			msg:  &IPCMessage{Type: MessageTypeLED, LEDCommand: &LEDCommand{Mask: 7}},
		},
		{
			name: "error",
			msg:  &IPCMessage{Type: MessageTypeError, ErrorResponse: &ErrorResponse{Error: "no displays bound"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.msg)
			require.NoError(t, err)

			var got IPCMessage
			require.NoError(t, Unmarshal(data, &got))
			assert.Equal(t, tt.msg, &got)
		})
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	data, err := Marshal(&IPCMessage{Type: MessageTypeLED, LEDCommand: &LEDCommand{Mask: 2}})
	require.NoError(t, err)

	data = protowire.AppendTag(data, 42, protowire.Fixed64Type)
	data = protowire.AppendFixed64(data, 99)
	data = protowire.AppendTag(data, 43, protowire.BytesType)
	data = protowire.AppendString(data, "future")

	var got IPCMessage
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, MessageTypeLED, got.Type)
	assert.Equal(t, int32(2), got.LEDCommand.Mask)
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	data, err := Marshal(&IPCMessage{Type: MessageTypeError, ErrorResponse: &ErrorResponse{Error: "boom"}})
	require.NoError(t, err)

	var got IPCMessage
	assert.ErrorIs(t, Unmarshal(data[:len(data)-2], &got), ErrMalformed)
	assert.ErrorIs(t, Unmarshal([]byte{0xff}, &got), ErrMalformed)

	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRunStateAction(t *testing.T) {
	for _, verb := range []string{"pause", "resume", "reset", "shutdown"} {
		a, ok := ParseRunStateAction(verb)
		assert.True(t, ok, verb)
		assert.Equal(t, verb, a.String())
	}
	_, ok := ParseRunStateAction("reboot")
	assert.False(t, ok)
}
