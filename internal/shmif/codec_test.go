package shmif

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEventCodec(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"key press", KeyEvent(30, true)},
		{"button release", ButtonEvent(MouseRight, false)},
		{"negative relative axis", AxisEvent(1, -17, true)},
		{"display hint", DisplayHint(1024, 768, DisplayHintInvisible|DisplayHintUnfocused)},
		{"ident", Message(ExternalIdent, "VM[0][S__]:demo(Running)")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalEvent(nil, &tt.ev)
			assert.LessOrEqual(t, len(data), slotSize-2)

			var got Event
			require.NoError(t, UnmarshalEvent(data, &got))
			assert.Equal(t, tt.ev, got)
		})
	}
}

func TestUnmarshalEventRejectsGarbage(t *testing.T) {
	var ev Event
	assert.Error(t, UnmarshalEvent([]byte{0xff, 0xff, 0xff}, &ev))
	// no category
	assert.Error(t, UnmarshalEvent(nil, &ev))
}

func TestUnmarshalEventRejectsWideCodes(t *testing.T) {
	for _, num := range []protowire.Number{evSubID, evScancode} {
		b := protowire.AppendTag(nil, evCategory, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(CategoryIO))
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, 65566)

		var ev Event
		err := UnmarshalEvent(b, &ev)
		assert.ErrorIs(t, err, errBadEvent, "field %d", num)
	}

	ev := KeyEvent(math.MaxUint16, true)
	var out Event
	require.NoError(t, UnmarshalEvent(MarshalEvent(nil, &ev), &out))
	assert.Equal(t, uint16(math.MaxUint16), out.IO.Scancode)
}

func TestLongestMessageFitsSlot(t *testing.T) {
	msg := make([]byte, MessageCapacity-1)
	for i := range msg {
		msg[i] = 'x'
	}
	ev := Message(ExternalMessage, string(msg))
	assert.LessOrEqual(t, len(MarshalEvent(nil, &ev)), slotSize-2)
}

func TestControlFrameCodec(t *testing.T) {
	in := frame{
		Type:    frameSignal,
		Segment: 3,
		Seq:     99,
		Dirty:   Rect{X1: 1, Y1: 2, X2: 30, Y2: 40},
		Texture: 7,
	}
	var out frame
	require.NoError(t, out.unmarshal(in.marshal()))
	assert.Equal(t, in, out)

	accept := frame{Type: frameAccept, Segment: 1, Path: "/tmp/seg", Width: 640, Height: 480, Args: "vbufc=2"}
	require.NoError(t, out.unmarshal(accept.marshal()))
	assert.Equal(t, accept, out)
}
