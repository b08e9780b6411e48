package proto

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for input that is not a valid message.
var ErrMalformed = errors.New("malformed message")

// Marshal encodes msg.
func Marshal(msg *IPCMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	var b []byte
	b = appendVarint(b, 1, uint64(msg.Type))
	if msg.StatusQuery != nil {
		b = appendMessage(b, 2, nil)
	}
	if msg.StatusResponse != nil {
		b = appendMessage(b, 3, msg.StatusResponse.marshal(nil))
	}
	if msg.RunStateCommand != nil {
		b = appendMessage(b, 4, appendVarint(nil, 1, uint64(msg.RunStateCommand.Action)))
	}
	if msg.LEDCommand != nil {
		b = appendMessage(b, 5, appendVarint(nil, 1, uint64(msg.LEDCommand.Mask)))
	}
	if msg.ErrorResponse != nil {
		b = appendMessage(b, 6, appendString(nil, 1, msg.ErrorResponse.Error))
	}
	return b, nil
}

// Unmarshal decodes b into msg, skipping unknown fields.
func Unmarshal(b []byte, msg *IPCMessage) error {
	*msg = IPCMessage{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Type = MessageType(v)
		case 2:
			msg.StatusQuery = &StatusQuery{}
		case 3:
			msg.StatusResponse = &StatusResponse{}
			err = msg.StatusResponse.unmarshal(raw)
		case 4:
			msg.RunStateCommand = &RunStateCommand{}
			err = walk(raw, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
				if num == 1 {
					msg.RunStateCommand.Action = RunStateAction(v)
				}
				return nil
			})
		case 5:
			msg.LEDCommand = &LEDCommand{}
			err = walk(raw, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
				if num == 1 {
					msg.LEDCommand.Mask = int32(v)
				}
				return nil
			})
		case 6:
			msg.ErrorResponse = &ErrorResponse{}
			err = walk(raw, func(num protowire.Number, _ protowire.Type, _ uint64, raw []byte) error {
				if num == 1 {
					msg.ErrorResponse.Error = string(raw)
				}
				return nil
			})
		}
		return err
	})
}

func (r *StatusResponse) marshal(b []byte) []byte {
	b = appendBool(b, 1, r.Running)
	b = appendString(b, 2, r.State)
	b = appendString(b, 3, r.Name)
	b = appendVarint(b, 4, uint64(r.LedState))
	b = appendBool(b, 5, r.Gl)
	b = appendString(b, 6, r.Compositor)
	for _, d := range r.Displays {
		b = appendMessage(b, 7, d.marshal(nil))
	}
	return b
}

func (r *StatusResponse) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, _ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			r.Running = v != 0
		case 2:
			r.State = string(raw)
		case 3:
			r.Name = string(raw)
		case 4:
			r.LedState = int32(v)
		case 5:
			r.Gl = v != 0
		case 6:
			r.Compositor = string(raw)
		case 7:
			d := &DisplayInfo{}
			if err := d.unmarshal(raw); err != nil {
				return err
			}
			r.Displays = append(r.Displays, d)
		}
		return nil
	})
}

func (d *DisplayInfo) marshal(b []byte) []byte {
	b = appendVarint(b, 1, uint64(d.Index))
	b = appendVarint(b, 2, uint64(d.Width))
	b = appendVarint(b, 3, uint64(d.Height))
	b = appendString(b, 4, d.Mode)
	b = appendBool(b, 5, d.Hidden)
	b = appendVarint(b, 6, d.Frames)
	b = appendVarint(b, 7, uint64(d.PressedKeys))
	b = appendVarint(b, 8, uint64(d.RefreshIntervalMs))
	return b
}

func (d *DisplayInfo) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, _ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			d.Index = int32(v)
		case 2:
			d.Width = int32(v)
		case 3:
			d.Height = int32(v)
		case 4:
			d.Mode = string(raw)
		case 5:
			d.Hidden = v != 0
		case 6:
			d.Frames = v
		case 7:
			d.PressedKeys = int32(v)
		case 8:
			d.RefreshIntervalMs = int32(v)
		}
		return nil
	})
}

// walk calls fn for every varint or length-delimited field of b. Other
// wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}
