package shmif

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Event wire fields.
const (
	evCategory protowire.Number = 1

	evDevKind  protowire.Number = 2
	evDataType protowire.Number = 3
	evSubID    protowire.Number = 4
	evScancode protowire.Number = 5
	evActive   protowire.Number = 6
	evRelative protowire.Number = 7
	evAxis     protowire.Number = 8

	evTargetKind protowire.Number = 10
	evTargetArg  protowire.Number = 11

	evExternalKind protowire.Number = 20
	evMessage      protowire.Number = 21
)

var errBadEvent = errors.New("malformed event")

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendSint(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// MarshalEvent appends the wire encoding of ev to b.
func MarshalEvent(b []byte, ev *Event) []byte {
	b = appendVarint(b, evCategory, uint64(ev.Category))
	switch ev.Category {
	case CategoryIO:
		io := &ev.IO
		b = appendVarint(b, evDevKind, uint64(io.DevKind))
		b = appendVarint(b, evDataType, uint64(io.DataType))
		b = appendVarint(b, evSubID, uint64(io.SubID))
		b = appendVarint(b, evScancode, uint64(io.Scancode))
		b = appendBool(b, evActive, io.Active)
		b = appendBool(b, evRelative, io.Relative)
		for _, v := range io.Axis {
			b = appendSint(b, evAxis, v)
		}
	case CategoryTarget:
		b = appendVarint(b, evTargetKind, uint64(ev.Target.Kind))
		for _, v := range ev.Target.Args {
			b = appendSint(b, evTargetArg, v)
		}
	case CategoryExternal:
		b = appendVarint(b, evExternalKind, uint64(ev.External.Kind))
		b = appendString(b, evMessage, ev.External.Message)
	}
	return b
}

// UnmarshalEvent decodes b into ev. Unknown fields are skipped.
func UnmarshalEvent(b []byte, ev *Event) error {
	*ev = Event{}
	var axis, args int
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errBadEvent, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errBadEvent, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case evCategory:
				ev.Category = Category(v)
			case evDevKind:
				ev.IO.DevKind = DevKind(v)
			case evDataType:
				ev.IO.DataType = DataType(v)
			case evSubID, evScancode:
				if v > math.MaxUint16 {
					return fmt.Errorf("%w: field %d out of range: %d", errBadEvent, num, v)
				}
				if num == evSubID {
					ev.IO.SubID = uint16(v)
				} else {
					ev.IO.Scancode = uint16(v)
				}
			case evActive:
				ev.IO.Active = protowire.DecodeBool(v)
			case evRelative:
				ev.IO.Relative = protowire.DecodeBool(v)
			case evAxis:
				if axis < AxisCount {
					ev.IO.Axis[axis] = int32(protowire.DecodeZigZag(v))
					axis++
				}
			case evTargetKind:
				ev.Target.Kind = TargetKind(v)
			case evTargetArg:
				if args < TargetArgs {
					ev.Target.Args[args] = int32(protowire.DecodeZigZag(v))
					args++
				}
			case evExternalKind:
				ev.External.Kind = ExternalKind(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errBadEvent, protowire.ParseError(n))
			}
			b = b[n:]
			if num == evMessage {
				ev.External.Message = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errBadEvent, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if ev.Category < CategoryIO || ev.Category > CategoryExternal {
		return fmt.Errorf("%w: category %d", errBadEvent, ev.Category)
	}
	return nil
}
