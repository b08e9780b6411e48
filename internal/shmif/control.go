package shmif

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

type frameType uint8

const (
	frameRegister frameType = iota + 1
	frameAccept
	frameReject
	frameSegmentRequest
	frameResized
	frameSignal
	frameDrop
)

func (t frameType) String() string {
	switch t {
	case frameRegister:
		return "register"
	case frameAccept:
		return "accept"
	case frameReject:
		return "reject"
	case frameSegmentRequest:
		return "segment-request"
	case frameResized:
		return "resized"
	case frameSignal:
		return "signal"
	case frameDrop:
		return "drop"
	default:
		return fmt.Sprintf("frame(%d)", uint8(t))
	}
}

// maxFrameSize bounds a control frame on the wire.
const maxFrameSize = 64 << 10

// frame is a control channel message. Which fields are set depends on Type.
type frame struct {
	Type    frameType
	Segment uint32
	Kind    Kind
	Path    string
	Width   uint32
	Height  uint32
	Args    string
	Reason  string
	Seq     uint64
	Dirty   Rect
	Texture uint32
}

const (
	fType    protowire.Number = 1
	fSegment protowire.Number = 2
	fKind    protowire.Number = 3
	fPath    protowire.Number = 4
	fWidth   protowire.Number = 5
	fHeight  protowire.Number = 6
	fArgs    protowire.Number = 7
	fReason  protowire.Number = 8
	fSeq     protowire.Number = 9
	fDirtyX1 protowire.Number = 10
	fDirtyY1 protowire.Number = 11
	fDirtyX2 protowire.Number = 12
	fDirtyY2 protowire.Number = 13
	fTexture protowire.Number = 14
)

func (f *frame) marshal() []byte {
	b := appendVarint(nil, fType, uint64(f.Type))
	if f.Segment != 0 {
		b = appendVarint(b, fSegment, uint64(f.Segment))
	}
	if f.Kind != 0 {
		b = appendVarint(b, fKind, uint64(f.Kind))
	}
	if f.Path != "" {
		b = appendString(b, fPath, f.Path)
	}
	if f.Width != 0 || f.Height != 0 {
		b = appendVarint(b, fWidth, uint64(f.Width))
		b = appendVarint(b, fHeight, uint64(f.Height))
	}
	if f.Args != "" {
		b = appendString(b, fArgs, f.Args)
	}
	if f.Reason != "" {
		b = appendString(b, fReason, f.Reason)
	}
	if f.Type == frameSignal {
		b = appendVarint(b, fSeq, f.Seq)
		b = appendVarint(b, fDirtyX1, uint64(f.Dirty.X1))
		b = appendVarint(b, fDirtyY1, uint64(f.Dirty.Y1))
		b = appendVarint(b, fDirtyX2, uint64(f.Dirty.X2))
		b = appendVarint(b, fDirtyY2, uint64(f.Dirty.Y2))
		if f.Texture != 0 {
			b = appendVarint(b, fTexture, uint64(f.Texture))
		}
	}
	return b
}

func (f *frame) unmarshal(b []byte) error {
	*f = frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fType:
				f.Type = frameType(v)
			case fSegment:
				f.Segment = uint32(v)
			case fKind:
				f.Kind = Kind(v)
			case fWidth:
				f.Width = uint32(v)
			case fHeight:
				f.Height = uint32(v)
			case fSeq:
				f.Seq = v
			case fDirtyX1:
				f.Dirty.X1 = int(v)
			case fDirtyY1:
				f.Dirty.Y1 = int(v)
			case fDirtyX2:
				f.Dirty.X2 = int(v)
			case fDirtyY2:
				f.Dirty.Y2 = int(v)
			case fTexture:
				f.Texture = uint32(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fPath:
				f.Path = v
			case fArgs:
				f.Args = v
			case fReason:
				f.Reason = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if f.Type == 0 {
		return fmt.Errorf("control frame without type")
	}
	return nil
}

// writeFrame writes a length-prefixed frame (4 bytes, big endian).
func writeFrame(w io.Writer, f *frame) error {
	data := f.marshal()
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (*frame, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("control frame too large: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}
	var f frame
	if err := f.unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return &f, nil
}
