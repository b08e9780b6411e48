// Package shmif implements the shared-memory segment transport between the
// display bridge and an external compositor.
//
// A segment is a single memory-mapped file. It starts with a fixed header,
// followed by two single-producer/single-consumer event rings (inbound and
// outbound), and then the video and audio buffers:
//
//	+--------+----------+-----------+-------------------+-------------+
//	| header | in ring  | out ring  | video buffers ... | audio ...   |
//	+--------+----------+-----------+-------------------+-------------+
//	0        128                    videoOffset (page aligned)
//
// Header words are accessed with atomic loads and stores in host byte order,
// which is what both peers on the same machine see. Control messages that
// need an answer (registration, sub-segment requests) and doorbells (frame
// signals, resize notices) travel over a unix socket next to the mapping.
package shmif

const (
	magic   uint32 = 0x31424753 // "SGB1"
	version uint32 = 1
)

// Header word offsets.
const (
	offMagic      = 0
	offVersion    = 4
	offID         = 8
	offKind       = 12
	offWidth      = 16
	offHeight     = 20
	offStride     = 24
	offVBufCount  = 28
	offABufCount  = 32
	offABufSize   = 36
	offLock       = 40
	offHints      = 44
	offDirtyX1    = 48
	offDirtyY1    = 52
	offDirtyX2    = 56
	offDirtyY2    = 60
	offFrameSeq   = 64 // uint64
	offResizeSeq  = 72 // uint64
	offActiveBuf  = 80
	offPresentBuf = 84

	headerSize = 128
)

// Event ring geometry. The consumer index lives at the start of the ring
// header and the producer index one cache line later.
const (
	ringSlots      = 64
	slotSize       = 128
	ringHeaderSize = 128
	ringHeadOff    = 0
	ringTailOff    = 64
	ringSize       = ringHeaderSize + ringSlots*slotSize

	offInRing  = headerSize
	offOutRing = offInRing + ringSize
)

const (
	pageSize    = 4096
	strideAlign = 64

	// MaxDimension bounds both width and height of a segment.
	MaxDimension = 8192
	// MaxVideoBuffers bounds the negotiated video buffer count.
	MaxVideoBuffers = 4
	// MaxAudioBuffers bounds the negotiated audio buffer count.
	MaxAudioBuffers = 32
	// MaxAudioBufferSize bounds a single audio buffer.
	MaxAudioBufferSize = 65536
)

var videoOffset = alignUp(offOutRing+ringSize, pageSize)

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}

// strideFor returns the byte stride of a row of width pixels.
func strideFor(width int) int {
	return alignUp(width*4, strideAlign)
}

// segmentSize returns the file size needed for the given geometry.
func segmentSize(stride, height, vbufc, abufc, abufSize int) int {
	return videoOffset + vbufc*stride*height + abufc*abufSize
}

// Kind identifies what a segment is used for.
type Kind uint8

const (
	KindVM Kind = iota + 1
	KindCursor
	KindOutput
	KindClipboard
)

func (k Kind) String() string {
	switch k {
	case KindVM:
		return "vm"
	case KindCursor:
		return "cursor"
	case KindOutput:
		return "output"
	case KindClipboard:
		return "clipboard"
	default:
		return "unknown"
	}
}

// Render hints stored in the header hint word.
const (
	HintSubregion   uint32 = 1 << 0
	HintIgnoreAlpha uint32 = 1 << 1
	HintOrigoUL     uint32 = 1 << 2
)

// ResizeExt carries the buffering parameters of a resize request.
type ResizeExt struct {
	VideoBuffers    int
	AudioBuffers    int
	AudioBufferSize int
	Hints           uint32
}
