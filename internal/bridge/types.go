// Package bridge connects a guest's consoles to compositor segments. It
// pushes framebuffer updates into shared buffers, pumps compositor events
// back into the guest's input devices and keeps one segment per graphical
// console under a fixed display ceiling.
//
// Every exported entry point is meant to be called from the single
// goroutine that drives the guest's display refresh.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/segbridge/internal/shmif"
)

// MaxDisplays is the ceiling on bound displays.
const MaxDisplays = 4

const (
	// DefaultRefreshInterval is the tick interval of a visible display.
	DefaultRefreshInterval = 30 * time.Millisecond
	// HiddenRefreshInterval is the reduced tick interval of a hidden display.
	HiddenRefreshInterval = 500 * time.Millisecond
)

// Buffering defaults used when the compositor supplies no arguments.
const (
	DefaultVideoBuffers    = 1
	DefaultAudioBuffers    = 8
	DefaultAudioBufferSize = 4096
)

var (
	// ErrPrimaryUnavailable is the fatal outcome of a failed primary
	// segment handshake.
	ErrPrimaryUnavailable = errors.New("primary display segment unavailable")
	// ErrContextSlotsExhausted is returned when all GPU context slots are
	// taken.
	ErrContextSlotsExhausted = errors.New("gpu context slots exhausted")
	// ErrNoTextureSupport is returned for GPU operations on a transport
	// without texture support.
	ErrNoTextureSupport = errors.New("transport has no texture support")
)

// PixelFormat tags the memory layout of a surface. Names list channels
// from the most to the least significant bits of a little-endian word.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatB8G8R8X8
	FormatB8G8R8A8
	FormatX8R8G8B8
	FormatA8R8G8B8
	FormatA8B8G8R8
	FormatX8B8G8R8
	FormatR8G8B8X8
	FormatR5G6B5
	FormatR8G8B8
	FormatYV12
)

// NativeFormat is the layout of segment video buffers.
const NativeFormat = FormatA8B8G8R8

func (f PixelFormat) String() string {
	switch f {
	case FormatB8G8R8X8:
		return "b8g8r8x8"
	case FormatB8G8R8A8:
		return "b8g8r8a8"
	case FormatX8R8G8B8:
		return "x8r8g8b8"
	case FormatA8R8G8B8:
		return "a8r8g8b8"
	case FormatA8B8G8R8:
		return "a8b8g8r8"
	case FormatX8B8G8R8:
		return "x8b8g8r8"
	case FormatR8G8B8X8:
		return "r8g8b8x8"
	case FormatR5G6B5:
		return "r5g6b5"
	case FormatR8G8B8:
		return "r8g8b8"
	case FormatYV12:
		return "yv12"
	default:
		return "unknown"
	}
}

// BlitMode selects how surface contents reach the segment buffer.
type BlitMode int

const (
	// BlitShare would alias the surface and the segment buffer. Frames
	// only record the dirty region and signal.
	BlitShare BlitMode = iota
	// BlitDirect copies rows verbatim.
	BlitDirect
	// BlitRepack converts BGRX source pixels to the native encoding.
	BlitRepack
	// BlitTexturePack forwards GPU scanout textures.
	BlitTexturePack
)

func (m BlitMode) String() string {
	switch m {
	case BlitShare:
		return "share"
	case BlitDirect:
		return "direct"
	case BlitRepack:
		return "repack"
	case BlitTexturePack:
		return "texture"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Surface is a guest framebuffer. The bridge keeps a reference only until
// the next surface switch.
type Surface interface {
	Width() int
	Height() int
	BitsPerPixel() int
	Format() PixelFormat
	// Stride is the row length in bytes.
	Stride() int
	Data() []byte
}

// ShutdownCause attributes a run-state request.
type ShutdownCause int

const (
	CauseHostUI ShutdownCause = iota + 1
	CauseGuestReset
)

func (c ShutdownCause) String() string {
	switch c {
	case CauseHostUI:
		return "host-ui"
	case CauseGuestReset:
		return "guest-reset"
	default:
		return "unknown"
	}
}

// RunState controls the guest's execution.
type RunState interface {
	IsRunning() bool
	RequestShutdown(cause ShutdownCause)
	RequestReset(cause ShutdownCause)
}

// Console is one guest output.
type Console interface {
	Index() int
	IsGraphic() bool
}

// DisplayHost enumerates guest consoles and schedules their refresh.
type DisplayHost interface {
	ConsoleByIndex(index int) (Console, bool)
	// RegisterListener attaches sink to the console. The host may call
	// SwitchSurface on it before returning.
	RegisterListener(console Console, sink DisplaySink)
	UpdateRefreshInterval(sink DisplaySink, interval time.Duration)
	// RequestRedraw asks the guest to bring its surfaces up to date.
	RequestRedraw()
}

// LED bits of the guest keyboard.
const (
	LEDScroll = 1 << 0
	LEDNum    = 1 << 1
	LEDCaps   = 1 << 2
)

// Transport is a compositor segment as seen by the bridge.
type Transport interface {
	Width() int
	Height() int
	Stride() int
	Pixels() []byte
	Poll(ev *shmif.Event) bool
	Enqueue(ev shmif.Event) error
	Signal(dirty shmif.Rect) error
	Lock(ctx context.Context) error
	Unlock()
	Resize(width, height int, ext shmif.ResizeExt) error
	Connected() bool
	Drop() error
}

// TextureTransport is a Transport that can carry GPU textures.
type TextureTransport interface {
	Transport
	SignalTexture(tex uint32, dirty shmif.Rect) error
	SetupContext(opts shmif.ContextOptions) error
	DropContext()
	MakeCurrent() error
}

// Connector opens segments on a compositor.
type Connector interface {
	// OpenPrimary performs the blocking handshake and returns the primary
	// segment with the negotiated connection arguments.
	OpenPrimary(ctx context.Context) (Transport, shmif.Args, error)
	// AcquireSubsegment requests an additional segment. An explicit refusal
	// wraps shmif.ErrRejected.
	AcquireSubsegment(ctx context.Context) (Transport, error)
	Close() error
}
