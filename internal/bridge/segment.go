package bridge

import (
	"fmt"
	"time"

	"github.com/bnema/segbridge/internal/input"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/shmif"
	"github.com/charmbracelet/log"
)

// DisplaySegment binds one guest console to one compositor segment.
type DisplaySegment struct {
	bridge *Bridge
	index  int
	t      Transport
	sink   DisplaySink
	log    *log.Logger

	mode    BlitMode
	surface Surface
	dirty   shmif.Rect
	frames  uint64

	hidden   bool
	interval time.Duration

	// pressed is indexed by scan code
	pressed [input.MaxScancode]bool

	mouseX, mouseY int
	mouseVisible   bool

	texture uint32
	hasGL   bool
}

func newDisplaySegment(b *Bridge, index int, t Transport) *DisplaySegment {
	return &DisplaySegment{
		bridge:   b,
		index:    index,
		t:        t,
		log:      logger.WithPrefix(fmt.Sprintf("display[%d]", index)),
		mode:     BlitRepack,
		interval: b.opts.RefreshInterval,
	}
}

// Index returns the bound console index.
func (s *DisplaySegment) Index() int { return s.index }

// Transport returns the underlying segment.
func (s *DisplaySegment) Transport() Transport { return s.t }

// Sink returns the listener registered with the display host.
func (s *DisplaySegment) Sink() DisplaySink { return s.sink }

// Mode returns the active blit mode.
func (s *DisplaySegment) Mode() BlitMode { return s.mode }

// Hidden reports whether the compositor marked the display invisible.
func (s *DisplaySegment) Hidden() bool { return s.hidden }

// Interval returns the current refresh interval.
func (s *DisplaySegment) Interval() time.Duration { return s.interval }

// Dirty returns the last recorded dirty rectangle.
func (s *DisplaySegment) Dirty() shmif.Rect { return s.dirty }

// Frames returns the number of signalled frames.
func (s *DisplaySegment) Frames() uint64 { return s.frames }

// Mouse returns the last pointer position reported by the guest.
func (s *DisplaySegment) Mouse() (x, y int, visible bool) {
	return s.mouseX, s.mouseY, s.mouseVisible
}

// Pressed reports whether scancode is held down.
func (s *DisplaySegment) Pressed(scancode uint16) bool {
	return int(scancode) < len(s.pressed) && s.pressed[scancode]
}

// PressedCount returns the number of held keys.
func (s *DisplaySegment) PressedCount() int {
	n := 0
	for _, down := range s.pressed {
		if down {
			n++
		}
	}
	return n
}

// ResetPressed releases every held key exactly once and returns how many
// releases were queued. A second call without new presses queues nothing.
func (s *DisplaySegment) ResetPressed() int {
	n := 0
	for code, down := range s.pressed {
		if !down {
			continue
		}
		s.pressed[code] = false
		n++
		if err := s.bridge.queue.QueueKey(input.Translate(uint16(code)), false); err != nil {
			s.log.Debug("Key release not queued", "scancode", code, "error", err)
		}
	}
	if n > 0 {
		s.log.Debug("Released held keys", "count", n)
	}
	return n
}

func (s *DisplaySegment) setInterval(d time.Duration) {
	s.interval = d
	if s.sink != nil {
		s.bridge.host.UpdateRefreshInterval(s.sink, d)
	}
}

// signal publishes the recorded dirty rectangle.
func (s *DisplaySegment) signal() {
	if err := s.t.Signal(s.dirty); err != nil {
		s.log.Debug("Frame signal failed", "error", err)
		return
	}
	s.frames++
}

func (s *DisplaySegment) textureTransport() (TextureTransport, bool) {
	tt, ok := s.t.(TextureTransport)
	return tt, ok
}

// setupGL prepares the segment for texture forwarding.
func (s *DisplaySegment) setupGL() error {
	tt, ok := s.textureTransport()
	if !ok {
		return ErrNoTextureSupport
	}
	if err := tt.SetupContext(shmif.ContextOptions{Major: 3, Minor: 3, Shared: true}); err != nil {
		return fmt.Errorf("setup context: %w", err)
	}
	s.hasGL = true
	return nil
}
