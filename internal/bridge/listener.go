package bridge

import (
	"fmt"
	"math/bits"

	"github.com/bnema/segbridge/internal/shmif"
)

// DisplaySink receives display callbacks from the guest for one console.
type DisplaySink interface {
	Name() string
	Update(x, y, w, h int)
	SwitchSurface(surface Surface)
	CheckFormat(format PixelFormat) bool
	Refresh()
	SetMouse(x, y int, visible bool)
	SetCursorImage(cursor *CursorImage)
}

// GLSink is a DisplaySink that also handles GPU scanout.
type GLSink interface {
	DisplaySink
	CreateContext(params GLParams) (GLContext, error)
	DestroyContext(ctx GLContext)
	MakeCurrent(ctx GLContext) error
	ScanoutTexture(tex uint32, originTop bool, backingW, backingH int, x, y, w, h int)
	ScanoutDisable()
	GLUpdate(x, y, w, h int)
}

// CursorImage is a guest pointer sprite.
type CursorImage struct {
	Width, Height int
	HotX, HotY    int
	Pixels        []uint32
}

// GLParams describes a requested GPU context.
type GLParams struct {
	Major, Minor int
}

// GLContext identifies an allocated GPU context slot.
type GLContext int

// maxContexts is the size of the context slot mask.
const maxContexts = 64

// Listener adapts a DisplaySegment to the guest display callbacks.
type Listener struct {
	seg *DisplaySegment
}

// Name identifies the listener in guest logs.
func (l *Listener) Name() string {
	return fmt.Sprintf("segbridge-%d", l.seg.index)
}

// Update pushes a changed guest region to the segment.
func (l *Listener) Update(x, y, w, h int) {
	l.seg.PushRegion(x, y, w, h)
}

// SwitchSurface renegotiates the segment for a new guest surface.
func (l *Listener) SwitchSurface(surface Surface) {
	l.seg.OnSurfaceSwitch(surface)
}

// CheckFormat reports whether the blitter can read format.
func (l *Listener) CheckFormat(format PixelFormat) bool {
	return CanAccept(format)
}

// Refresh runs one display tick.
func (l *Listener) Refresh() {
	l.seg.Refresh()
}

// SetMouse caches the guest pointer position.
func (l *Listener) SetMouse(x, y int, visible bool) {
	l.seg.mouseX, l.seg.mouseY, l.seg.mouseVisible = x, y, visible
}

// SetCursorImage is accepted and dropped.
func (l *Listener) SetCursorImage(cursor *CursorImage) {
	if cursor != nil {
		l.seg.log.Debug("Cursor image ignored", "width", cursor.Width, "height", cursor.Height)
	}
}

// Segment returns the display the listener feeds.
func (l *Listener) Segment() *DisplaySegment {
	return l.seg
}

// GLListener adds GPU scanout to Listener.
type GLListener struct {
	Listener
}

// CreateContext allocates the lowest free context slot.
func (l *GLListener) CreateContext(params GLParams) (GLContext, error) {
	b := l.seg.bridge
	free := ^b.contexts
	if free == 0 {
		return -1, ErrContextSlotsExhausted
	}
	slot := bits.TrailingZeros64(free)

	tt, ok := l.seg.textureTransport()
	if !ok {
		return -1, ErrNoTextureSupport
	}
	if err := tt.SetupContext(shmif.ContextOptions{Major: params.Major, Minor: params.Minor, Shared: true}); err != nil {
		return -1, fmt.Errorf("create context: %w", err)
	}

	b.contexts |= 1 << uint(slot)
	l.seg.hasGL = true
	l.seg.log.Debug("GPU context created", "slot", slot, "major", params.Major, "minor", params.Minor)
	return GLContext(slot), nil
}

// DestroyContext releases a slot returned by CreateContext.
func (l *GLListener) DestroyContext(ctx GLContext) {
	if ctx < 0 || ctx >= maxContexts {
		return
	}
	b := l.seg.bridge
	b.contexts &^= 1 << uint(ctx)
	if tt, ok := l.seg.textureTransport(); ok {
		tt.DropContext()
	}
	l.seg.hasGL = false
}

// MakeCurrent binds the segment GPU context.
func (l *GLListener) MakeCurrent(ctx GLContext) error {
	tt, ok := l.seg.textureTransport()
	if !ok {
		return ErrNoTextureSupport
	}
	return tt.MakeCurrent()
}

// ScanoutTexture forwards a guest texture with its dirty region clamped to
// the segment, whatever the backing size. Nothing is signalled until at
// least one context exists.
func (l *GLListener) ScanoutTexture(tex uint32, originTop bool, backingW, backingH int, x, y, w, h int) {
	s := l.seg
	s.texture = tex
	s.mode = BlitTexturePack
	s.dirty = shmif.Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}.Clamp(s.t.Width(), s.t.Height())
	l.signalTexture()
}

// ScanoutDisable returns the display to surface blits.
func (l *GLListener) ScanoutDisable() {
	s := l.seg
	s.texture = 0
	if s.surface != nil {
		s.mode = s.selectMode(s.surface.Format())
	} else {
		s.mode = BlitRepack
	}
}

// GLUpdate re-signals the current texture for a changed region.
func (l *GLListener) GLUpdate(x, y, w, h int) {
	s := l.seg
	if s.mode != BlitTexturePack {
		return
	}
	s.dirty = shmif.Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}.Clamp(s.t.Width(), s.t.Height())
	l.signalTexture()
}

func (l *GLListener) signalTexture() {
	s := l.seg
	if s.bridge.contexts == 0 || !s.t.Connected() {
		return
	}
	tt, ok := s.textureTransport()
	if !ok {
		return
	}
	if err := tt.SignalTexture(s.texture, s.dirty); err != nil {
		s.log.Debug("Texture signal failed", "error", err)
		return
	}
	s.frames++
}
