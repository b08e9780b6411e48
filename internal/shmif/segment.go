package shmif

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/segbridge/internal/logger"
)

// ErrNoContext is returned by MakeCurrent before SetupContext.
var ErrNoContext = errors.New("no gpu context on segment")

// ContextOptions describes a GPU context request.
type ContextOptions struct {
	Major, Minor int
	Shared       bool
}

// Segment is the client side of a shared segment. It is not safe for
// concurrent use; the owner drives it from a single goroutine.
type Segment struct {
	conn *Conn
	id   uint32
	kind Kind
	m    *mapping
	in   ring
	out  ring

	scratch [slotSize]byte
	enc     []byte
	gl      *ContextOptions
	dropped bool
}

// ID returns the compositor-assigned segment id.
func (s *Segment) ID() uint32 { return s.id }

// Kind returns the segment kind.
func (s *Segment) Kind() Kind { return s.kind }

func (s *Segment) header(off int) uint32 {
	if s.dropped {
		return 0
	}
	return s.m.load(off)
}

func (s *Segment) Width() int  { return int(s.header(offWidth)) }
func (s *Segment) Height() int { return int(s.header(offHeight)) }

// Stride returns the row stride of the video buffers in bytes.
func (s *Segment) Stride() int { return int(s.header(offStride)) }

// VideoBuffers returns the number of video buffers currently mapped.
func (s *Segment) VideoBuffers() int { return int(s.header(offVBufCount)) }

// Hints returns the render hints set by the last resize.
func (s *Segment) Hints() uint32 { return s.header(offHints) }

// Dirty returns the dirty rectangle of the last signalled frame.
func (s *Segment) Dirty() Rect {
	if s.dropped {
		return Rect{}
	}
	return s.m.dirty()
}

// FrameSeq returns the number of frames signalled so far.
func (s *Segment) FrameSeq() uint64 {
	if s.dropped {
		return 0
	}
	return s.m.load64(offFrameSeq)
}

// Connected reports whether the segment and its connection are alive.
func (s *Segment) Connected() bool {
	return !s.dropped && s.conn.alive()
}

// Pixels returns the buffer the producer should draw the next frame into.
// The slice is invalidated by Resize.
func (s *Segment) Pixels() []byte {
	if s.dropped {
		return nil
	}
	return s.m.videoBuffer(int(s.m.load(offActiveBuf)))
}

// Poll dequeues the next inbound event into ev. Malformed entries are
// skipped.
func (s *Segment) Poll(ev *Event) bool {
	if s.dropped {
		return false
	}
	for {
		n, ok := s.in.pop(s.scratch[:])
		if !ok {
			return false
		}
		if err := UnmarshalEvent(s.scratch[:n], ev); err != nil {
			logger.Debug("Dropping malformed event", "segment", s.id, "error", err)
			continue
		}
		return true
	}
}

// Enqueue posts an event for the compositor.
func (s *Segment) Enqueue(ev Event) error {
	if s.dropped {
		return ErrClosed
	}
	if ev.Category == CategoryExternal && len(ev.External.Message) >= MessageCapacity {
		return fmt.Errorf("message of %d bytes exceeds capacity %d", len(ev.External.Message), MessageCapacity-1)
	}
	s.enc = MarshalEvent(s.enc[:0], &ev)
	if !s.out.push(s.enc) {
		return ErrQueueFull
	}
	return nil
}

// Signal publishes the current buffer with its dirty rectangle. With more
// than one video buffer the producer moves on to the next one.
func (s *Segment) Signal(dirty Rect) error {
	return s.signal(dirty, 0)
}

// SignalTexture publishes a GPU texture handle instead of buffer contents.
func (s *Segment) SignalTexture(tex uint32, dirty Rect) error {
	return s.signal(dirty, tex)
}

func (s *Segment) signal(dirty Rect, tex uint32) error {
	if s.dropped {
		return ErrClosed
	}
	s.m.setDirty(dirty)
	cur := s.m.load(offActiveBuf)
	s.m.store(offPresentBuf, cur)
	seq := s.m.add64(offFrameSeq, 1)
	if n := s.m.load(offVBufCount); n > 1 && tex == 0 {
		s.m.store(offActiveBuf, (cur+1)%n)
	}
	return s.conn.notify(&frame{
		Type:    frameSignal,
		Segment: s.id,
		Seq:     seq,
		Dirty:   dirty,
		Texture: tex,
	})
}

// Lock takes the cross-process segment lock, spinning until ctx ends.
func (s *Segment) Lock(ctx context.Context) error {
	if s.dropped {
		return ErrClosed
	}
	return spinLock(ctx, s.m)
}

// Unlock releases the segment lock.
func (s *Segment) Unlock() {
	if !s.dropped {
		s.m.store(offLock, 0)
	}
}

func spinLock(ctx context.Context, m *mapping) error {
	backoff := 50 * time.Microsecond
	for {
		if m.cas(offLock, 0, 1) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < time.Millisecond {
			backoff *= 2
		}
	}
}

func normalizeExt(ext ResizeExt) ResizeExt {
	ext.VideoBuffers = min(max(ext.VideoBuffers, 1), MaxVideoBuffers)
	ext.AudioBuffers = min(max(ext.AudioBuffers, 0), MaxAudioBuffers)
	ext.AudioBufferSize = min(max(ext.AudioBufferSize, 0), MaxAudioBufferSize)
	if ext.AudioBuffers == 0 {
		ext.AudioBufferSize = 0
	}
	return ext
}

// Resize renegotiates geometry and buffering. The caller should hold the
// segment lock. Previously returned Pixels slices become invalid.
func (s *Segment) Resize(width, height int, ext ResizeExt) error {
	if s.dropped {
		return ErrClosed
	}
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("invalid segment size %dx%d", width, height)
	}
	ext = normalizeExt(ext)
	stride := strideFor(width)

	if err := s.m.grow(segmentSize(stride, height, ext.VideoBuffers, ext.AudioBuffers, ext.AudioBufferSize)); err != nil {
		return err
	}
	s.m.setGeometry(width, height, stride, ext)
	s.m.add64(offResizeSeq, 1)

	logger.Debug("Segment resized", "segment", s.id, "width", width, "height", height,
		"vbufc", ext.VideoBuffers, "abufc", ext.AudioBuffers, "abuf_sz", ext.AudioBufferSize)

	return s.conn.notify(&frame{
		Type:    frameResized,
		Segment: s.id,
		Width:   uint32(width),
		Height:  uint32(height),
	})
}

// SetupContext attaches a GPU context description to the segment.
func (s *Segment) SetupContext(opts ContextOptions) error {
	if s.dropped {
		return ErrClosed
	}
	s.gl = &opts
	return nil
}

// DropContext detaches the GPU context.
func (s *Segment) DropContext() {
	s.gl = nil
}

// MakeCurrent binds the segment's GPU context to the caller.
func (s *Segment) MakeCurrent() error {
	if s.dropped {
		return ErrClosed
	}
	if s.gl == nil {
		return ErrNoContext
	}
	return nil
}

// Drop releases the segment. Dropping the primary segment closes the
// connection.
func (s *Segment) Drop() error {
	if s.dropped {
		return nil
	}
	s.dropped = true

	err := s.conn.notify(&frame{Type: frameDrop, Segment: s.id})
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	if cerr := s.m.close(); err == nil {
		err = cerr
	}
	if s.conn.primary == s {
		s.conn.Close()
	}
	return err
}
