package bridge

import (
	"context"

	"github.com/bnema/segbridge/internal/shmif"
)

// OnSurfaceSwitch renegotiates the segment geometry for a new guest
// surface. A nil surface keeps the current geometry and only refreshes the
// buffering parameters and hints.
func (s *DisplaySegment) OnSurfaceSwitch(surface Surface) {
	if s.t.Connected() {
		w, h := s.t.Width(), s.t.Height()
		if surface != nil {
			w, h = surface.Width(), surface.Height()
		}
		s.resize(w, h)
		s.dirty = shmif.FullRect(s.t.Width(), s.t.Height())
	}

	if surface == nil {
		return
	}
	s.surface = surface
	s.mode = s.selectMode(surface.Format())
	s.log.Debug("Surface switched",
		"width", surface.Width(), "height", surface.Height(),
		"format", surface.Format(), "mode", s.mode)
}

func (s *DisplaySegment) resize(w, h int) {
	b := s.bridge
	hints := uint32(shmif.HintSubregion | shmif.HintIgnoreAlpha)
	if b.opts.GL {
		hints |= shmif.HintOrigoUL
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.LockTimeout)
	defer cancel()

	if err := s.t.Lock(ctx); err != nil {
		s.log.Warn("Segment busy, resize skipped", "width", w, "height", h, "error", err)
		return
	}
	err := s.t.Resize(w, h, shmif.ResizeExt{
		VideoBuffers:    b.buffers.Video,
		AudioBuffers:    b.buffers.Audio,
		AudioBufferSize: b.buffers.AudioSize,
		Hints:           hints,
	})
	s.t.Unlock()

	if err != nil {
		s.log.Warn("Resize failed", "width", w, "height", h, "error", err)
	}
}

func (s *DisplaySegment) selectMode(format PixelFormat) BlitMode {
	b := s.bridge
	if b.opts.DirectBlit && b.opts.FormatsEqual(format, NativeFormat) {
		return BlitDirect
	}
	return BlitRepack
}
