package bridge

import (
	"encoding/binary"

	"github.com/bnema/segbridge/internal/shmif"
)

const bytesPerPixel = 4

// CanAccept reports whether the bridge can consume surfaces of format.
func CanAccept(format PixelFormat) bool {
	switch format {
	case FormatB8G8R8X8, FormatB8G8R8A8, FormatX8R8G8B8, FormatA8R8G8B8:
		return true
	default:
		return false
	}
}

// RepackPixel converts one blue-green-red source pixel to the native
// encoding with an opaque alpha channel.
func RepackPixel(b, g, r uint8) uint32 {
	return shmif.RGBA(r, g, b, 0xff)
}

// PushRegion delivers the surface region at (x, y, w, h) to the compositor.
// With more than one video buffer the whole frame is sent.
func (s *DisplaySegment) PushRegion(x, y, w, h int) {
	if !s.t.Connected() {
		return
	}

	region := s.normalizeRegion(x, y, w, h)
	if region.Empty() {
		return
	}

	switch s.mode {
	case BlitDirect:
		s.copyRegion(region, copyRows)
	case BlitRepack:
		s.copyRegion(region, repackRows)
	case BlitShare, BlitTexturePack:
		// no pixel copy
	}

	s.dirty = region
	s.signal()
}

// normalizeRegion clamps the region to the segment and widens it to the
// full frame when the compositor rotates several buffers.
func (s *DisplaySegment) normalizeRegion(x, y, w, h int) shmif.Rect {
	tw, th := s.t.Width(), s.t.Height()
	if s.bridge.buffers.Video > 1 {
		return shmif.FullRect(tw, th)
	}
	return shmif.Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}.Clamp(tw, th)
}

type rowFunc func(dst, src []byte, width int)

func (s *DisplaySegment) copyRegion(r shmif.Rect, rows rowFunc) {
	if s.surface == nil {
		return
	}
	src := s.surface.Data()
	dst := s.t.Pixels()
	r = r.Clamp(s.surface.Width(), s.surface.Height())
	if r.Empty() || src == nil || dst == nil {
		return
	}
	if !blitRegion(dst, s.t.Stride(), src, s.surface.Stride(), r, rows) {
		s.log.Warn("Surface smaller than its geometry, frame skipped",
			"width", s.surface.Width(), "height", s.surface.Height(), "stride", s.surface.Stride())
	}
}

// blitRegion applies rows to every line of r. Source and destination keep
// their own strides. It returns false when either buffer is too short.
func blitRegion(dst []byte, dstStride int, src []byte, srcStride int, r shmif.Rect, rows rowFunc) bool {
	if len(dst) < (r.Y2-1)*dstStride+r.X2*bytesPerPixel ||
		len(src) < (r.Y2-1)*srcStride+r.X2*bytesPerPixel {
		return false
	}
	for y := r.Y1; y < r.Y2; y++ {
		so := y*srcStride + r.X1*bytesPerPixel
		do := y*dstStride + r.X1*bytesPerPixel
		rows(dst[do:], src[so:], r.Width())
	}
	return true
}

func copyRows(dst, src []byte, width int) {
	copy(dst[:width*bytesPerPixel], src[:width*bytesPerPixel])
}

func repackRows(dst, src []byte, width int) {
	for x := 0; x < width; x++ {
		sp := src[x*bytesPerPixel:]
		binary.LittleEndian.PutUint32(dst[x*bytesPerPixel:], RepackPixel(sp[0], sp[1], sp[2]))
	}
}
