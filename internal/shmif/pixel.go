package shmif

// RGBA packs a pixel in the segment's native encoding.
func RGBA(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// UnpackRGBA is the inverse of RGBA.
func UnpackRGBA(px uint32) (r, g, b, a uint8) {
	return uint8(px), uint8(px >> 8), uint8(px >> 16), uint8(px >> 24)
}

// Rect is a half-open rectangle [X1,X2) x [Y1,Y2) in buffer coordinates.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// FullRect covers a whole w x h frame.
func FullRect(w, h int) Rect {
	return Rect{X1: 0, Y1: 0, X2: w, Y2: h}
}

// Width returns the horizontal extent.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// Clamp restricts r to [0,w) x [0,h). An empty result is normalized to the
// zero rectangle.
func (r Rect) Clamp(w, h int) Rect {
	if r.X1 < 0 {
		r.X1 = 0
	}
	if r.Y1 < 0 {
		r.Y1 = 0
	}
	if r.X2 > w {
		r.X2 = w
	}
	if r.Y2 > h {
		r.Y2 = h
	}
	if r.Empty() {
		return Rect{}
	}
	return r
}
