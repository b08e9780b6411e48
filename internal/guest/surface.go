package guest

import (
	"github.com/bnema/segbridge/internal/bridge"
)

// Framebuffer is a 32-bit guest surface.
type Framebuffer struct {
	width, height int
	stride        int
	format        bridge.PixelFormat
	data          []byte
}

// NewFramebuffer allocates a zeroed surface of the given format.
func NewFramebuffer(width, height int, format bridge.PixelFormat) *Framebuffer {
	stride := width * 4
	return &Framebuffer{
		width:  width,
		height: height,
		stride: stride,
		format: format,
		data:   make([]byte, stride*height),
	}
}

func (f *Framebuffer) Width() int                 { return f.width }
func (f *Framebuffer) Height() int                { return f.height }
func (f *Framebuffer) BitsPerPixel() int          { return 32 }
func (f *Framebuffer) Format() bridge.PixelFormat { return f.format }
func (f *Framebuffer) Stride() int                { return f.stride }
func (f *Framebuffer) Data() []byte               { return f.data }

// Set writes one pixel in the surface's byte order.
func (f *Framebuffer) Set(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return
	}
	p := f.data[y*f.stride+x*4:]
	switch f.format {
	case bridge.FormatA8B8G8R8, bridge.FormatX8B8G8R8:
		p[0], p[1], p[2], p[3] = r, g, b, 0xff
	default:
		p[0], p[1], p[2], p[3] = b, g, r, 0xff
	}
}

// At reads one pixel back as r, g, b.
func (f *Framebuffer) At(x, y int) (r, g, b uint8) {
	p := f.data[y*f.stride+x*4:]
	switch f.format {
	case bridge.FormatA8B8G8R8, bridge.FormatX8B8G8R8:
		return p[0], p[1], p[2]
	default:
		return p[2], p[1], p[0]
	}
}

const barWidth = 8

// pattern draws a gradient background with a moving vertical bar.
type pattern struct {
	fb    *Framebuffer
	barX  int
	frame uint64
}

func newPattern(fb *Framebuffer) *pattern {
	p := &pattern{fb: fb}
	p.fill(0, fb.width)
	p.drawBar()
	return p
}

func (p *pattern) background(x, y int) (r, g, b uint8) {
	w, h := max(p.fb.width-1, 1), max(p.fb.height-1, 1)
	return uint8(x * 255 / w), uint8(y * 255 / h), 0x40
}

func (p *pattern) fill(x0, x1 int) {
	for y := 0; y < p.fb.height; y++ {
		for x := max(x0, 0); x < min(x1, p.fb.width); x++ {
			r, g, b := p.background(x, y)
			p.fb.Set(x, y, r, g, b)
		}
	}
}

func (p *pattern) drawBar() {
	for y := 0; y < p.fb.height; y++ {
		for x := p.barX; x < min(p.barX+barWidth, p.fb.width); x++ {
			p.fb.Set(x, y, 0xff, 0xff, 0xff)
		}
	}
}

// step moves the bar and returns the changed column span.
func (p *pattern) step() (x, w int) {
	old := p.barX
	p.fill(old, old+barWidth)
	p.frame++
	if p.fb.width > barWidth {
		p.barX = (p.barX + 4) % (p.fb.width - barWidth)
	}
	p.drawBar()

	lo, hi := min(old, p.barX), max(old, p.barX)+barWidth
	return lo, min(hi, p.fb.width) - lo
}
