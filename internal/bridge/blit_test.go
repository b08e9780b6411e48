package bridge

import (
	"encoding/binary"
	"testing"

	"github.com/bnema/segbridge/internal/shmif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAccept(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   bool
	}{
		{FormatB8G8R8X8, true},
		{FormatB8G8R8A8, true},
		{FormatX8R8G8B8, true},
		{FormatA8R8G8B8, true},
		{FormatA8B8G8R8, false},
		{FormatX8B8G8R8, false},
		{FormatR8G8B8X8, false},
		{FormatR5G6B5, false},
		{FormatR8G8B8, false},
		{FormatYV12, false},
		{FormatUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccept(tt.format))
		})
	}
}

func TestRepackPixel(t *testing.T) {
	for c := 0; c < 1<<24; c++ {
		b, g, r := uint8(c), uint8(c>>8), uint8(c>>16)
		px := RepackPixel(b, g, r)
		if px != RepackPixel(b, g, r) {
			t.Fatalf("repack of %d,%d,%d is not stable", b, g, r)
		}
		gr, gg, gb, ga := shmif.UnpackRGBA(px)
		if gr != r || gg != g || gb != b || ga != 0xff {
			t.Fatalf("repack(%d,%d,%d) = %d,%d,%d,%d", b, g, r, gr, gg, gb, ga)
		}
	}
}

func nativeAt(m *MockTransport, x, y int) uint32 {
	return binary.LittleEndian.Uint32(m.pixels[y*m.stride+x*4:])
}

func TestPushRegionRepack(t *testing.T) {
	f, seg := single(Options{})
	// source rows are padded, destination rows are not
	surf := newBGRXSurface(8, 4, 8*4+12)
	seg.OnSurfaceSwitch(surf)
	require.Equal(t, BlitRepack, seg.Mode())

	seg.PushRegion(2, 1, 3, 2)

	want := shmif.Rect{X1: 2, Y1: 1, X2: 5, Y2: 3}
	assert.Equal(t, want, seg.Dirty())
	require.Len(t, f.primary.signals, 1)
	assert.Equal(t, want, f.primary.signals[0])

	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			got := nativeAt(f.primary, x, y)
			if x >= 2 && x < 5 && y >= 1 && y < 3 {
				off := y*surf.stride + x*4
				assert.Equal(t, RepackPixel(surf.data[off], surf.data[off+1], surf.data[off+2]), got, "pixel %d,%d", x, y)
			} else {
				assert.Zero(t, got, "pixel %d,%d outside region", x, y)
			}
		}
	}
}

func TestPushRegionFullFrameWithBufferRotation(t *testing.T) {
	regions := [][4]int{{0, 0, 1, 1}, {5, 5, 2, 2}, {100, 100, 10, 10}}
	for _, r := range regions {
		f := newFixture(Options{}, true)
		f.connector.args = shmif.ParseArgs("vbufc=2")
		_, err := f.bridge.Open(t.Context())
		require.NoError(t, err)
		seg := f.bridge.Segments()[0]
		seg.OnSurfaceSwitch(newBGRXSurface(10, 10, 40))

		seg.PushRegion(r[0], r[1], r[2], r[3])
		assert.Equal(t, shmif.FullRect(10, 10), seg.Dirty())
	}
}

func TestPushRegionClamps(t *testing.T) {
	f, seg := single(Options{})
	seg.OnSurfaceSwitch(newBGRXSurface(10, 10, 40))

	seg.PushRegion(8, -3, 10, 5)
	assert.Equal(t, shmif.Rect{X1: 8, Y1: 0, X2: 10, Y2: 2}, seg.Dirty())

	before := len(f.primary.signals)
	seg.PushRegion(20, 20, 5, 5)
	assert.Len(t, f.primary.signals, before, "empty region is not signalled")
}

func TestPushRegionDirect(t *testing.T) {
	f, seg := single(Options{DirectBlit: true})
	surf := newBGRXSurface(4, 4, 16)
	surf.format = NativeFormat
	seg.OnSurfaceSwitch(surf)
	require.Equal(t, BlitDirect, seg.Mode())

	seg.PushRegion(0, 0, 4, 4)
	assert.Equal(t, surf.data, f.primary.pixels)
}

func TestDirectNeedsNativeFormat(t *testing.T) {
	_, seg := single(Options{DirectBlit: true})
	seg.OnSurfaceSwitch(newBGRXSurface(4, 4, 16))
	assert.Equal(t, BlitRepack, seg.Mode())
}

func TestPushRegionShareOnlySignals(t *testing.T) {
	f, seg := single(Options{})
	seg.OnSurfaceSwitch(newBGRXSurface(4, 4, 16))
	seg.mode = BlitShare

	seg.PushRegion(0, 0, 2, 2)
	assert.Len(t, f.primary.signals, 1)
	assert.Equal(t, make([]byte, len(f.primary.pixels)), f.primary.pixels)
}

func TestPushRegionDisconnected(t *testing.T) {
	f, seg := single(Options{})
	seg.OnSurfaceSwitch(newBGRXSurface(4, 4, 16))
	f.primary.connected = false

	seg.PushRegion(0, 0, 4, 4)
	assert.Empty(t, f.primary.signals)
	assert.Zero(t, seg.Frames())
}

func TestPushRegionShortSurface(t *testing.T) {
	f, seg := single(Options{})
	surf := newBGRXSurface(4, 4, 16)
	surf.data = surf.data[:20]
	seg.OnSurfaceSwitch(surf)

	assert.NotPanics(t, func() { seg.PushRegion(0, 0, 4, 4) })
	assert.Equal(t, make([]byte, len(f.primary.pixels)), f.primary.pixels)
}
