package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/segbridge/internal/shmif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPrimaryFailureIsFatal(t *testing.T) {
	f := newFixture(Options{}, true, true)
	f.connector.primaryErr = context.DeadlineExceeded

	n, err := f.bridge.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrimaryUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, n)
	assert.Empty(t, f.host.sinks, "no listener registered after a failed handshake")
}

func TestOpenPrimaryReadsArgs(t *testing.T) {
	tests := []struct {
		name string
		args string
		want Buffers
	}{
		{"defaults", "", Buffers{1, 8, 4096}},
		{"all set", "vbufc=2:abufc=4:abuf_sz=1024", Buffers{2, 4, 1024}},
		{"malformed kept default", "vbufc=two:abufc=-1", Buffers{1, 8, 4096}},
		{"clamped", "vbufc=9:abufc=99:abuf_sz=1000000", Buffers{shmif.MaxVideoBuffers, shmif.MaxAudioBuffers, shmif.MaxAudioBufferSize}},
		{"zero video ignored", "vbufc=0", Buffers{1, 8, 4096}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{}, true)
			f.connector.args = shmif.ParseArgs(tt.args)

			_, err := f.bridge.OpenPrimary(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.bridge.Buffers())
		})
	}
}

func TestOpenSendsCursorHintFirst(t *testing.T) {
	f, _ := single(Options{Label: "box"})

	require.NotEmpty(t, f.primary.outbound)
	first := f.primary.outbound[0]
	assert.Equal(t, shmif.ExternalCursorHint, first.External.Kind)
	assert.Equal(t, "hidden", first.External.Message)

	idents := f.primary.messages(shmif.ExternalIdent)
	assert.Equal(t, []string{"VM[0][]:box(Running)"}, idents, "initial status broadcast")
}

func TestEnumerateLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, MaxDisplays},
		{"below ceiling", 2, 2},
		{"clamped to ceiling", 9, MaxDisplays},
		{"negative", -1, MaxDisplays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{}, true, true, true, true, true, true)
			for i := 0; i < 5; i++ {
				f.connector.subs = append(f.connector.subs, subResult{t: NewMockTransport(32, 32)})
			}

			_, err := f.bridge.OpenPrimary(context.Background())
			require.NoError(t, err)
			n, err := f.bridge.EnumerateAndBind(context.Background(), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Len(t, f.host.sinks, tt.want)
			assert.Equal(t, tt.want-1, f.connector.acquired)
		})
	}
}

func TestEnumerateSkipsTextConsoles(t *testing.T) {
	f := newFixture(Options{}, false, true, false, true)
	sub := NewMockTransport(32, 32)
	f.connector.subs = []subResult{{t: sub}}

	n, err := f.bridge.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	segs := f.bridge.Segments()
	assert.Equal(t, 1, segs[0].Index())
	assert.Same(t, f.primary, segs[0].Transport(), "first graphical console takes the primary")
	assert.Equal(t, 3, segs[1].Index())
	assert.Same(t, sub, segs[1].Transport())
}

func TestEnumerateStopsAtFailingDisplay(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rejected", shmif.ErrRejected},
		{"transport failure", errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{}, true, true, true, true)
			f.connector.subs = []subResult{
				{t: NewMockTransport(32, 32)},
				{err: tt.err},
				{t: NewMockTransport(32, 32)},
			}

			n, err := f.bridge.Open(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			assert.Equal(t, 2, f.connector.acquired, "index 3 is never attempted")
			assert.False(t, f.primary.dropped)

			_, ok := f.bridge.Segment(1)
			assert.True(t, ok)
			_, ok = f.bridge.Segment(2)
			assert.False(t, ok)
		})
	}
}

func TestEnumerateWithoutGraphicConsoles(t *testing.T) {
	f := newFixture(Options{}, false, false)

	n, err := f.bridge.Open(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, f.primary.dropped)
	assert.Empty(t, f.host.sinks)
}

func TestEnumerateRequiresPrimary(t *testing.T) {
	f := newFixture(Options{}, true)
	_, err := f.bridge.EnumerateAndBind(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPrimaryUnavailable)
}

func TestBindRegistersRefreshInterval(t *testing.T) {
	f, seg := single(Options{})
	assert.Equal(t, DefaultRefreshInterval, f.host.intervals[seg.Sink()])
	assert.IsType(t, &Listener{}, seg.Sink())
}

func TestCloseDropsEverySegment(t *testing.T) {
	f := newFixture(Options{}, true, true)
	sub := NewMockTransport(32, 32)
	f.connector.subs = []subResult{{t: sub}}

	_, err := f.bridge.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.bridge.Close())

	assert.True(t, sub.dropped)
	assert.True(t, f.primary.dropped)
	assert.True(t, f.connector.closed)
	assert.Empty(t, f.bridge.Segments())
}

func TestStatusSnapshot(t *testing.T) {
	f, seg := single(Options{Label: "vm1"})
	seg.OnSurfaceSwitch(newBGRXSurface(16, 8, 64))
	seg.PushRegion(0, 0, 16, 8)
	f.bridge.SetLED(LEDCaps)

	st := f.bridge.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "vm1", st.Label)
	assert.Equal(t, LEDCaps, st.LED)
	require.Len(t, st.Displays, 1)
	d := st.Displays[0]
	assert.Equal(t, 16, d.Width)
	assert.Equal(t, 8, d.Height)
	assert.Equal(t, BlitRepack, d.Mode)
	assert.Equal(t, uint64(1), d.Frames)
}
