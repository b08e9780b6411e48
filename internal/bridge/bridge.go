package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/segbridge/internal/input"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/shmif"
	"github.com/charmbracelet/log"
)

// Options configures a Bridge.
type Options struct {
	// Label is the guest name used in status messages.
	Label string
	// Limit caps the number of bound displays, clamped to MaxDisplays.
	Limit int
	// GL enables the GPU listener and texture forwarding.
	GL bool
	// DirectBlit allows row copies when the surface already has the
	// native layout.
	DirectBlit bool
	// DrainCap bounds events handled per pump, 0 means unlimited.
	DrainCap int

	RefreshInterval       time.Duration
	HiddenRefreshInterval time.Duration
	HandshakeTimeout      time.Duration
	LockTimeout           time.Duration

	// Buffers are used when the compositor supplies no arguments.
	Buffers Buffers

	// FormatsEqual compares surface formats, defaults to equality.
	FormatsEqual func(a, b PixelFormat) bool
}

// Buffers holds the negotiated buffering parameters.
type Buffers struct {
	Video     int
	Audio     int
	AudioSize int
}

func (o *Options) setDefaults() {
	if o.Limit <= 0 || o.Limit > MaxDisplays {
		o.Limit = MaxDisplays
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.HiddenRefreshInterval <= 0 {
		o.HiddenRefreshInterval = HiddenRefreshInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 250 * time.Millisecond
	}
	if o.Buffers.Video <= 0 {
		o.Buffers.Video = DefaultVideoBuffers
	}
	if o.Buffers.Audio <= 0 {
		o.Buffers.Audio = DefaultAudioBuffers
	}
	if o.Buffers.AudioSize <= 0 {
		o.Buffers.AudioSize = DefaultAudioBufferSize
	}
	if o.FormatsEqual == nil {
		o.FormatsEqual = func(a, b PixelFormat) bool { return a == b }
	}
	if o.Label == "" {
		o.Label = "guest"
	}
}

// Bridge owns the primary segment and every bound display.
type Bridge struct {
	opts      Options
	connector Connector
	host      DisplayHost
	run       RunState
	queue     input.Queue
	log       *log.Logger

	buffers  Buffers
	led      int
	contexts uint64

	primary  Transport
	segments []*DisplaySegment
}

// New creates a bridge. Nothing is opened until Open or OpenPrimary.
func New(connector Connector, host DisplayHost, run RunState, queue input.Queue, opts Options) *Bridge {
	opts.setDefaults()
	return &Bridge{
		opts:      opts,
		connector: connector,
		host:      host,
		run:       run,
		queue:     queue,
		log:       logger.WithPrefix("bridge"),
		buffers:   opts.Buffers,
	}
}

// Open performs the primary handshake and binds the guest consoles. It
// returns the number of bound displays. Errors wrap ErrPrimaryUnavailable.
func (b *Bridge) Open(ctx context.Context) (int, error) {
	if _, err := b.OpenPrimary(ctx); err != nil {
		return 0, err
	}
	return b.EnumerateAndBind(ctx, b.opts.Limit)
}

// OpenPrimary performs the blocking handshake for the primary segment.
func (b *Bridge) OpenPrimary(ctx context.Context) (Transport, error) {
	if b.primary != nil {
		return b.primary, nil
	}

	hctx, cancel := context.WithTimeout(ctx, b.opts.HandshakeTimeout)
	defer cancel()

	t, args, err := b.connector.OpenPrimary(hctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryUnavailable, err)
	}
	b.primary = t
	b.applyArgs(args)

	if err := t.Enqueue(shmif.Message(shmif.ExternalCursorHint, "hidden")); err != nil {
		b.log.Debug("Cursor hint not delivered", "error", err)
	}

	b.log.Info("Primary segment open",
		"width", t.Width(), "height", t.Height(),
		"vbufc", b.buffers.Video, "abufc", b.buffers.Audio, "abuf_sz", b.buffers.AudioSize)
	return t, nil
}

// applyArgs reads the buffering parameters once from the connection
// arguments. Missing or malformed values keep the configured defaults.
func (b *Bridge) applyArgs(args shmif.Args) {
	if v, ok := args.Uint("vbufc"); ok && v > 0 {
		b.buffers.Video = min(v, shmif.MaxVideoBuffers)
	}
	if v, ok := args.Uint("abufc"); ok {
		b.buffers.Audio = min(v, shmif.MaxAudioBuffers)
	}
	if v, ok := args.Uint("abuf_sz"); ok {
		b.buffers.AudioSize = min(v, shmif.MaxAudioBufferSize)
	}
}

// EnumerateAndBind walks console indices below limit and binds one
// segment per graphical console. The first graphical console takes the
// primary, later ones request sub-segments. A rejection or transport
// failure stops enumeration and keeps what is already bound.
func (b *Bridge) EnumerateAndBind(ctx context.Context, limit int) (int, error) {
	if b.primary == nil {
		return 0, ErrPrimaryUnavailable
	}
	if limit <= 0 || limit > MaxDisplays {
		limit = MaxDisplays
	}

	for i := 0; i < limit; i++ {
		con, ok := b.host.ConsoleByIndex(i)
		if !ok {
			break
		}
		if !con.IsGraphic() {
			b.log.Debug("Skipping non-graphical console", "index", i)
			continue
		}

		t := b.primary
		if len(b.segments) > 0 {
			sub, err := b.acquire(ctx)
			if errors.Is(err, shmif.ErrRejected) {
				b.log.Warn("Compositor rejected display, stopping enumeration", "index", i, "error", err)
				break
			}
			if err != nil {
				b.log.Warn("Display segment unavailable, stopping enumeration", "index", i, "error", err)
				break
			}
			t = sub
		}

		b.bind(i, con, t)
	}

	if len(b.segments) == 0 {
		b.log.Warn("No graphical consoles, releasing primary segment")
		if err := b.primary.Drop(); err != nil {
			b.log.Debug("Primary drop failed", "error", err)
		}
		b.primary = nil
		return 0, nil
	}

	b.BroadcastStatus()
	b.log.Info("Displays bound", "count", len(b.segments), "gl", b.opts.GL)
	return len(b.segments), nil
}

func (b *Bridge) acquire(ctx context.Context) (Transport, error) {
	hctx, cancel := context.WithTimeout(ctx, b.opts.HandshakeTimeout)
	defer cancel()
	return b.connector.AcquireSubsegment(hctx)
}

func (b *Bridge) bind(index int, con Console, t Transport) *DisplaySegment {
	seg := newDisplaySegment(b, index, t)
	b.segments = append(b.segments, seg)

	if b.opts.GL {
		if err := seg.setupGL(); err != nil {
			b.log.Warn("GPU setup failed", "index", index, "error", err)
		}
		seg.sink = &GLListener{Listener{seg: seg}}
	} else {
		seg.sink = &Listener{seg: seg}
	}

	b.host.RegisterListener(con, seg.sink)
	b.host.UpdateRefreshInterval(seg.sink, seg.interval)
	return seg
}

// Segments returns the bound displays in console order.
func (b *Bridge) Segments() []*DisplaySegment {
	return b.segments
}

// Segment returns the display bound to console index.
func (b *Bridge) Segment(index int) (*DisplaySegment, bool) {
	for _, s := range b.segments {
		if s.index == index {
			return s, true
		}
	}
	return nil, false
}

// GL reports whether GPU mode is active.
func (b *Bridge) GL() bool {
	return b.opts.GL
}

// Buffers returns the negotiated buffering parameters.
func (b *Bridge) Buffers() Buffers {
	return b.buffers
}

// SetLED records the guest keyboard LED state and broadcasts on change.
func (b *Bridge) SetLED(state int) {
	state &= LEDScroll | LEDNum | LEDCaps
	if state == b.led {
		return
	}
	b.led = state
	b.BroadcastStatus()
}

// LED returns the last recorded LED state.
func (b *Bridge) LED() int {
	return b.led
}

// OnRunStateChange broadcasts the new run state.
func (b *Bridge) OnRunStateChange() {
	b.BroadcastStatus()
}

// Close drops sub-segments then the primary and closes the connector.
func (b *Bridge) Close() error {
	for i := len(b.segments) - 1; i >= 0; i-- {
		s := b.segments[i]
		if s.t == b.primary {
			continue
		}
		if err := s.t.Drop(); err != nil {
			b.log.Debug("Segment drop failed", "index", s.index, "error", err)
		}
	}
	if b.primary != nil {
		if err := b.primary.Drop(); err != nil {
			b.log.Debug("Primary drop failed", "error", err)
		}
		b.primary = nil
	}
	b.segments = nil
	return b.connector.Close()
}

// DisplayStatus describes one bound display.
type DisplayStatus struct {
	Index    int
	Width    int
	Height   int
	Mode     BlitMode
	Hidden   bool
	Frames   uint64
	Pressed  int
	Interval time.Duration
}

// Status is a point-in-time view of the bridge.
type Status struct {
	Running  bool
	Label    string
	LED      int
	GL       bool
	Displays []DisplayStatus
}

// Status snapshots the bridge. Call it from the loop goroutine.
func (b *Bridge) Status() Status {
	st := Status{
		Running:  b.run.IsRunning(),
		Label:    b.opts.Label,
		LED:      b.led,
		GL:       b.opts.GL,
		Displays: make([]DisplayStatus, 0, len(b.segments)),
	}
	for _, s := range b.segments {
		st.Displays = append(st.Displays, DisplayStatus{
			Index:    s.index,
			Width:    s.t.Width(),
			Height:   s.t.Height(),
			Mode:     s.mode,
			Hidden:   s.hidden,
			Frames:   s.frames,
			Pressed:  s.PressedCount(),
			Interval: s.interval,
		})
	}
	return st
}
