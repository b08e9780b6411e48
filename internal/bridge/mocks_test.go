package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/segbridge/internal/input"
	"github.com/bnema/segbridge/internal/shmif"
)

// MockTransport records everything the bridge does to a segment
type MockTransport struct {
	width, height, stride int
	pixels                []byte

	inbound  []shmif.Event
	outbound []shmif.Event
	signals  []shmif.Rect
	textures []uint32
	resizes  []resizeCall

	connected  bool
	dropped    bool
	lockErr    error
	locked     bool
	contextSet bool
}

type resizeCall struct {
	width, height int
	ext           shmif.ResizeExt
}

func NewMockTransport(w, h int) *MockTransport {
	return &MockTransport{
		width:     w,
		height:    h,
		stride:    w * 4,
		pixels:    make([]byte, w*h*4),
		connected: true,
	}
}

func (m *MockTransport) Width() int     { return m.width }
func (m *MockTransport) Height() int    { return m.height }
func (m *MockTransport) Stride() int    { return m.stride }
func (m *MockTransport) Pixels() []byte { return m.pixels }

func (m *MockTransport) Poll(ev *shmif.Event) bool {
	if len(m.inbound) == 0 {
		return false
	}
	*ev = m.inbound[0]
	m.inbound = m.inbound[1:]
	return true
}

func (m *MockTransport) Enqueue(ev shmif.Event) error {
	if !m.connected {
		return shmif.ErrClosed
	}
	m.outbound = append(m.outbound, ev)
	return nil
}

func (m *MockTransport) Signal(dirty shmif.Rect) error {
	m.signals = append(m.signals, dirty)
	return nil
}

func (m *MockTransport) SignalTexture(tex uint32, dirty shmif.Rect) error {
	m.textures = append(m.textures, tex)
	m.signals = append(m.signals, dirty)
	return nil
}

func (m *MockTransport) Lock(ctx context.Context) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locked = true
	return nil
}

func (m *MockTransport) Unlock() { m.locked = false }

func (m *MockTransport) Resize(w, h int, ext shmif.ResizeExt) error {
	if !m.locked {
		return errors.New("resize without lock")
	}
	m.resizes = append(m.resizes, resizeCall{w, h, ext})
	m.width, m.height, m.stride = w, h, w*4
	m.pixels = make([]byte, w*h*4)
	return nil
}

func (m *MockTransport) Connected() bool { return m.connected }

func (m *MockTransport) Drop() error {
	m.dropped = true
	m.connected = false
	return nil
}

func (m *MockTransport) SetupContext(opts shmif.ContextOptions) error {
	m.contextSet = true
	return nil
}

func (m *MockTransport) DropContext() { m.contextSet = false }

func (m *MockTransport) MakeCurrent() error {
	if !m.contextSet {
		return shmif.ErrNoContext
	}
	return nil
}

// messages returns the outbound external messages of kind
func (m *MockTransport) messages(kind shmif.ExternalKind) []string {
	var out []string
	for _, ev := range m.outbound {
		if ev.Category == shmif.CategoryExternal && ev.External.Kind == kind {
			out = append(out, ev.External.Message)
		}
	}
	return out
}

// plainTransport hides the texture methods of a MockTransport
type plainTransport struct {
	Transport
}

type subResult struct {
	t   Transport
	err error
}

// MockConnector hands out scripted segments
type MockConnector struct {
	primary    Transport
	primaryErr error
	args       shmif.Args
	subs       []subResult
	acquired   int
	closed     bool
}

func (c *MockConnector) OpenPrimary(ctx context.Context) (Transport, shmif.Args, error) {
	if c.primaryErr != nil {
		return nil, nil, c.primaryErr
	}
	return c.primary, c.args, nil
}

func (c *MockConnector) AcquireSubsegment(ctx context.Context) (Transport, error) {
	c.acquired++
	if len(c.subs) == 0 {
		return nil, shmif.ErrRejected
	}
	next := c.subs[0]
	c.subs = c.subs[1:]
	return next.t, next.err
}

func (c *MockConnector) Close() error {
	c.closed = true
	return nil
}

type mockConsole struct {
	index   int
	graphic bool
}

func (c mockConsole) Index() int      { return c.index }
func (c mockConsole) IsGraphic() bool { return c.graphic }

// MockHost is a display host with a fixed console list
type MockHost struct {
	consoles  []mockConsole
	surface   Surface
	sinks     []DisplaySink
	intervals map[DisplaySink]time.Duration
	redraws   int
}

func NewMockHost(graphic ...bool) *MockHost {
	h := &MockHost{intervals: make(map[DisplaySink]time.Duration)}
	for i, g := range graphic {
		h.consoles = append(h.consoles, mockConsole{index: i, graphic: g})
	}
	return h
}

func (h *MockHost) ConsoleByIndex(index int) (Console, bool) {
	if index < 0 || index >= len(h.consoles) {
		return nil, false
	}
	return h.consoles[index], true
}

func (h *MockHost) RegisterListener(console Console, sink DisplaySink) {
	h.sinks = append(h.sinks, sink)
	if h.surface != nil {
		sink.SwitchSurface(h.surface)
	}
}

func (h *MockHost) UpdateRefreshInterval(sink DisplaySink, interval time.Duration) {
	h.intervals[sink] = interval
}

func (h *MockHost) RequestRedraw() { h.redraws++ }

// MockRunState records run-state requests
type MockRunState struct {
	running   bool
	shutdowns []ShutdownCause
	resets    []ShutdownCause
}

func (r *MockRunState) IsRunning() bool { return r.running }

func (r *MockRunState) RequestShutdown(cause ShutdownCause) {
	r.shutdowns = append(r.shutdowns, cause)
}

func (r *MockRunState) RequestReset(cause ShutdownCause) {
	r.resets = append(r.resets, cause)
}

type queuedEvent struct {
	kind    string
	key     input.KeyCode
	button  input.Button
	axis    input.Axis
	value   int
	max     int
	pressed bool
}

// MockQueue records queued input
type MockQueue struct {
	events []queuedEvent
	syncs  int
}

func (q *MockQueue) QueueKey(code input.KeyCode, pressed bool) error {
	q.events = append(q.events, queuedEvent{kind: "key", key: code, pressed: pressed})
	return nil
}

func (q *MockQueue) QueueButton(btn input.Button, pressed bool) error {
	q.events = append(q.events, queuedEvent{kind: "button", button: btn, pressed: pressed})
	return nil
}

func (q *MockQueue) QueueRelativeAxis(axis input.Axis, delta int) error {
	q.events = append(q.events, queuedEvent{kind: "rel", axis: axis, value: delta})
	return nil
}

func (q *MockQueue) QueueAbsoluteAxis(axis input.Axis, value, min, max int) error {
	q.events = append(q.events, queuedEvent{kind: "abs", axis: axis, value: value, max: max})
	return nil
}

func (q *MockQueue) Sync() error {
	q.syncs++
	return nil
}

func (q *MockQueue) Close() error { return nil }

type testSurface struct {
	width, height, stride int
	format                PixelFormat
	data                  []byte
}

// newBGRXSurface fills every pixel with (b, g, r) derived from its position
func newBGRXSurface(w, h, stride int) *testSurface {
	s := &testSurface{width: w, height: h, stride: stride, format: FormatX8R8G8B8, data: make([]byte, stride*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*stride + x*4
			s.data[off+0] = byte(x * 10)
			s.data[off+1] = byte(y * 20)
			s.data[off+2] = byte(x + y)
			s.data[off+3] = 0x7f
		}
	}
	return s
}

func (s *testSurface) Width() int          { return s.width }
func (s *testSurface) Height() int         { return s.height }
func (s *testSurface) BitsPerPixel() int   { return 32 }
func (s *testSurface) Format() PixelFormat { return s.format }
func (s *testSurface) Stride() int         { return s.stride }
func (s *testSurface) Data() []byte        { return s.data }

type fixture struct {
	bridge    *Bridge
	connector *MockConnector
	host      *MockHost
	run       *MockRunState
	queue     *MockQueue
	primary   *MockTransport
}

func newFixture(opts Options, graphic ...bool) *fixture {
	f := &fixture{
		primary: NewMockTransport(64, 48),
		host:    NewMockHost(graphic...),
		run:     &MockRunState{running: true},
		queue:   &MockQueue{},
	}
	f.connector = &MockConnector{primary: f.primary}
	f.bridge = New(f.connector, f.host, f.run, f.queue, opts)
	return f
}

// single opens a fixture with one graphical console bound to the primary
func single(opts Options) (*fixture, *DisplaySegment) {
	f := newFixture(opts, true)
	if _, err := f.bridge.Open(context.Background()); err != nil {
		panic(err)
	}
	return f, f.bridge.Segments()[0]
}
