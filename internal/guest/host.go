// Package guest is a synthetic guest used to drive the bridge without a
// virtual machine. It owns a set of consoles with animated test-pattern
// surfaces and runs every display callback on one loop goroutine.
package guest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/bnema/segbridge/internal/bridge"
	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/charmbracelet/log"
)

// ErrStopped is returned when posting to a loop that has exited.
var ErrStopped = errors.New("guest loop stopped")

// State is the guest run state.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "shutdown"
	}
}

const tickInterval = 5 * time.Millisecond

// Console is one guest output.
type Console struct {
	index   int
	graphic bool
	format  bridge.PixelFormat
	fb      *Framebuffer
	pat     *pattern
}

func (c *Console) Index() int      { return c.index }
func (c *Console) IsGraphic() bool { return c.graphic }

// Surface returns the current framebuffer, nil for text consoles.
func (c *Console) Surface() *Framebuffer { return c.fb }

type binding struct {
	console  *Console
	sink     bridge.DisplaySink
	interval time.Duration
	next     time.Time
}

// FallbackFormat is the surface layout used when a listener rejects the
// configured one.
const FallbackFormat = bridge.FormatX8R8G8B8

// Host implements bridge.DisplayHost and bridge.RunState.
type Host struct {
	consoles []*Console
	bindings []*binding
	width    int
	height   int
	log      *log.Logger

	mu    sync.Mutex
	state State

	current  *binding
	commands chan func()
	done     chan struct{}
	stopOnce sync.Once

	onState []func(State)
	onTick  []func()
}

// NewHost builds consoles from cfg. Indices listed in cfg.TextConsoles are
// created without a surface.
func NewHost(cfg config.GuestConfig, format bridge.PixelFormat) *Host {
	h := &Host{
		width:    max(cfg.Width, 1),
		height:   max(cfg.Height, 1),
		log:      logger.WithPrefix("guest"),
		commands: make(chan func(), 64),
		done:     make(chan struct{}),
	}
	for i := 0; i < max(cfg.Consoles, 0); i++ {
		c := &Console{index: i, graphic: !slices.Contains(cfg.TextConsoles, i), format: format}
		if c.graphic {
			h.newSurface(c)
		}
		h.consoles = append(h.consoles, c)
	}
	return h
}

func (h *Host) newSurface(c *Console) {
	c.fb = NewFramebuffer(h.width, h.height, c.format)
	c.pat = newPattern(c.fb)
}

// Consoles returns every console in index order.
func (h *Host) Consoles() []*Console { return h.consoles }

func (h *Host) ConsoleByIndex(index int) (bridge.Console, bool) {
	if index < 0 || index >= len(h.consoles) {
		return nil, false
	}
	return h.consoles[index], true
}

func (h *Host) RegisterListener(console bridge.Console, sink bridge.DisplaySink) {
	c, ok := console.(*Console)
	if !ok {
		h.log.Warn("Foreign console ignored", "index", console.Index())
		return
	}
	b := &binding{console: c, sink: sink, interval: bridge.DefaultRefreshInterval}
	h.bindings = append(h.bindings, b)

	h.offer(b)
}

// offer hands the console surface to the binding's sink. A rejected format
// is converted to FallbackFormat first, and a surface the sink still
// rejects is withheld.
func (h *Host) offer(b *binding) {
	c := b.console
	if c.fb == nil {
		return
	}
	if !b.sink.CheckFormat(c.fb.Format()) {
		if c.format == FallbackFormat {
			h.log.Warn("Surface withheld, format rejected", "sink", b.sink.Name(), "format", c.format)
			return
		}
		h.log.Debug("Converting surface", "sink", b.sink.Name(), "from", c.format, "to", FallbackFormat)
		c.format = FallbackFormat
		h.newSurface(c)
		if !b.sink.CheckFormat(c.format) {
			h.log.Warn("Surface withheld, format rejected", "sink", b.sink.Name(), "format", c.format)
			return
		}
	}
	b.sink.SwitchSurface(c.fb)
	b.sink.Update(0, 0, c.fb.Width(), c.fb.Height())
}

func (h *Host) UpdateRefreshInterval(sink bridge.DisplaySink, interval time.Duration) {
	for _, b := range h.bindings {
		if b.sink == sink {
			b.interval = interval
			b.next = time.Now().Add(interval)
		}
	}
}

// Interval returns the refresh interval registered for sink.
func (h *Host) Interval(sink bridge.DisplaySink) (time.Duration, bool) {
	for _, b := range h.bindings {
		if b.sink == sink {
			return b.interval, true
		}
	}
	return 0, false
}

// RequestRedraw advances the pattern of the console being refreshed and
// reports the changed columns to its listener.
func (h *Host) RequestRedraw() {
	b := h.current
	if b == nil || b.console.pat == nil || !h.IsRunning() {
		return
	}
	x, w := b.console.pat.step()
	if w > 0 {
		b.sink.Update(x, 0, w, b.console.fb.Height())
	}
}

// State returns the run state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Host) IsRunning() bool {
	return h.State() == StateRunning
}

func (h *Host) setState(s State) {
	h.mu.Lock()
	prev := h.state
	if prev == StateShutdown {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.mu.Unlock()

	if prev == s {
		return
	}
	h.log.Info("Run state changed", "from", prev, "to", s)
	for _, fn := range h.onState {
		fn(s)
	}
	if s == StateShutdown {
		h.stopOnce.Do(func() { close(h.done) })
	}
}

// Pause stops the animation. Displays keep pumping events.
func (h *Host) Pause() { h.setState(StatePaused) }

// Resume restarts the animation.
func (h *Host) Resume() { h.setState(StateRunning) }

func (h *Host) RequestShutdown(cause bridge.ShutdownCause) {
	h.log.Info("Shutdown requested", "cause", cause)
	h.setState(StateShutdown)
}

// RequestReset replaces every surface with a fresh pattern.
func (h *Host) RequestReset(cause bridge.ShutdownCause) {
	h.log.Info("Reset requested", "cause", cause)
	for _, c := range h.consoles {
		if c.graphic {
			h.newSurface(c)
		}
	}
	for _, b := range h.bindings {
		h.offer(b)
	}
	h.setState(StateRunning)
}

// OnStateChange registers fn to run on the loop after every state change.
func (h *Host) OnStateChange(fn func(State)) {
	h.onState = append(h.onState, fn)
}

// OnTick registers fn to run on the loop after every tick.
func (h *Host) OnTick(fn func()) {
	h.onTick = append(h.onTick, fn)
}

// Post schedules fn on the loop goroutine.
func (h *Host) Post(fn func()) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.commands <- fn:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// Done is closed once the guest shuts down.
func (h *Host) Done() <-chan struct{} { return h.done }

// Run drives every bound listener at its own interval until ctx is
// cancelled or the guest shuts down.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		case fn := <-h.commands:
			fn()
		case now := <-ticker.C:
			h.Tick(now)
		}
	}
}

// Tick refreshes every listener that is due at now.
func (h *Host) Tick(now time.Time) {
	for _, b := range h.bindings {
		if now.Before(b.next) {
			continue
		}
		b.next = now.Add(b.interval)
		h.current = b
		b.sink.Refresh()
		h.current = nil
	}
	for _, fn := range h.onTick {
		fn()
	}
}
