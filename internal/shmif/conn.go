package shmif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bnema/segbridge/internal/logger"
)

var (
	// ErrRejected is returned when the compositor explicitly refuses a
	// segment.
	ErrRejected = errors.New("segment request rejected")
	// ErrQueueFull is returned when an event ring has no free slot.
	ErrQueueFull = errors.New("event queue full")
	// ErrClosed is returned for operations on a dropped segment or a closed
	// connection.
	ErrClosed = errors.New("segment connection closed")
	// ErrLockTimeout is returned when the segment lock could not be taken
	// before the context ended.
	ErrLockTimeout = errors.New("segment lock timeout")
)

const notifyTimeout = time.Second

// Conn is a client connection to a compositor. It owns the control socket
// and every segment acquired through it.
type Conn struct {
	mu      sync.Mutex
	sock    net.Conn
	args    Args
	primary *Segment
	closed  bool
}

// Connect dials the compositor at path and registers a primary segment of
// the given kind. The handshake is bounded by ctx.
func Connect(ctx context.Context, path string, kind Kind) (*Conn, *Segment, error) {
	var d net.Dialer
	sock, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to compositor: %w", err)
	}

	c := &Conn{sock: sock}
	seg, args, err := c.request(ctx, &frame{Type: frameRegister, Kind: kind})
	if err != nil {
		sock.Close()
		return nil, nil, err
	}
	c.args = ParseArgs(args)
	c.primary = seg

	logger.Debug("Registered primary segment", "segment", seg.id, "width", seg.Width(), "height", seg.Height(), "args", args)
	return c, seg, nil
}

// Args returns the arguments the compositor supplied on registration.
func (c *Conn) Args() Args {
	return c.args
}

// Acquire requests an additional segment. It returns ErrRejected when the
// compositor refuses, and any other error for transport failures.
func (c *Conn) Acquire(ctx context.Context, kind Kind) (*Segment, error) {
	seg, _, err := c.request(ctx, &frame{Type: frameSegmentRequest, Kind: kind})
	if err != nil {
		return nil, err
	}
	logger.Debug("Acquired sub-segment", "segment", seg.id, "kind", kind)
	return seg, nil
}

// Close tears down the control socket. Segments mapped through this
// connection report disconnected afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.sock.Close()
}

func (c *Conn) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) request(ctx context.Context, req *frame) (*Segment, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, "", ErrClosed
	}

	if dl, ok := ctx.Deadline(); ok {
		c.sock.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		c.sock.SetDeadline(time.Now())
	})
	defer func() {
		stop()
		c.sock.SetDeadline(time.Time{})
	}()

	if err := writeFrame(c.sock, req); err != nil {
		return nil, "", c.transportError(ctx, err)
	}
	reply, err := readFrame(c.sock)
	if err != nil {
		return nil, "", c.transportError(ctx, err)
	}

	switch reply.Type {
	case frameAccept:
		seg, err := openSegment(c, reply)
		if err != nil {
			return nil, "", err
		}
		return seg, reply.Args, nil
	case frameReject:
		return nil, "", fmt.Errorf("%w: %s", ErrRejected, reply.Reason)
	default:
		return nil, "", fmt.Errorf("unexpected %s reply to %s", reply.Type, req.Type)
	}
}

func (c *Conn) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("compositor handshake: %w", ctxErr)
	}
	return fmt.Errorf("compositor transport: %w", err)
}

// notify sends a frame that expects no reply. A write failure closes the
// connection.
func (c *Conn) notify(f *frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.sock.SetWriteDeadline(time.Now().Add(notifyTimeout))
	defer c.sock.SetWriteDeadline(time.Time{})
	if err := writeFrame(c.sock, f); err != nil {
		c.closeLocked()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func openSegment(c *Conn, reply *frame) (*Segment, error) {
	f, err := os.OpenFile(reply.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}
	m, err := mapSegment(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := m.validate(); err != nil {
		m.close()
		return nil, err
	}
	if id := m.load(offID); id != reply.Segment {
		m.close()
		return nil, fmt.Errorf("segment id mismatch: header %d, reply %d", id, reply.Segment)
	}

	return &Segment{
		conn: c,
		id:   reply.Segment,
		kind: Kind(m.load(offKind)),
		m:    m,
		in:   ring{m: m, base: offInRing},
		out:  ring{m: m, base: offOutRing},
	}, nil
}
