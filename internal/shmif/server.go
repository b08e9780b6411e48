package shmif

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"os"
	"sync"

	"github.com/bnema/segbridge/internal/logger"
)

var errSegmentLimit = errors.New("segment limit reached")

// ServerOptions configures the compositor side of the transport.
type ServerOptions struct {
	// Dir holds the segment files. Defaults to os.TempDir().
	Dir string
	// Width and Height are the initial geometry handed to new segments.
	Width, Height int
	// Args is passed verbatim to registering clients.
	Args string
	// MaxSegments bounds live segments across all clients. Requests past
	// it are rejected.
	MaxSegments int
}

// Signal describes a frame published by a client.
type Signal struct {
	Seq     uint64
	Dirty   Rect
	Texture uint32
}

// Server is the compositor end of the transport. Callbacks run on the
// goroutine serving the owning client and must not block for long.
type Server struct {
	opts ServerOptions

	OnSegment func(*PeerSegment)
	OnSignal  func(*PeerSegment, Signal)
	OnResize  func(*PeerSegment, int, int)
	OnDrop    func(*PeerSegment)

	mu       sync.Mutex
	nextID   uint32
	segments map[uint32]*PeerSegment
	wg       sync.WaitGroup
}

// NewServer creates a server. Zero options fall back to 640x480 segments
// in the system temp directory and a limit of four segments.
func NewServer(opts ServerOptions) *Server {
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	if opts.MaxSegments <= 0 {
		opts.MaxSegments = 4
	}
	return &Server{
		opts:     opts,
		segments: make(map[uint32]*PeerSegment),
	}
}

// Serve accepts clients on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("failed to accept client: %w", err)
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Segments returns a snapshot of the live segments.
func (s *Server) Segments() []*PeerSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PeerSegment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}
	return out
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	owned := make(map[uint32]*PeerSegment)
	defer func() {
		for _, seg := range owned {
			s.release(seg)
		}
	}()

	registered := false
	for {
		f, err := readFrame(conn)
		if err != nil {
			logger.Debug("Client disconnected", "error", err)
			return
		}

		var reply *frame
		switch f.Type {
		case frameRegister, frameSegmentRequest:
			if f.Type == frameRegister && registered {
				reply = &frame{Type: frameReject, Reason: "already registered"}
				break
			}
			if f.Type == frameSegmentRequest && !registered {
				reply = &frame{Type: frameReject, Reason: "not registered"}
				break
			}
			seg, err := s.create(f.Kind)
			if err != nil {
				logger.Warn("Refusing segment", "kind", f.Kind, "error", err)
				reply = &frame{Type: frameReject, Reason: err.Error()}
				break
			}
			owned[seg.id] = seg
			registered = true
			reply = &frame{
				Type:    frameAccept,
				Segment: seg.id,
				Path:    seg.path,
				Width:   uint32(s.opts.Width),
				Height:  uint32(s.opts.Height),
				Args:    s.opts.Args,
			}
			if err := writeFrame(conn, reply); err != nil {
				logger.Debug("Failed to answer client", "error", err)
				return
			}
			if s.OnSegment != nil {
				s.OnSegment(seg)
			}
			continue

		case frameSignal:
			if seg := owned[f.Segment]; seg != nil && s.OnSignal != nil {
				s.OnSignal(seg, Signal{Seq: f.Seq, Dirty: f.Dirty, Texture: f.Texture})
			}
			continue

		case frameResized:
			if seg := owned[f.Segment]; seg != nil && s.OnResize != nil {
				s.OnResize(seg, int(f.Width), int(f.Height))
			}
			continue

		case frameDrop:
			if seg := owned[f.Segment]; seg != nil {
				delete(owned, f.Segment)
				s.release(seg)
			}
			continue

		default:
			logger.Debug("Ignoring control frame", "type", f.Type)
			continue
		}

		if err := writeFrame(conn, reply); err != nil {
			logger.Debug("Failed to answer client", "error", err)
			return
		}
	}
}

func (s *Server) create(kind Kind) (*PeerSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) >= s.opts.MaxSegments {
		return nil, errSegmentLimit
	}
	s.nextID++
	id := s.nextID

	f, err := os.CreateTemp(s.opts.Dir, fmt.Sprintf("segment-%d-*.shm", id))
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}
	stride := strideFor(s.opts.Width)
	ext := ResizeExt{VideoBuffers: 1}
	if err := f.Truncate(int64(segmentSize(stride, s.opts.Height, 1, 0, 0))); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to size segment file: %w", err)
	}
	m, err := mapSegment(f)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	m.initHeader(id, kind, s.opts.Width, s.opts.Height, stride, ext)

	seg := &PeerSegment{
		id:   id,
		kind: kind,
		path: f.Name(),
		m:    m,
		in:   ring{m: m, base: offInRing},
		out:  ring{m: m, base: offOutRing},
	}
	s.segments[id] = seg
	return seg, nil
}

func (s *Server) release(seg *PeerSegment) {
	s.mu.Lock()
	delete(s.segments, seg.id)
	s.mu.Unlock()

	seg.close()
	if s.OnDrop != nil {
		s.OnDrop(seg)
	}
}

// PeerSegment is the compositor's view of a client segment. Its methods are
// safe for concurrent use.
type PeerSegment struct {
	id   uint32
	kind Kind
	path string

	mu        sync.Mutex
	m         *mapping
	in        ring
	out       ring
	resizeSeq uint64
	closed    bool
	scratch   [slotSize]byte
}

func (p *PeerSegment) ID() uint32   { return p.id }
func (p *PeerSegment) Kind() Kind   { return p.kind }
func (p *PeerSegment) Path() string { return p.path }

// PushEvent posts an event to the client.
func (p *PeerSegment) PushEvent(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.in.push(MarshalEvent(nil, &ev)) {
		return ErrQueueFull
	}
	return nil
}

// PollOutbound dequeues the next event the client posted.
func (p *PeerSegment) PollOutbound(ev *Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	for {
		n, ok := p.out.pop(p.scratch[:])
		if !ok {
			return false
		}
		if err := UnmarshalEvent(p.scratch[:n], ev); err != nil {
			logger.Debug("Dropping malformed client event", "segment", p.id, "error", err)
			continue
		}
		return true
	}
}

// Frame is a copy of a presented video buffer.
type Frame struct {
	Width, Height int
	Stride        int
	Seq           uint64
	Dirty         Rect
	Pixels        []byte
}

// At returns the pixel at x, y.
func (f *Frame) At(x, y int) (r, g, b, a uint8) {
	off := y*f.Stride + x*4
	px := uint32(f.Pixels[off]) | uint32(f.Pixels[off+1])<<8 | uint32(f.Pixels[off+2])<<16 | uint32(f.Pixels[off+3])<<24
	return UnpackRGBA(px)
}

// Image converts the frame into an image.RGBA.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+f.Width*4], f.Pixels[y*f.Stride:])
	}
	return img
}

// Snapshot copies the most recently presented buffer. It takes the
// segment lock and follows any resize the client made since the last
// snapshot.
func (p *PeerSegment) Snapshot(ctx context.Context) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	if err := spinLock(ctx, p.m); err != nil {
		return nil, err
	}
	defer p.m.store(offLock, 0)

	if seq := p.m.load64(offResizeSeq); seq != p.resizeSeq {
		if err := p.m.remap(); err != nil {
			return nil, err
		}
		p.resizeSeq = seq
	}

	buf := p.m.videoBuffer(int(p.m.load(offPresentBuf)))
	if buf == nil {
		return nil, fmt.Errorf("presented buffer outside segment %d", p.id)
	}
	return &Frame{
		Width:  int(p.m.load(offWidth)),
		Height: int(p.m.load(offHeight)),
		Stride: int(p.m.load(offStride)),
		Seq:    p.m.load64(offFrameSeq),
		Dirty:  p.m.dirty(),
		Pixels: append([]byte(nil), buf...),
	}, nil
}

func (p *PeerSegment) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if err := p.m.close(); err != nil {
		logger.Debug("Failed to unmap segment", "segment", p.id, "error", err)
	}
	os.Remove(p.path)
}
