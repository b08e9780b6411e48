package cmd

import (
	"context"
	"fmt"
	"image/png"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/shmif"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var compositorCmd = &cobra.Command{
	Use:   "compositor",
	Short: "Run a headless compositor for local testing",
	Long: `Run a minimal compositor peer that accepts display segments, logs
presented frames and status messages, and optionally writes the latest
frame of every segment as a PNG file.`,
	RunE: runCompositor,
}

func init() {
	f := compositorCmd.Flags()
	f.String("listen", "", "Socket path to listen on (default display.conn_path)")
	f.String("dir", "", "Directory for segment files")
	f.Int("width", 0, "Initial segment width")
	f.Int("height", 0, "Initial segment height")
	f.String("args", "", "Connection arguments handed to clients")
	f.Int("max-segments", 0, "Maximum live segments")
	f.String("snapshot-dir", "", "Write the latest frame of each segment here")

	viper.BindPFlag("compositor.dir", f.Lookup("dir"))
	viper.BindPFlag("compositor.width", f.Lookup("width"))
	viper.BindPFlag("compositor.height", f.Lookup("height"))
	viper.BindPFlag("compositor.args", f.Lookup("args"))
	viper.BindPFlag("compositor.max_segments", f.Lookup("max-segments"))
	viper.BindPFlag("compositor.snapshot_dir", f.Lookup("snapshot-dir"))

	rootCmd.AddCommand(compositorCmd)
}

func runCompositor(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	c := cfg.Compositor
	sock := cfg.Display.ConnPath
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		sock = listen
	}

	srv := shmif.NewServer(shmif.ServerOptions{
		Dir:         c.Dir,
		Width:       c.Width,
		Height:      c.Height,
		Args:        c.Args,
		MaxSegments: c.MaxSegments,
	})
	rec := newFrameRecorder(c.SnapshotDir)
	rec.attach(srv)

	if err := os.RemoveAll(sock); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", sock, err)
	}
	defer os.Remove(sock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Compositor listening on %s (%dx%d, args %q)", sock, c.Width, c.Height, c.Args)
	if c.SnapshotDir != "" {
		logger.Infof("Writing frames to %s", c.SnapshotDir)
	}
	return srv.Serve(ctx, l)
}

// frameRecorder logs what clients publish and dumps their frames
type frameRecorder struct {
	snapshotDir string
	minInterval time.Duration
	log         *log.Logger

	mu     sync.Mutex
	frames map[uint32]uint64
	idents map[uint32]string
	saved  map[uint32]time.Time
}

func newFrameRecorder(snapshotDir string) *frameRecorder {
	return &frameRecorder{
		snapshotDir: snapshotDir,
		minInterval: time.Second,
		log:         logger.WithPrefix("compositor"),
		frames:      make(map[uint32]uint64),
		idents:      make(map[uint32]string),
		saved:       make(map[uint32]time.Time),
	}
}

func (r *frameRecorder) attach(srv *shmif.Server) {
	srv.OnSegment = r.onSegment
	srv.OnSignal = r.onSignal
	srv.OnResize = r.onResize
	srv.OnDrop = r.onDrop
}

func (r *frameRecorder) onSegment(p *shmif.PeerSegment) {
	r.log.Info("Segment attached", "id", p.ID(), "kind", p.Kind(), "path", p.Path())
}

func (r *frameRecorder) onResize(p *shmif.PeerSegment, w, h int) {
	r.log.Info("Segment resized", "id", p.ID(), "width", w, "height", h)
}

func (r *frameRecorder) onDrop(p *shmif.PeerSegment) {
	r.mu.Lock()
	frames := r.frames[p.ID()]
	r.mu.Unlock()
	r.log.Info("Segment dropped", "id", p.ID(), "frames", frames)
}

func (r *frameRecorder) onSignal(p *shmif.PeerSegment, sig shmif.Signal) {
	r.drainMessages(p)

	r.mu.Lock()
	r.frames[p.ID()]++
	due := r.snapshotDir != "" && time.Since(r.saved[p.ID()]) >= r.minInterval
	if due {
		r.saved[p.ID()] = time.Now()
	}
	r.mu.Unlock()

	r.log.Debug("Frame", "id", p.ID(), "seq", sig.Seq, "dirty", sig.Dirty, "texture", sig.Texture)
	if due {
		if err := r.save(p); err != nil {
			r.log.Warn("Snapshot failed", "id", p.ID(), "error", err)
		}
	}
}

func (r *frameRecorder) drainMessages(p *shmif.PeerSegment) {
	var ev shmif.Event
	for p.PollOutbound(&ev) {
		switch ev.External.Kind {
		case shmif.ExternalIdent:
			r.mu.Lock()
			r.idents[p.ID()] = ev.External.Message
			r.mu.Unlock()
			r.log.Info("Ident", "id", p.ID(), "text", ev.External.Message)
		case shmif.ExternalCursorHint:
			r.log.Debug("Cursor hint", "id", p.ID(), "hint", ev.External.Message)
		default:
			r.log.Debug("Message", "id", p.ID(), "kind", ev.External.Kind, "text", ev.External.Message)
		}
	}
}

// snapshotPath is where the latest frame of segment id is written
func (r *frameRecorder) snapshotPath(id uint32) string {
	return filepath.Join(r.snapshotDir, fmt.Sprintf("segment-%d.png", id))
}

func (r *frameRecorder) save(p *shmif.PeerSegment) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.snapshotDir, 0755); err != nil {
		return err
	}

	dst := r.snapshotPath(p.ID())
	tmp, err := os.CreateTemp(r.snapshotDir, ".segment-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, frame.Image()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Frames returns the number of frames segment id presented
func (r *frameRecorder) Frames(id uint32) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[id]
}

// Ident returns the last status text of segment id
func (r *frameRecorder) Ident(id uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idents[id]
}
