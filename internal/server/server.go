// Package server runs a bridged guest: the guest loop, the display bridge,
// the control socket and the optional status monitor
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bnema/segbridge/internal/bridge"
	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/guest"
	"github.com/bnema/segbridge/internal/input"
	"github.com/bnema/segbridge/internal/ipc"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/network"
	pb "github.com/bnema/segbridge/internal/proto"
)

const (
	publishInterval = 100 * time.Millisecond
	commandTimeout  = 2 * time.Second
)

// ErrNoStatus is returned before the first status snapshot is published
var ErrNoStatus = errors.New("status not available yet")

// Server owns every component of a bridged guest
type Server struct {
	config    *config.Config
	host      *guest.Host
	bridge    *bridge.Bridge
	queue     input.Queue
	tap       *guest.LEDTap
	ipcServer *ipc.SocketServer
	monitor   *network.MonitorServer
	release   *EmergencyRelease

	status    atomic.Pointer[pb.StatusResponse]
	published time.Time
}

// New creates a server connected to the compositor at cfg.Display.ConnPath
func New(cfg *config.Config) (*Server, error) {
	queue, err := input.NewQueue(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input queue: %w", err)
	}
	return NewWithConnector(cfg, bridge.NewShmifConnector(cfg.Display.ConnPath), queue), nil
}

// NewWithConnector creates a server using connector and queue
func NewWithConnector(cfg *config.Config, connector bridge.Connector, queue input.Queue) *Server {
	s := &Server{
		config: cfg,
		queue:  queue,
		host:   guest.NewHost(cfg.Guest, guest.FallbackFormat),
	}

	s.tap = guest.NewLEDTap(queue, func(led int) {
		s.bridge.SetLED(led)
	})
	s.bridge = bridge.New(connector, s.host, s.host, s.tap, BridgeOptions(cfg))
	s.release = NewEmergencyRelease(s)
	return s
}

// BridgeOptions maps the configuration onto bridge options
func BridgeOptions(cfg *config.Config) bridge.Options {
	d := cfg.Display
	return bridge.Options{
		Label:                 d.Name,
		Limit:                 d.Limit,
		GL:                    d.GL,
		DirectBlit:            d.DirectBlit,
		DrainCap:              d.DrainCap,
		RefreshInterval:       time.Duration(d.RefreshIntervalMs) * time.Millisecond,
		HiddenRefreshInterval: time.Duration(d.HiddenRefreshIntervalMs) * time.Millisecond,
		HandshakeTimeout:      time.Duration(d.HandshakeTimeoutMs) * time.Millisecond,
		LockTimeout:           time.Duration(d.LockTimeoutMs) * time.Millisecond,
		Buffers: bridge.Buffers{
			Video:     cfg.Buffers.VideoCount,
			Audio:     cfg.Buffers.AudioCount,
			AudioSize: cfg.Buffers.AudioSize,
		},
	}
}

// Start connects to the compositor, binds the displays and starts the
// control socket and monitor. A failed primary handshake is returned
// wrapped in bridge.ErrPrimaryUnavailable.
func (s *Server) Start(ctx context.Context) error {
	n, err := s.bridge.Open(ctx)
	if err != nil {
		return err
	}
	logger.Infof("Bound %d display(s) to compositor at %s", n, s.config.Display.ConnPath)

	s.host.OnStateChange(func(st guest.State) {
		logger.Infof("Guest is now %s", st)
		s.bridge.OnRunStateChange()
		s.publish()
	})
	s.host.OnTick(func() {
		if time.Since(s.published) >= publishInterval {
			s.publish()
		}
	})
	s.publish()

	ipcServer, err := ipc.NewSocketServer(s, s.config.Control.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC server: %w", err)
	}
	if err := ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	s.ipcServer = ipcServer

	if s.config.Monitor.Enabled {
		if err := s.initMonitor(ctx); err != nil {
			// The monitor is optional, the guest keeps running without it
			logger.Warnf("Status monitor disabled: %v", err)
		}
	}

	s.release.Start()
	return nil
}

// initMonitor starts the SSH status monitor
func (s *Server) initMonitor(ctx context.Context) error {
	m := s.config.Monitor
	hostKeyPath := expandPath(m.HostKeyPath)

	if err := os.MkdirAll(filepath.Dir(hostKeyPath), 0700); err != nil {
		return fmt.Errorf("failed to create host key directory: %w", err)
	}

	s.monitor = network.NewMonitorServer(m.BindAddress, m.Port, hostKeyPath, s.Status)
	if err := s.monitor.Start(ctx); err != nil {
		s.monitor = nil
		return err
	}
	return nil
}

// Run drives the guest loop until shutdown or ctx is done
func (s *Server) Run(ctx context.Context) error {
	err := s.host.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop releases every resource in reverse start order
func (s *Server) Stop() {
	s.release.Stop()

	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.ipcServer != nil {
		s.ipcServer.Stop()
	}
	if err := s.bridge.Close(); err != nil {
		logger.Debugf("Closing bridge: %v", err)
	}
	if err := s.queue.Close(); err != nil {
		logger.Debugf("Closing input queue: %v", err)
	}
}

// Host returns the guest host
func (s *Server) Host() *guest.Host { return s.host }

// Bridge returns the display bridge
func (s *Server) Bridge() *bridge.Bridge { return s.bridge }

// SocketPath returns the control socket path, empty before Start
func (s *Server) SocketPath() string {
	if s.ipcServer == nil {
		return ""
	}
	return s.ipcServer.Path()
}

// Status returns the last published snapshot. Safe from any goroutine.
func (s *Server) Status() (*pb.StatusResponse, error) {
	st := s.status.Load()
	if st == nil {
		return nil, ErrNoStatus
	}
	return st, nil
}

// publish snapshots the bridge. Runs on the loop goroutine.
func (s *Server) publish() {
	bs := s.bridge.Status()
	st := &pb.StatusResponse{
		Running:    bs.Running,
		State:      s.host.State().String(),
		Name:       bs.Label,
		LedState:   int32(bs.LED),
		Gl:         bs.GL,
		Compositor: s.config.Display.ConnPath,
		Displays:   make([]*pb.DisplayInfo, 0, len(bs.Displays)),
	}
	for _, d := range bs.Displays {
		st.Displays = append(st.Displays, &pb.DisplayInfo{
			Index:             int32(d.Index),
			Width:             int32(d.Width),
			Height:            int32(d.Height),
			Mode:              d.Mode.String(),
			Hidden:            d.Hidden,
			Frames:            d.Frames,
			PressedKeys:       int32(d.Pressed),
			RefreshIntervalMs: int32(d.Interval / time.Millisecond),
		})
	}
	s.status.Store(st)
	s.published = time.Now()
}

// exec runs fn on the loop goroutine and waits for it
func (s *Server) exec(fn func()) error {
	done := make(chan struct{})
	if err := s.host.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-time.After(commandTimeout):
		return fmt.Errorf("guest loop did not answer within %s", commandTimeout)
	}
}

// HandleStatusQuery answers with the last snapshot
func (s *Server) HandleStatusQuery(query *pb.StatusQuery) (*pb.IPCMessage, error) {
	st, err := s.Status()
	if err != nil {
		return nil, err
	}
	return ipc.NewStatusResponseMessage(st), nil
}

// HandleRunStateCommand applies a run-state change on the loop goroutine
func (s *Server) HandleRunStateCommand(cmd *pb.RunStateCommand) (*pb.IPCMessage, error) {
	var apply func()
	switch cmd.Action {
	case pb.RunStateActionPause:
		apply = s.host.Pause
	case pb.RunStateActionResume:
		apply = s.host.Resume
	case pb.RunStateActionReset:
		apply = func() { s.host.RequestReset(bridge.CauseGuestReset) }
	case pb.RunStateActionShutdown:
		apply = func() { s.host.RequestShutdown(bridge.CauseHostUI) }
	default:
		return nil, fmt.Errorf("unsupported run-state action %s", cmd.Action)
	}

	logger.Infof("Run-state request: %s", cmd.Action)
	if err := s.exec(func() {
		apply()
		s.publish()
	}); err != nil {
		return nil, err
	}
	return s.HandleStatusQuery(nil)
}

// HandleLEDCommand replaces the keyboard LED state
func (s *Server) HandleLEDCommand(cmd *pb.LEDCommand) (*pb.IPCMessage, error) {
	if err := s.exec(func() {
		s.tap.Set(int(cmd.Mask) & (bridge.LEDScroll | bridge.LEDNum | bridge.LEDCaps))
		s.publish()
	}); err != nil {
		return nil, err
	}
	return s.HandleStatusQuery(nil)
}

// ReleaseKeys releases every key held on any display. Runs on the loop
// goroutine.
func (s *Server) ReleaseKeys() int {
	n := 0
	for _, seg := range s.bridge.Segments() {
		n += seg.ResetPressed()
	}
	if n > 0 {
		if err := s.queue.Sync(); err != nil {
			logger.Warnf("Input sync after key release failed: %v", err)
		}
	}
	return n
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		// When running with sudo, use the actual user's home directory
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			u, err := user.Lookup(sudoUser)
			if err == nil {
				return filepath.Join(u.HomeDir, path[2:])
			}
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
