// Package network serves the read-only status monitor over SSH
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	gossh "golang.org/x/crypto/ssh"
)

// ErrAlreadyStarted is returned by Start on a running monitor
var ErrAlreadyStarted = errors.New("monitor already started")

// MonitorServer shows the bridge status to SSH clients whose key is
// allowed in the configuration
type MonitorServer struct {
	bindAddress string
	port        int
	hostKeyPath string
	provider    ui.StatusProvider
	refresh     time.Duration
	maxClients  int

	// Allow decides whether a key fingerprint may connect. Defaults to
	// the configured allowlist.
	Allow func(fingerprint string) bool

	sshServer *ssh.Server
	listener  net.Listener

	mu       sync.Mutex
	sessions map[string]ssh.Session

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitorServer creates a monitor for provider. A zero port picks a
// free one on Start.
func NewMonitorServer(bindAddress string, port int, hostKeyPath string, provider ui.StatusProvider) *MonitorServer {
	return &MonitorServer{
		bindAddress: bindAddress,
		port:        port,
		hostKeyPath: hostKeyPath,
		provider:    provider,
		refresh:     ui.DefaultStatusRefresh,
		maxClients:  4,
		Allow:       config.IsMonitorKeyAllowed,
		sessions:    make(map[string]ssh.Session),
	}
}

// SetMaxClients sets the maximum number of concurrent sessions, 0 for no limit
func (s *MonitorServer) SetMaxClients(max int) {
	s.maxClients = max
}

// SetRefresh sets how often sessions poll the status
func (s *MonitorServer) SetRefresh(d time.Duration) {
	s.refresh = d
}

// Start begins listening for SSH connections
func (s *MonitorServer) Start(ctx context.Context) error {
	if s.sshServer != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.bindAddress, strconv.Itoa(s.port))
	server, err := wish.NewServer(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			bubbletea.Middleware(s.teaHandler),
			s.sessionHandler(),
			activeterm.Middleware(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.sshServer = server
	s.listener = l

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger.Infof("Status monitor listening on %s", l.Addr())
		if err := server.Serve(l); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Errorf("Status monitor error: %v", err)
		}
	}()

	context.AfterFunc(ctx, s.Stop)
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *MonitorServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down the SSH server
func (s *MonitorServer) Stop() {
	s.stopOnce.Do(func() {
		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.sshServer.Shutdown(ctx)
		}

		s.mu.Lock()
		for _, sess := range s.sessions {
			_ = sess.Close()
		}
		s.sessions = make(map[string]ssh.Session)
		s.mu.Unlock()

		s.wg.Wait()
	})
}

// SessionCount returns the number of open sessions
func (s *MonitorServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// publicKeyAuth accepts only allowed fingerprints
func (s *MonitorServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	addr := ctx.RemoteAddr().String()

	if s.Allow != nil && s.Allow(fingerprint) {
		logger.Infof("Monitor key accepted addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)
		return true
	}

	logger.Warnf("Monitor key denied addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)
	return false
}

func (s *MonitorServer) teaHandler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	return ui.NewStatusModel(s.provider, s.refresh), []tea.ProgramOption{tea.WithAltScreen()}
}

// loggingMiddleware logs session start and end
func (s *MonitorServer) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			start := time.Now()
			logger.Debugf("Monitor session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())

			h(sess)

			logger.Debugf("Monitor session ended: addr=%s after %s", sess.RemoteAddr(), time.Since(start).Round(time.Millisecond))
		}
	}
}

// sessionHandler enforces the client limit and tracks open sessions
func (s *MonitorServer) sessionHandler() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			id := sess.Context().SessionID()

			s.mu.Lock()
			if s.maxClients > 0 && len(s.sessions) >= s.maxClients {
				s.mu.Unlock()
				logger.Infof("Rejecting monitor client - max clients reached addr=%s", sess.RemoteAddr())
				wish.Fatalln(sess, "Too many monitor sessions")
				return
			}
			s.sessions[id] = sess
			s.mu.Unlock()

			defer func() {
				s.mu.Lock()
				delete(s.sessions, id)
				s.mu.Unlock()
			}()

			h(sess)
		}
	}
}
