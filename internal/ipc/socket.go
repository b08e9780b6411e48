// Package ipc serves the local control socket of a running bridge.
package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/bnema/segbridge/internal/logger"
	pb "github.com/bnema/segbridge/internal/proto"
)

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// MessageHandler defines the interface for handling IPC messages
type MessageHandler interface {
	HandleStatusQuery(query *pb.StatusQuery) (*pb.IPCMessage, error)
	HandleRunStateCommand(cmd *pb.RunStateCommand) (*pb.IPCMessage, error)
	HandleLEDCommand(cmd *pb.LEDCommand) (*pb.IPCMessage, error)
}

// NewSocketServer creates a socket server at path, or at the per-user
// default when path is empty
func NewSocketServer(handler MessageHandler, path string) (*SocketServer, error) {
	if path == "" {
		var err error
		path, err = GetSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	return &SocketServer{
		socketPath: path,
		handler:    handler,
	}, nil
}

// Path returns the socket path
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

// acceptConnections accepts and handles incoming connections
func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a single client connection
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Debug("New IPC connection established")

	for {
		msg, err := readMessage(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		if err := writeMessage(conn, s.handleMessage(msg)); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage processes a single message and returns a response
func (s *SocketServer) handleMessage(msg *pb.IPCMessage) *pb.IPCMessage {
	var (
		response *pb.IPCMessage
		err      error
	)

	switch msg.Type {
	case pb.MessageTypeStatus:
		query := msg.StatusQuery
		if query == nil {
			query = &pb.StatusQuery{}
		}
		response, err = s.handler.HandleStatusQuery(query)

	case pb.MessageTypeRunState:
		cmd, cerr := GetRunStateCommand(msg)
		if cerr != nil {
			return NewErrorMessage(fmt.Sprintf("Invalid run-state command: %v", cerr))
		}
		response, err = s.handler.HandleRunStateCommand(cmd)

	case pb.MessageTypeLED:
		cmd, cerr := GetLEDCommand(msg)
		if cerr != nil {
			return NewErrorMessage(fmt.Sprintf("Invalid LED command: %v", cerr))
		}
		response, err = s.handler.HandleLEDCommand(cmd)

	default:
		return NewErrorMessage(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}

	if err != nil {
		return NewErrorMessage(err.Error())
	}
	return response
}

// GetSocketPath returns the per-user socket path /tmp/segbridge-<user>.sock
func GetSocketPath() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join("/tmp", fmt.Sprintf("segbridge-%s.sock", currentUser.Username)), nil
}
