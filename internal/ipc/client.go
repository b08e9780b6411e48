package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bnema/segbridge/internal/logger"
	pb "github.com/bnema/segbridge/internal/proto"
)

// ErrNotRunning is returned when no bridge listens on the socket
var ErrNotRunning = errors.New("segbridge is not running")

// Client handles IPC communication with a running bridge
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at path, or for the per-user
// default when path is empty
func NewClient(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = GetSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}
	return &Client{
		socketPath: path,
		timeout:    5 * time.Second,
	}, nil
}

// SetTimeout changes the per-request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendStatus sends a status query to the running bridge
func (c *Client) SendStatus() (*pb.StatusResponse, error) {
	return c.request(NewStatusMessage())
}

// SendRunState requests a guest run-state change
func (c *Client) SendRunState(action pb.RunStateAction) (*pb.StatusResponse, error) {
	return c.request(NewRunStateMessage(action))
}

// SendLED replaces the guest keyboard LED mask
func (c *Client) SendLED(mask int32) (*pb.StatusResponse, error) {
	return c.request(NewLEDMessage(mask))
}

// IsRunning checks if a bridge answers on the socket
func (c *Client) IsRunning() bool {
	_, err := c.SendStatus()
	return err == nil
}

func (c *Client) request(msg *pb.IPCMessage) (*pb.StatusResponse, error) {
	response, err := c.sendMessage(msg)
	if err != nil {
		return nil, err
	}

	switch response.Type {
	case pb.MessageTypeStatusResponse:
		return GetStatusResponse(response)
	case pb.MessageTypeError:
		errResp, err := GetErrorResponse(response)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("server error: %s", errResp.Error)
	default:
		return nil, fmt.Errorf("unexpected response type: %s", response.Type)
	}
}

// sendMessage sends a message and returns the response
func (c *Client) sendMessage(msg *pb.IPCMessage) (*pb.IPCMessage, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to connect to segbridge: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	response, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return response, nil
}

// isConnectionRefused checks if the error is a dial error
func isConnectionRefused(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Op == "dial"
	}
	return false
}
