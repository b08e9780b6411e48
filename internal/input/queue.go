// Package input forwards translated key, button and pointer events into the
// guest's virtual input devices.
package input

import (
	"errors"
	"fmt"

	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
)

var (
	// ErrQueueClosed is returned when operating on a closed queue
	ErrQueueClosed = errors.New("input queue is closed")
	// ErrInvalidEvent is returned for events a backend can't express
	ErrInvalidEvent = errors.New("invalid event")
)

// Button is a pointer button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
	ButtonWheelUp
	ButtonWheelDown
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	case ButtonWheelUp:
		return "wheel-up"
	case ButtonWheelDown:
		return "wheel-down"
	default:
		return fmt.Sprintf("button(%d)", int(b))
	}
}

// Axis is a pointer axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// Queue accepts input events for the guest. Events become visible to the
// guest on Sync.
type Queue interface {
	QueueKey(code KeyCode, pressed bool) error
	QueueButton(btn Button, pressed bool) error
	QueueRelativeAxis(axis Axis, delta int) error
	QueueAbsoluteAxis(axis Axis, value, min, max int) error
	Sync() error
	Close() error
}

// NewQueue creates the backend selected by cfg.Backend, falling back to
// the logging queue when uinput can't be opened.
func NewQueue(cfg config.InputConfig) (Queue, error) {
	switch cfg.Backend {
	case "log":
		return NewLogQueue(), nil
	case "", "uinput":
		q, err := NewUInputQueue(cfg)
		if err == nil {
			return q, nil
		}
		logger.Warn("Virtual input devices unavailable, input will only be logged", "error", err)
		return NewLogQueue(), nil
	default:
		return nil, fmt.Errorf("unknown input backend %q", cfg.Backend)
	}
}

// scaleAxis maps value from [min,max] onto [0,extent).
func scaleAxis(value, min, max, extent int) int {
	if extent <= 0 {
		return 0
	}
	if max <= min {
		return clampInt(value, 0, extent-1)
	}
	value = clampInt(value, min, max)
	return (value - min) * (extent - 1) / (max - min)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
