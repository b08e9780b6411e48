package input

import (
	"fmt"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/segbridge/internal/config"
)

// UInputQueue injects events through a virtual keyboard and mouse created
// under /dev/uinput. Each call is written to the device immediately, so
// Sync has nothing left to flush.
type UInputQueue struct {
	mouse    uinput.Mouse
	keyboard uinput.Keyboard
	mu       sync.Mutex
	closed   bool

	screenW, screenH int
	// Last absolute position, uinput mice only take relative motion
	currentX int
	currentY int
}

// NewUInputQueue creates the virtual devices.
func NewUInputQueue(cfg config.InputConfig) (*UInputQueue, error) {
	path := cfg.UInputPath
	if path == "" {
		path = "/dev/uinput"
	}
	name := cfg.DeviceName
	if name == "" {
		name = "Segbridge Virtual Input"
	}

	mouse, err := uinput.CreateMouse(path, []byte(name+" Mouse"))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual mouse: %w", err)
	}

	keyboard, err := uinput.CreateKeyboard(path, []byte(name+" Keyboard"))
	if err != nil {
		mouse.Close()
		return nil, fmt.Errorf("failed to create virtual keyboard: %w", err)
	}

	return &UInputQueue{
		mouse:    mouse,
		keyboard: keyboard,
		screenW:  cfg.ScreenWidth,
		screenH:  cfg.ScreenHeight,
	}, nil
}

func (q *UInputQueue) QueueKey(code KeyCode, pressed bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	linux, ok := code.Linux()
	if !ok {
		return fmt.Errorf("%w: key %v", ErrInvalidEvent, code)
	}
	if pressed {
		return q.keyboard.KeyDown(int(linux))
	}
	return q.keyboard.KeyUp(int(linux))
}

func (q *UInputQueue) QueueButton(btn Button, pressed bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	switch btn {
	case ButtonLeft:
		if pressed {
			return q.mouse.LeftPress()
		}
		return q.mouse.LeftRelease()
	case ButtonRight:
		if pressed {
			return q.mouse.RightPress()
		}
		return q.mouse.RightRelease()
	case ButtonMiddle:
		if pressed {
			return q.mouse.MiddlePress()
		}
		return q.mouse.MiddleRelease()
	case ButtonWheelUp:
		// one notch per press, releases carry nothing
		if pressed {
			return q.mouse.Wheel(false, 1)
		}
		return nil
	case ButtonWheelDown:
		if pressed {
			return q.mouse.Wheel(false, -1)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown button %v", ErrInvalidEvent, btn)
	}
}

func (q *UInputQueue) QueueRelativeAxis(axis Axis, delta int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if delta == 0 {
		return nil
	}
	if axis == AxisX {
		q.currentX = clampInt(q.currentX+delta, 0, max(q.screenW-1, 0))
		return q.mouse.Move(int32(delta), 0)
	}
	q.currentY = clampInt(q.currentY+delta, 0, max(q.screenH-1, 0))
	return q.mouse.Move(0, int32(delta))
}

func (q *UInputQueue) QueueAbsoluteAxis(axis Axis, value, min, max int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if axis == AxisX {
		pos := scaleAxis(value, min, max, q.screenW)
		delta := pos - q.currentX
		q.currentX = pos
		if delta != 0 {
			return q.mouse.Move(int32(delta), 0)
		}
		return nil
	}
	pos := scaleAxis(value, min, max, q.screenH)
	delta := pos - q.currentY
	q.currentY = pos
	if delta != 0 {
		return q.mouse.Move(0, int32(delta))
	}
	return nil
}

// Sync is a no-op, uinput writes carry their own report.
func (q *UInputQueue) Sync() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

// Close destroys the virtual devices.
func (q *UInputQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	var err error
	if q.mouse != nil {
		err = q.mouse.Close()
	}
	if q.keyboard != nil {
		if e := q.keyboard.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
