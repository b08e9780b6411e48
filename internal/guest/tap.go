package guest

import (
	"github.com/bnema/segbridge/internal/bridge"
	"github.com/bnema/segbridge/internal/input"
)

// LEDTap wraps an input queue and tracks the keyboard LEDs a guest would
// toggle on lock-key presses.
type LEDTap struct {
	input.Queue
	led      int
	onChange func(led int)
}

// NewLEDTap forwards every event to q and calls onChange with the new LED
// mask whenever a lock key is pressed.
func NewLEDTap(q input.Queue, onChange func(led int)) *LEDTap {
	return &LEDTap{Queue: q, onChange: onChange}
}

func (t *LEDTap) QueueKey(code input.KeyCode, pressed bool) error {
	err := t.Queue.QueueKey(code, pressed)
	if !pressed {
		return err
	}

	var bit int
	switch code {
	case input.KeyCapsLock:
		bit = bridge.LEDCaps
	case input.KeyNumLock:
		bit = bridge.LEDNum
	case input.KeyScrollLock:
		bit = bridge.LEDScroll
	default:
		return err
	}
	t.Set(t.led ^ bit)
	return err
}

// LED returns the tracked LED mask.
func (t *LEDTap) LED() int { return t.led }

// Set replaces the LED mask and reports the change.
func (t *LEDTap) Set(led int) {
	if led == t.led {
		return
	}
	t.led = led
	if t.onChange != nil {
		t.onChange(led)
	}
}
