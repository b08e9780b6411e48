package input

import (
	"testing"

	"github.com/bnema/segbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleAxis(t *testing.T) {
	tests := []struct {
		name                    string
		value, min, max, extent int
		want                    int
	}{
		{"origin", 0, 0, 639, 1920, 0},
		{"far edge", 639, 0, 639, 1920, 1919},
		{"midpoint", 320, 0, 640, 1001, 500},
		{"below range", -5, 0, 100, 100, 0},
		{"above range", 500, 0, 100, 100, 99},
		{"degenerate range", 42, 10, 10, 100, 42},
		{"no extent", 5, 0, 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scaleAxis(tt.value, tt.min, tt.max, tt.extent))
		})
	}
}

func TestNewQueue(t *testing.T) {
	q, err := NewQueue(config.InputConfig{Backend: "log"})
	require.NoError(t, err)
	assert.IsType(t, &LogQueue{}, q)

	_, err = NewQueue(config.InputConfig{Backend: "joystick"})
	assert.Error(t, err)

	// uinput falls back to logging when the device can't be opened
	q, err = NewQueue(config.InputConfig{Backend: "uinput", UInputPath: "/nonexistent/uinput"})
	require.NoError(t, err)
	assert.IsType(t, &LogQueue{}, q)
}

func TestLogQueue(t *testing.T) {
	q := NewLogQueue()

	require.NoError(t, q.QueueKey(KeyA, true))
	require.NoError(t, q.QueueButton(ButtonLeft, true))
	require.NoError(t, q.QueueRelativeAxis(AxisX, 4))
	require.NoError(t, q.QueueAbsoluteAxis(AxisY, 10, 0, 100))
	assert.Equal(t, 0, q.Synced(), "nothing visible before sync")

	require.NoError(t, q.Sync())
	assert.Equal(t, 4, q.Synced())

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.QueueKey(KeyA, false), ErrQueueClosed)
	assert.ErrorIs(t, q.Sync(), ErrQueueClosed)
}

func TestButtonAndAxisNames(t *testing.T) {
	assert.Equal(t, "wheel-down", ButtonWheelDown.String())
	assert.Equal(t, "x", AxisX.String())
	assert.Equal(t, "y", AxisY.String())
}
