package ui

import (
	"errors"
	"testing"
	"time"

	pb "github.com/bnema/segbridge/internal/proto"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() *pb.StatusResponse {
	return &pb.StatusResponse{
		Running:    true,
		State:      "running",
		Name:       "box",
		LedState:   ledCaps | ledNum,
		Compositor: "/run/compositor.sock",
		Displays: []*pb.DisplayInfo{
			{Index: 0, Width: 640, Height: 480, Mode: "repack", Frames: 12, RefreshIntervalMs: 30},
			{Index: 1, Width: 800, Height: 600, Mode: "direct", Hidden: true, PressedKeys: 2, RefreshIntervalMs: 500},
		},
	}
}

func TestFormatLED(t *testing.T) {
	tests := []struct {
		mask int32
		want string
	}{
		{0, "-"},
		{ledCaps, "caps"},
		{ledNum | ledScroll, "num scroll"},
		{ledCaps | ledNum | ledScroll, "caps num scroll"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatLED(tt.mask))
	}
}

func TestDisplayRows(t *testing.T) {
	rows := DisplayRows(sampleStatus())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0", "640x480", "repack", "yes", "30ms", "12", "0"}, []string(rows[0]))
	assert.Equal(t, []string{"1", "800x600", "direct", "no", "500ms", "0", "2"}, []string(rows[1]))

	assert.Nil(t, DisplayRows(nil))
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(sampleStatus())
	for _, want := range []string{"running", "box", "caps num", "640x480", "800x600", "/run/compositor.sock"} {
		assert.Contains(t, out, want)
	}

	empty := RenderStatus(&pb.StatusResponse{State: "paused"})
	assert.Contains(t, empty, "No displays bound")
	assert.Contains(t, empty, "○")
}

func TestStatusModelPolls(t *testing.T) {
	calls := 0
	status := sampleStatus()
	m := NewStatusModel(func() (*pb.StatusResponse, error) {
		calls++
		return status, nil
	}, 10*time.Millisecond)

	require.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "Waiting for status")

	msg := m.fetch()
	assert.Equal(t, 1, calls)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd, "a refresh is scheduled after each status")
	assert.Same(t, status, m.Status())
	assert.Len(t, m.table.Rows(), 2)

	view := m.View()
	assert.Contains(t, view, "SEGBRIDGE - box")
	assert.Contains(t, view, "640x480")

	_, cmd = m.Update(refreshMsg(time.Now()))
	require.NotNil(t, cmd)
	_, ok := cmd().(statusMsg)
	assert.True(t, ok)
	assert.Equal(t, 2, calls)
}

func TestStatusModelKeepsLastStatusOnError(t *testing.T) {
	m := NewStatusModel(func() (*pb.StatusResponse, error) { return nil, nil }, 0)
	assert.Equal(t, DefaultStatusRefresh, m.interval)

	m.Update(statusMsg{err: errors.New("connection refused")})
	assert.Nil(t, m.Status())
	assert.Contains(t, m.View(), "connection refused")

	m.Update(statusMsg{status: sampleStatus()})
	m.Update(statusMsg{err: errors.New("timeout")})
	require.NotNil(t, m.Status())
	assert.Equal(t, "box", m.Status().Name)
	assert.Contains(t, m.View(), "timeout")
}

func TestStatusModelQuit(t *testing.T) {
	tests := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	}
	for _, key := range tests {
		t.Run(key.String(), func(t *testing.T) {
			m := NewStatusModel(func() (*pb.StatusResponse, error) { return nil, nil }, 0)
			_, cmd := m.Update(key)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
		})
	}
}
