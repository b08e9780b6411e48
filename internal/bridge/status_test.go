package bridge

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bnema/segbridge/internal/shmif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatIdent(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		led     int
		label   string
		running bool
		want    string
	}{
		{"running", 0, 0, "debian", true, "VM[0][]:debian(Running)"},
		{"suspended", 1, 0, "debian", false, "VM[1][]:debian(Suspended)"},
		{"caps", 0, LEDCaps, "x", true, "VM[0][C]:x(Running)"},
		{"all leds", 3, LEDScroll | LEDNum | LEDCaps, "x", true, "VM[3][SNC]:x(Running)"},
		{"scroll and caps", 2, LEDScroll | LEDCaps, "", true, "VM[2][SC]:(Running)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatIdent(tt.index, tt.led, tt.label, tt.running))
		})
	}
}

func TestFormatIdentTruncation(t *testing.T) {
	labels := []string{
		strings.Repeat("a", 200),
		strings.Repeat("é", 60),
		strings.Repeat("日本", 30),
		"x" + strings.Repeat("🙂", 25),
	}

	for _, label := range labels {
		got := FormatIdent(3, LEDScroll|LEDNum|LEDCaps, label, true)
		assert.LessOrEqual(t, len(got), shmif.MessageCapacity-1)
		assert.Greater(t, len(got), shmif.MessageCapacity-1-utf8.UTFMax)
		assert.True(t, utf8.ValidString(got))
		assert.True(t, strings.HasPrefix(got, "VM[3][SNC]:"))
	}
}

func TestSetLEDBroadcastsOnChange(t *testing.T) {
	f := newFixture(Options{Label: "vm"}, true, true)
	sub := NewMockTransport(32, 32)
	f.connector.subs = []subResult{{t: sub}}
	_, err := f.bridge.Open(context.Background())
	require.NoError(t, err)

	f.bridge.SetLED(LEDNum)
	f.bridge.SetLED(LEDNum)
	f.bridge.SetLED(LEDNum | 0x80)

	assert.Equal(t, []string{"VM[0][]:vm(Running)", "VM[0][N]:vm(Running)"}, f.primary.messages(shmif.ExternalIdent))
	assert.Equal(t, []string{"VM[1][]:vm(Running)", "VM[1][N]:vm(Running)"}, sub.messages(shmif.ExternalIdent))
}

func TestRunStateChangeSkipsDeadSegments(t *testing.T) {
	f := newFixture(Options{Label: "vm"}, true, true)
	sub := NewMockTransport(32, 32)
	f.connector.subs = []subResult{{t: sub}}
	_, err := f.bridge.Open(context.Background())
	require.NoError(t, err)

	sub.connected = false
	f.run.running = false
	f.bridge.OnRunStateChange()

	assert.Equal(t, "VM[0][]:vm(Suspended)", last(f.primary.messages(shmif.ExternalIdent)))
	assert.Len(t, sub.messages(shmif.ExternalIdent), 1)
}

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
