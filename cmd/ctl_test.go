package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLEDMask(t *testing.T) {
	tests := []struct {
		in      string
		want    int32
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "4", want: 4},
		{in: "0x7", want: 7},
		{in: "none", want: 0},
		{in: "caps", want: 4},
		{in: "caps,num", want: 6},
		{in: " Scroll , caps ", want: 5},
		{in: "8", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "shift", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLEDMask(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCtlCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range ctlCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"pause", "resume", "reset", "shutdown", "led"} {
		assert.True(t, names[want], "missing ctl %s", want)
	}
}

func TestCtlWithoutBridge(t *testing.T) {
	path := resetCommandConfig(t)
	sock := filepath.Join(t.TempDir(), "none.sock")
	require.NoError(t, os.WriteFile(path, []byte("[control]\nsocket_path = \""+sock+"\"\n"), 0644))

	_, err := executeCommand(rootCmd, "--config", path, "ctl", "pause")
	assert.Error(t, err)
}
