package ui

import (
	"strings"
	"testing"
)

func TestFormatControl(t *testing.T) {
	tests := []struct {
		name string
		key  string
		desc string
	}{
		{
			name: "basic control",
			key:  "q",
			desc: "Quit",
		},
		{
			name: "longer key",
			key:  "ctrl+c",
			desc: "Stop watching",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatControl(tt.key, tt.desc)
			if !strings.Contains(got, tt.key) {
				t.Errorf("FormatControl() missing key %q", tt.key)
			}
			if !strings.Contains(got, tt.desc) {
				t.Errorf("FormatControl() missing description %q", tt.desc)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name    string
		running bool
		status  string
	}{
		{
			name:    "running guest",
			running: true,
			status:  "running",
		},
		{
			name:    "paused guest",
			running: false,
			status:  "paused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatStatus(tt.running, tt.status)

			if !strings.Contains(got, tt.status) {
				t.Errorf("FormatStatus() missing status text %q", tt.status)
			}
			if tt.running && !strings.Contains(got, "●") {
				t.Errorf("FormatStatus() running=true should contain filled circle")
			}
			if !tt.running && !strings.Contains(got, "○") {
				t.Errorf("FormatStatus() running=false should contain empty circle")
			}
		})
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		message string
		icon    string
	}{
		{name: "success", success: true, message: "saved", icon: IconSuccess},
		{name: "failure", success: false, message: "denied", icon: IconError},
		{name: "no message", success: true, icon: IconSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatResult(tt.success, "Write config", tt.message)
			if !strings.Contains(got, tt.icon) {
				t.Errorf("FormatResult() missing icon %q", tt.icon)
			}
			if !strings.Contains(got, "Write config") {
				t.Errorf("FormatResult() missing step")
			}
			if tt.message == "" && strings.Contains(got, " - ") {
				t.Errorf("FormatResult() should not add a separator without a message")
			}
		})
	}
}

func TestFormatKeyValue(t *testing.T) {
	got := FormatKeyValue("Displays", 2)
	if !strings.Contains(got, "Displays") || !strings.Contains(got, "2") {
		t.Errorf("FormatKeyValue() = %q", got)
	}
}

func TestCreateSeparator(t *testing.T) {
	tests := []struct {
		name  string
		width int
		char  string
		want  int
	}{
		{name: "explicit", width: 10, char: "=", want: 10},
		{name: "default width", width: 0, char: "-", want: 50},
		{name: "default char", width: 5, char: "", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			char := tt.char
			if char == "" {
				char = "─"
			}
			got := CreateSeparator(tt.width, tt.char)
			if n := strings.Count(got, char); n != tt.want {
				t.Errorf("CreateSeparator() has %d %q, want %d", n, char, tt.want)
			}
		})
	}
}
