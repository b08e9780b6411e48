// Package ui provides consistent styling and the status views of the
// segbridge CLI
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray

	ColorRunning   = ColorSuccess
	ColorSuspended = ColorWarning
	ColorHidden    = ColorSubtle
)

// Base styles - building blocks for other styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	ControlDescStyle = lipgloss.NewStyle().
				Foreground(ColorText)
)

// Status indicators
var (
	RunningIndicator = lipgloss.NewStyle().
				Foreground(ColorRunning).
				Render("●")

	SuspendedIndicator = lipgloss.NewStyle().
				Foreground(ColorSuspended).
				Render("○")
)

// Spinner presets
var (
	SpinnerDot  = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	SpinnerLine = []string{"|", "/", "-", "\\"}
)

// Icons used across commands
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconSetup   = "»"
	IconConfig  = "*"
)

// FormatControl renders a key binding hint
func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + ControlDescStyle.Render(desc)
}

// FormatStatus prefixes status with a run-state indicator
func FormatStatus(running bool, status string) string {
	indicator := SuspendedIndicator
	if running {
		indicator = RunningIndicator
	}
	return indicator + " " + status
}

// FormatResult renders one line of a command outcome
func FormatResult(success bool, step, message string) string {
	icon, style := ErrorStyle.Render(IconError), ErrorStyle
	if success {
		icon, style = SuccessStyle.Render(IconSuccess), SuccessStyle
	}

	result := "  " + icon + " " + step
	if message != "" {
		result += " - " + style.Render(message)
	}
	return result
}

// FormatHeader renders a section title with a separator
func FormatHeader(title string) string {
	header := BoldStyle.Foreground(ColorPrimary).Render(InfoStyle.Render(IconSetup) + " " + title)
	return header + "\n" + CreateSeparator(50, "─")
}

// FormatKeyValue renders an aligned label and value
func FormatKeyValue(key string, value any) string {
	return SubtleStyle.Render(fmt.Sprintf("%-12s", key)) + " " + TextStyle.Render(fmt.Sprint(value))
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
