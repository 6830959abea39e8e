// Package style provides consistent terminal styling using Lipgloss for the
// `mergebot status` CLI command. Colors are the Ayu theme palette the
// teacher's internal/ui carries; inlined here since mergebot has no TUI
// package of its own to host them in.
package style

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}

	iconPass = "✓"
	iconWarn = "⚠"
	iconFail = "✖"
)

var (
	// Success style for positive outcomes (green)
	Success = lipgloss.NewStyle().Foreground(colorPass).Bold(true)

	// Warning style for cautionary messages (yellow)
	Warning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)

	// Error style for failures (red)
	Error = lipgloss.NewStyle().Foreground(colorFail).Bold(true)

	// Info style for informational messages (blue)
	Info = lipgloss.NewStyle().Foreground(colorAccent)

	// Dim style for secondary information (gray)
	Dim = lipgloss.NewStyle().Foreground(colorMuted)

	// Bold style for emphasis
	Bold = lipgloss.NewStyle().Bold(true)

	// SuccessPrefix is the checkmark prefix for success messages
	SuccessPrefix = Success.Render(iconPass)

	// WarningPrefix is the warning prefix
	WarningPrefix = Warning.Render(iconWarn)

	// ErrorPrefix is the error prefix
	ErrorPrefix = Error.Render(iconFail)

	// ArrowPrefix for action indicators
	ArrowPrefix = Info.Render("→")
)

// PrintWarning prints a warning message with consistent formatting.
// The format and args work like fmt.Printf.
func PrintWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s %s\n", Warning.Render(iconWarn+" Warning:"), msg)
}
