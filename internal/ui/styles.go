// Package ui renders stockroom's terminal output.
//
// Colour is applied only when stdout is a terminal and the environment
// allows it (NO_COLOR, CLICOLOR_FORCE and TERM=dumb are honoured through
// termenv). Piped output stays plain so it can be parsed.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Palette. Adaptive so light and dark terminals both read well.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#A78BFA"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#86EFAC"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FDE68A"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#FCA5A5"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor reports whether output should be coloured.
func ShouldUseColor() bool {
	if termenv.EnvNoColor() {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return IsTerminal() && termenv.EnvColorProfile() != termenv.Ascii
}

// TerminalWidth returns the stdout width, or fallback when unknown.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// RenderAccent highlights s.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass marks success.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn marks a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail marks a failure.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted de-emphasizes s.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderBold emboldens s.
func RenderBold(s string) string { return boldStyle.Render(s) }
