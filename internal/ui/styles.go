// Package ui provides terminal styling for plotsync CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
var (
	ColorAdd = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorChange = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	AddStyle    = lipgloss.NewStyle().Foreground(ColorAdd)
	ChangeStyle = lipgloss.NewStyle().Foreground(ColorChange)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// CategoryStyle is used for section headers.
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	// OldValueStyle marks the value a change replaces.
	OldValueStyle = lipgloss.NewStyle().Foreground(ColorFail).Strikethrough(true)
)

const (
	IconAdd    = "+"
	IconChange = "~"
	IconSkip   = "-"
	IconLock   = "🔒"
	IconWarn   = "⚠"
)

// Tree characters for hierarchical display
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeIndent = "   "
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderAdd(s string) string    { return AddStyle.Render(s) }
func RenderChange(s string) string { return ChangeStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in uppercase.
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}
