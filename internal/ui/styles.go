package ui

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Notifications
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")
	Muted   = lipgloss.Color("#6C7280")
	Text    = lipgloss.Color("#ECEFF4")
)

// Styles used by the console chat.
type Styles struct {
	Header       lipgloss.Style
	Transcript   lipgloss.Style
	User         lipgloss.Style
	Bot          lipgloss.Style
	Notification lipgloss.Style
	Error        lipgloss.Style
	Logs         lipgloss.Style
	Help         lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true).
			Padding(0, 1),
		Transcript: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan).
			Padding(0, 1),
		User: lipgloss.NewStyle().
			Foreground(Magenta).
			Bold(true),
		Bot: lipgloss.NewStyle().
			Foreground(Text),
		Notification: lipgloss.NewStyle().
			Foreground(Yellow),
		Error: lipgloss.NewStyle().
			Foreground(Red),
		Logs: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Foreground(Muted).
			Padding(0, 1),
		Help: lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 1),
	}
}
