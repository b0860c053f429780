package render

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used by the long renderer and the watch view.
type Theme struct {
	Accent    lipgloss.Color
	Border    lipgloss.Color
	MutedFg   lipgloss.Color
	TextFg    lipgloss.Color
	SuccessFg lipgloss.Color
	WarnFg    lipgloss.Color
	ErrorFg   lipgloss.Color
	Cyan      lipgloss.Color
	Yellow    lipgloss.Color
}

// Theme names.
const (
	DraculaName      = "dracula"
	DraculaLightName = "dracula-light"
	NordName         = "nord"
)

// Dracula returns the default dark theme.
func Dracula() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#BD93F9"),
		Border:    lipgloss.Color("#6272A4"),
		MutedFg:   lipgloss.Color("#6272A4"),
		TextFg:    lipgloss.Color("#F8F8F2"),
		SuccessFg: lipgloss.Color("#50FA7B"),
		WarnFg:    lipgloss.Color("#FFB86C"),
		ErrorFg:   lipgloss.Color("#FF5555"),
		Cyan:      lipgloss.Color("#8BE9FD"),
		Yellow:    lipgloss.Color("#F1FA8C"),
	}
}

// DraculaLight returns the dark palette adapted for light backgrounds.
func DraculaLight() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#7C3AED"),
		Border:    lipgloss.Color("#D0D7DE"),
		MutedFg:   lipgloss.Color("#6E7781"),
		TextFg:    lipgloss.Color("#24292F"),
		SuccessFg: lipgloss.Color("#059669"),
		WarnFg:    lipgloss.Color("#D97706"),
		ErrorFg:   lipgloss.Color("#DC2626"),
		Cyan:      lipgloss.Color("#0891B2"),
		Yellow:    lipgloss.Color("#CA8A04"),
	}
}

// Nord returns the Nord theme.
func Nord() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#88C0D0"),
		Border:    lipgloss.Color("#4C566A"),
		MutedFg:   lipgloss.Color("#616E88"),
		TextFg:    lipgloss.Color("#D8DEE9"),
		SuccessFg: lipgloss.Color("#A3BE8C"),
		WarnFg:    lipgloss.Color("#EBCB8B"),
		ErrorFg:   lipgloss.Color("#BF616A"),
		Cyan:      lipgloss.Color("#8FBCBB"),
		Yellow:    lipgloss.Color("#EBCB8B"),
	}
}

// GetTheme returns a theme by name, or Dracula if not found.
func GetTheme(name string) *Theme {
	switch name {
	case DraculaLightName:
		return DraculaLight()
	case NordName:
		return Nord()
	default:
		return Dracula()
	}
}

// AvailableThemes returns the theme names.
func AvailableThemes() []string {
	return []string{DraculaName, DraculaLightName, NordName}
}
