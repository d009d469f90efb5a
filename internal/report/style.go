// internal/report/style.go
package report

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Locked
	Green   = lipgloss.Color("#2AFFAA") // Open / high APR
	Red     = lipgloss.Color("#FF5555") // Errors

	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
	Base1  = lipgloss.Color("#B4BCC8") // Secondary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color

	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Warning:   Yellow,
		Error:     Red,

		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
	}
}

// Styles used by the report tables.
type Styles struct {
	Title    lipgloss.Style
	Border   lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Number   lipgloss.Style
	Muted    lipgloss.Style
	APRGood  lipgloss.Style
	Open     lipgloss.Style
	Locked   lipgloss.Style
	Unlocked lipgloss.Style
	Footer   lipgloss.Style
}

// NewStyles creates the styles for r with the given palette.
func NewStyles(r *lipgloss.Renderer, palette Palette) Styles {
	cell := r.NewStyle().Padding(0, 1).Foreground(palette.Text)
	return Styles{
		Title: r.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			MarginBottom(1),

		Border: r.NewStyle().Foreground(palette.TextMuted),

		Header: r.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			Padding(0, 1),

		Cell:     cell,
		Number:   cell.Align(lipgloss.Right),
		Muted:    cell.Foreground(palette.TextMuted),
		APRGood:  cell.Align(lipgloss.Right).Foreground(palette.Success).Bold(true),
		Open:     cell.Foreground(palette.Success),
		Locked:   cell.Foreground(palette.Warning),
		Unlocked: cell.Foreground(palette.TextSecondary),

		Footer: r.NewStyle().
			Foreground(palette.TextMuted).
			Italic(true).
			MarginTop(1),
	}
}
