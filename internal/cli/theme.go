package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/convo-go/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Title     lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	System    lipgloss.Color
	Success   lipgloss.Color
	Hint      lipgloss.Color
}

var defaultTheme = Theme{
	Title:     lipgloss.Color("#5FAFD7"), // light blue
	User:      lipgloss.Color("#FFAF00"), // amber
	Assistant: lipgloss.Color("#00D787"), // green
	System:    lipgloss.Color("#AF87FF"), // violet
	Success:   lipgloss.Color("#00D787"),
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

// printer renders styled text when writing to a terminal and plain text otherwise.
type printer struct {
	w     io.Writer
	color bool
	theme Theme
}

func newPrinter(w io.Writer) *printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: w, color: color, theme: defaultTheme}
}

func (p *printer) style(s string, c lipgloss.Color, bold bool) string {
	if !p.color {
		return s
	}
	return lipgloss.NewStyle().Foreground(c).Bold(bold).Render(s)
}

func (p *printer) title(s string) string   { return p.style(s, p.theme.Title, true) }
func (p *printer) success(s string) string { return p.style(s, p.theme.Success, true) }
func (p *printer) hint(s string) string    { return p.style(s, p.theme.Hint, false) }

// roleLabel renders a message author.
func (p *printer) roleLabel(role models.Role) string {
	switch role {
	case models.RoleUser:
		return p.style("You", p.theme.User, true)
	case models.RoleAssistant:
		return p.style("Assistant", p.theme.Assistant, true)
	default:
		return p.style("Context", p.theme.System, true)
	}
}
