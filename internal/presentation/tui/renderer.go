package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output.
type Renderer struct {
	render func(string) (string, error)
}

// NewRenderer renders with glamour when out is a terminal. Any other
// output (pipes, files) gets the markdown unchanged.
func NewRenderer(out *os.File) *Renderer {
	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return &Renderer{render: plain}
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return &Renderer{render: plain}
	}
	return &Renderer{render: r.Render}
}

// NewStyledRenderer always renders with the named glamour style
// ("dark", "light", "notty", ...).
func NewStyledRenderer(style string) (*Renderer, error) {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style))
	if err != nil {
		return nil, err
	}
	return &Renderer{render: r.Render}, nil
}

// Render converts markdown for display.
func (r *Renderer) Render(markdown string) (string, error) {
	return r.render(markdown)
}

func plain(markdown string) (string, error) { return markdown, nil }
