package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes human-readable CLI output. Colors and markdown styling are
// enabled only when the writer is a terminal.
type Printer struct {
	w        io.Writer
	out      *termenv.Output
	color    bool
	markdown func(string) (string, error)
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithColor forces colored output on or off.
func WithColor(enabled bool) PrinterOption {
	return func(p *Printer) { p.color = enabled }
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{w: w, color: IsTerminal(w)}
	for _, opt := range opts {
		opt(p)
	}

	profile := termenv.Ascii
	if p.color {
		profile = termenv.EnvColorProfile()
	}
	p.out = termenv.NewOutput(w, termenv.WithProfile(profile))
	p.markdown = newMarkdownRenderer(p.color)
	return p
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newMarkdownRenderer returns glamour rendering for terminals and the raw
// markdown otherwise.
func newMarkdownRenderer(color bool) func(string) (string, error) {
	if !color {
		return func(md string) (string, error) { return md, nil }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(md string) (string, error) { return md, nil }
	}
	return r.Render
}

// Markdown renders md and writes it.
func (p *Printer) Markdown(md string) error {
	out, err := p.markdown(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(p.w, out)
	return err
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.w, s)
}
