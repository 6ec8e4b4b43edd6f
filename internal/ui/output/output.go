// Package output writes colored status lines to the terminal.
package output

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Printer writes whole lines to a terminal. Concurrent Println calls never interleave.
type Printer struct {
	mu  sync.Mutex
	out *termenv.Output
}

// NewPrinter creates a Printer for w, or stderr when w is nil.
// Colors are dropped when NO_COLOR is set.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stderr
	}
	return &Printer{
		out: termenv.NewOutput(w, termenv.WithProfile(profile()), termenv.WithTTY(true)),
	}
}

func profile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// Paint colors s with c in the printer's profile.
func (p *Printer) Paint(s string, c lipgloss.Color) string {
	return p.out.String(s).Foreground(p.out.Color(string(c))).String()
}

// Println writes s followed by a newline.
func (p *Printer) Println(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.out.WriteString(s + "\n")
	return err
}
