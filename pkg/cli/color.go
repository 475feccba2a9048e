package cli

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	red   = "\033[31m"
	dim   = "\033[2m"
	reset = "\033[0m"
)

// painter colours output only for terminals.
type painter struct {
	enabled bool
}

func newPainter(w io.Writer) painter {
	return painter{enabled: colorEnabled(w, os.LookupEnv)}
}

// colorEnabled honours NO_COLOR (https://no-color.org/) and TERM=dumb.
func colorEnabled(w io.Writer, lookup func(string) (string, bool)) bool {
	if _, ok := lookup("NO_COLOR"); ok {
		return false
	}
	if term, _ := lookup("TERM"); term == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p painter) paint(code, text string) string {
	if !p.enabled || text == "" {
		return text
	}
	// keep the trailing newline outside the escape
	body := strings.TrimRight(text, "\n")
	return code + body + reset + text[len(body):]
}
