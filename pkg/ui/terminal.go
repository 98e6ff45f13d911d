package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gookit/color"
)

// ASCIILogo is printed at the start of a run
const ASCIILogo = `
    ╔════════════════════════════════════════════════╗
    ║  w a t c h g r a p h                           ║
    ║  watchlist overlap for graph tools             ║
    ╚════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = color.Cyan.Sprint
	Yellow  = color.Yellow.Sprint
	Red     = color.Red.Sprint
	Green   = color.Green.Sprint
	Magenta = color.Magenta.Sprint
	Dim     = color.Gray.Sprint
)

// SetColor turns coloured output on or off for the whole process
func SetColor(enabled bool) {
	color.Enable = enabled
}

// Terminal writes user-facing lines. In quiet mode only errors are shown.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
}

// NewTerminal creates a terminal writing to out
func NewTerminal(out io.Writer, quiet bool) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{out: out, quiet: quiet}
}

var (
	defaultMu       sync.RWMutex
	defaultTerminal = NewTerminal(os.Stdout, false)
)

// SetDefault replaces the terminal used by the package-level Print functions
func SetDefault(t *Terminal) {
	defaultMu.Lock()
	defaultTerminal = t
	defaultMu.Unlock()
}

// Default returns the package-level terminal
func Default() *Terminal {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultTerminal
}

// Quiet reports whether non-error output is suppressed
func (t *Terminal) Quiet() bool {
	return t.quiet
}

func (t *Terminal) println(always bool, s string) {
	if t.quiet && !always {
		return
	}
	t.mu.Lock()
	fmt.Fprintln(t.out, s)
	t.mu.Unlock()
}

// PrintLogo prints the ASCII logo
func (t *Terminal) PrintLogo() {
	if t.quiet {
		return
	}
	t.mu.Lock()
	fmt.Fprint(t.out, Cyan(ASCIILogo))
	t.mu.Unlock()
}

// PrintError prints an error message in red, even in quiet mode
func (t *Terminal) PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	t.println(true, Red(msg))
}

// PrintSuccess prints a success message in green
func (t *Terminal) PrintSuccess(msg string) {
	t.println(false, Green(msg))
}

// PrintInfo prints a label and value
func (t *Terminal) PrintInfo(label string, value string) {
	t.println(false, fmt.Sprintf("%s: %s", Cyan(label), Yellow(value)))
}

// PrintWarning prints a warning message in yellow
func (t *Terminal) PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	t.println(false, Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func (t *Terminal) PrintHighlight(msg string) {
	t.println(false, Magenta(msg))
}

// PrintLogo prints the ASCII logo on the default terminal
func PrintLogo() { Default().PrintLogo() }

// PrintError prints an error message on the default terminal
func PrintError(msg string, args ...interface{}) { Default().PrintError(msg, args...) }

// PrintSuccess prints a success message on the default terminal
func PrintSuccess(msg string) { Default().PrintSuccess(msg) }

// PrintInfo prints a label and value on the default terminal
func PrintInfo(label string, value string) { Default().PrintInfo(label, value) }

// PrintWarning prints a warning on the default terminal
func PrintWarning(msg string, args ...interface{}) { Default().PrintWarning(msg, args...) }

// PrintHighlight prints a highlighted message on the default terminal
func PrintHighlight(msg string) { Default().PrintHighlight(msg) }
