// Package cli provides colored terminal output for facetctl commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines, colored when the destination is a terminal.
type Printer struct {
	mu       sync.Mutex
	writer   io.Writer
	colorize bool
}

// NewPrinter creates a printer for w. Color is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{writer: w, colorize: isTerminal(w)}
}

// DisableColor disables colored output
func (p *Printer) DisableColor() *Printer {
	p.colorize = false
	return p
}

// Colorize returns text wrapped in color when enabled.
func (p *Printer) Colorize(text, color string) string {
	if !p.colorize {
		return text
	}
	return color + text + ColorReset
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	p.line("✓", ColorGreen, format, args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) {
	p.line("✗", ColorRed, format, args...)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line("⚠", ColorYellow, format, args...)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...interface{}) {
	p.line("ℹ", ColorBlue, format, args...)
}

// Plain prints an undecorated line.
func (p *Printer) Plain(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, format+"\n", args...)
}

// Heading prints a bold section title.
func (p *Printer) Heading(title string) {
	p.Plain("%s", p.Colorize(title, ColorBold))
}

// Table prints rows as left-aligned columns separated by two spaces.
func (p *Printer) Table(rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(cell))+2))
			}
		}
		fmt.Fprintln(p.writer, strings.TrimRight(b.String(), " "))
	}
}

func (p *Printer) line(symbol, color, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(symbol, color), fmt.Sprintf(format, args...))
}

// isTerminal checks if w is a character device
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
