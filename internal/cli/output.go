// Package cli renders command output for the payflow terminal client.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	apperrors "github.com/R3E-Network/payflow/internal/errors"
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

// Printer writes status lines and tables. It also serves as the client's
// notifier, so store success and failure messages land on the terminal.
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	colorize bool
}

// NewPrinter writes to stdout and stderr, colouring only real terminals.
func NewPrinter() *Printer {
	return &Printer{out: os.Stdout, errOut: os.Stderr, colorize: isTerminal(os.Stdout)}
}

// NewPlainPrinter writes uncoloured output to out and errOut.
func NewPlainPrinter(out, errOut io.Writer) *Printer {
	return &Printer{out: out, errOut: errOut}
}

// Out is the data stream, for CSV or binary output.
func (p *Printer) Out() io.Writer { return p.out }

// ErrOut receives diagnostics and flag usage.
func (p *Printer) ErrOut() io.Writer { return p.errOut }

func (p *Printer) line(w io.Writer, color, mark, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.colorize {
		fmt.Fprintf(w, "%s%s%s %s\n", color, mark, ColorReset, message)
		return
	}
	fmt.Fprintf(w, "%s %s\n", mark, message)
}

// Success prints a success message.
func (p *Printer) Success(message string) { p.line(p.out, ColorGreen, "✓", message) }

// Error prints the user-facing message of a classified failure.
func (p *Printer) Error(details *apperrors.Details) {
	if details == nil {
		return
	}
	p.Fail(details.Message)
}

// Fail prints an error message.
func (p *Printer) Fail(message string) { p.line(p.errOut, ColorRed, "✗", message) }

// Warning prints a warning message.
func (p *Printer) Warning(message string) { p.line(p.errOut, ColorYellow, "⚠", message) }

// Info prints an info message.
func (p *Printer) Info(message string) { p.line(p.out, ColorBlue, "ℹ", message) }

// Field prints one "label: value" line.
func (p *Printer) Field(label string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.colorize {
		label = ColorBold + label + ColorReset
	}
	fmt.Fprintf(p.out, "%s: %v\n", label, value)
}

// Table prints rows aligned under header.
func (p *Printer) Table(header []string, rows [][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// Spinner shows progress on stderr while a slow call runs.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	writer  io.Writer
	enabled bool

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// Spinner creates a spinner. It only animates on a terminal.
func (p *Printer) Spinner(prefix string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
		writer:  p.errOut,
		enabled: p.colorize,
		done:    make(chan struct{}),
	}
}

// Start animates until Stop.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.running {
		return
	}
	s.running = true

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.writer, "\r%s%s%s %s", ColorCyan, s.frames[s.current], ColorReset, s.prefix)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop clears the spinner line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

func isTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
