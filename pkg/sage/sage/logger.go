package sage

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sambeau/sage/pkg/sage/evaluator"
)

// Logger receives the output of the log formatter.
type Logger = evaluator.Logger

// DefaultLogger is the logger used when none is specified. It writes to
// stderr so log lines never interleave with rendered output on stdout.
var DefaultLogger Logger = evaluator.DefaultLogger

// lineWriter serializes log calls from concurrent renders onto one writer.
// The prefix starts every line, not every call.
type lineWriter struct {
	mu      sync.Mutex
	w       io.Writer
	prefix  string
	midLine bool
}

func (l *lineWriter) Log(values ...any)     { l.write(values, false) }
func (l *lineWriter) LogLine(values ...any) { l.write(values, true) }

func (l *lineWriter) write(values []any, end bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sb strings.Builder
	if !l.midLine {
		sb.WriteString(l.prefix)
	}
	sb.WriteString(joinValues(values))
	if end {
		sb.WriteByte('\n')
	}
	io.WriteString(l.w, sb.String())
	l.midLine = !end
}

// WriterLogger returns a logger that writes to w. It is safe for concurrent
// renders; io.Discard gives a logger that drops everything.
func WriterLogger(w io.Writer) Logger {
	return &lineWriter{w: w}
}

// PrefixLogger is like WriterLogger but starts each line with prefix, so
// template log output can be told apart from the host's own messages.
func PrefixLogger(w io.Writer, prefix string) Logger {
	return &lineWriter{w: w, prefix: prefix}
}

// Capture keeps log output in memory, one entry per completed line. Tests
// and hosts that report log output alongside a render result use it.
type Capture struct {
	mu      sync.Mutex
	lines   []string
	partial strings.Builder
}

// NewCapture creates an empty Capture.
func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Log(values ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partial.WriteString(joinValues(values))
}

func (c *Capture) LogLine(values ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partial.WriteString(joinValues(values))
	c.lines = append(c.lines, c.partial.String())
	c.partial.Reset()
}

// Lines returns the completed lines.
func (c *Capture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// String returns completed lines followed by any unfinished one.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sb strings.Builder
	for _, line := range c.lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(c.partial.String())
	return sb.String()
}

// Reset discards everything captured.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.partial.Reset()
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " ")
}
