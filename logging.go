package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sambeau/sage/config"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/sage"
)

var logLevels = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// cliLogger writes leveled messages and one entry per render.
type cliLogger struct {
	mu     sync.Mutex
	output io.Writer
	format string // "json" or "text"
	level  int
	quiet  bool
	now    func() time.Time
}

// RenderLogEntry represents a single render log entry
type RenderLogEntry struct {
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	Template   string `json:"template"`
	Data       string `json:"data,omitempty"`
	Output     string `json:"output"`
	Bytes      int    `json:"bytes"`
	Duration   string `json:"duration"`
	DurationMs int64  `json:"duration_ms"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// openOutput resolves "stderr", "stdout" or a file path to a writer. The
// returned close function is a no-op for the standard streams.
func openOutput(target string, stdout, stderr io.Writer) (io.Writer, func() error, error) {
	switch target {
	case "", "stderr":
		return stderr, func() error { return nil }, nil
	case "stdout":
		return stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, f.Close, nil
}

// newCLILogger creates the logger described by cfg.
func newCLILogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (*cliLogger, func() error, error) {
	out, closeFn, err := openOutput(cfg.Output, stdout, stderr)
	if err != nil {
		return nil, nil, err
	}
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	level, ok := logLevels[cfg.Level]
	if !ok {
		level = logLevels["info"]
	}
	return &cliLogger{output: out, format: format, level: level, quiet: cfg.Quiet, now: time.Now}, closeFn, nil
}

// pluginLogger returns the logger the log formatter writes to. Its lines
// are tagged "[LOG]"; the target "none" drops them.
func pluginLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (sage.Logger, func() error, error) {
	if cfg.Plugin == "none" {
		return sage.WriterLogger(io.Discard), func() error { return nil }, nil
	}
	out, closeFn, err := openOutput(cfg.Plugin, stdout, stderr)
	if err != nil {
		return nil, nil, err
	}
	return sage.PrefixLogger(out, "[LOG] "), closeFn, nil
}

func (l *cliLogger) Debug(format string, args ...any) { l.message("debug", format, args...) }
func (l *cliLogger) Info(format string, args ...any)  { l.message("info", format, args...) }
func (l *cliLogger) Warn(format string, args ...any)  { l.message("warn", format, args...) }
func (l *cliLogger) Error(format string, args ...any) { l.message("error", format, args...) }

func (l *cliLogger) enabled(level string) bool {
	return logLevels[level] >= l.level
}

func (l *cliLogger) message(level, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		data, err := json.Marshal(map[string]string{
			"timestamp": l.now().Format(time.RFC3339),
			"level":     level,
			"message":   msg,
		})
		if err != nil {
			return
		}
		fmt.Fprintf(l.output, "%s\n", data)
		return
	}
	fmt.Fprintf(l.output, "[%s] %s\n", levelTag(level), msg)
}

func levelTag(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// Render logs the outcome of one render. Successful renders are suppressed
// by quiet; failures never are.
func (l *cliLogger) Render(start time.Time, template, data, output string, size int, renderErr error) {
	level := "info"
	if renderErr != nil {
		level = "error"
	} else if l.quiet {
		return
	}
	if !l.enabled(level) {
		return
	}

	duration := l.now().Sub(start)
	entry := RenderLogEntry{
		Timestamp:  start.Format(time.RFC3339),
		Level:      level,
		Template:   template,
		Data:       data,
		Output:     output,
		Bytes:      size,
		Duration:   duration.String(),
		DurationMs: duration.Milliseconds(),
	}
	if renderErr != nil {
		entry.Error = renderErr.Error()
		var se *serrors.SageError
		if errors.As(renderErr, &se) {
			entry.Code = se.Code
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		l.writeJSON(entry)
	} else {
		l.writeText(entry)
	}
}

func (l *cliLogger) writeJSON(entry RenderLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintf(l.output, "%s\n", data)
}

func (l *cliLogger) writeText(entry RenderLogEntry) {
	if entry.Error != "" {
		fmt.Fprintf(l.output, "[ERROR] %s render %s failed after %s: %s\n",
			entry.Timestamp,
			entry.Template,
			entry.Duration,
			entry.Error,
		)
		return
	}
	fmt.Fprintf(l.output, "[INFO] %s render %s -> %s %s %s\n",
		entry.Timestamp,
		entry.Template,
		entry.Output,
		humanize.Bytes(uint64(entry.Bytes)),
		entry.Duration,
	)
}
