package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sambeau/sage/config"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

func fixedLogger(format string, level int, quiet bool) (*cliLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &cliLogger{
		output: &buf,
		format: format,
		level:  level,
		quiet:  quiet,
		now:    func() time.Time { return start.Add(1500 * time.Millisecond) },
	}, &buf
}

var logStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRenderLogText(t *testing.T) {
	l, buf := fixedLogger("text", logLevels["info"], false)
	l.Render(logStart, "page.yaml", "site.json", "stdout", 2048, nil)
	want := "[INFO] 2024-05-01T12:00:00Z render page.yaml -> stdout 2.0 kB 1.5s\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	l.Render(logStart, "page.yaml", "", "stdout", 0, errors.New("boom"))
	want = "[ERROR] 2024-05-01T12:00:00Z render page.yaml failed after 1.5s: boom\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestRenderLogJSON(t *testing.T) {
	l, buf := fixedLogger("json", logLevels["info"], false)
	l.Render(logStart, "page.yaml", "site.json", "out.html", 10, serrors.New("UNDEF-0001", map[string]any{"Name": "nope"}))

	var entry RenderLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry.Level != "error" || entry.Code != "UNDEF-0001" || entry.DurationMs != 1500 || entry.Data != "site.json" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestRenderLogQuiet(t *testing.T) {
	l, buf := fixedLogger("text", logLevels["info"], true)
	l.Render(logStart, "page.yaml", "", "stdout", 1, nil)
	if buf.Len() != 0 {
		t.Errorf("quiet should suppress successful renders, got %q", buf.String())
	}
	l.Render(logStart, "page.yaml", "", "stdout", 0, errors.New("boom"))
	if !strings.Contains(buf.String(), "[ERROR]") {
		t.Errorf("quiet should keep failures, got %q", buf.String())
	}
}

func TestLogLevels(t *testing.T) {
	l, buf := fixedLogger("text", logLevels["warn"], false)
	l.Debug("d")
	l.Info("i")
	l.Warn("w %d", 1)
	l.Error("e")
	if got := buf.String(); got != "[WARN] w 1\n[ERROR] e\n" {
		t.Errorf("got %q", got)
	}

	l, buf = fixedLogger("json", logLevels["debug"], false)
	l.Debug("hello")
	var msg map[string]string
	if err := json.Unmarshal(buf.Bytes(), &msg); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if msg["level"] != "debug" || msg["message"] != "hello" {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestOpenOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if w, _, _ := openOutput("", &stdout, &stderr); w != &stderr {
		t.Error("empty target should be stderr")
	}
	if w, _, _ := openOutput("stdout", &stdout, &stderr); w != &stdout {
		t.Error("stdout target should be stdout")
	}

	file := filepath.Join(t.TempDir(), "sage.log")
	l, closeFn, err := newCLILogger(config.LoggingConfig{Output: file, Level: "info"}, &stdout, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("first")
	l.Info("second")
	closeFn()
	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[INFO] first\n[INFO] second\n" {
		t.Errorf("log file = %q", got)
	}

	if _, _, err := openOutput(filepath.Join(t.TempDir(), "no", "such", "dir.log"), &stdout, &stderr); err == nil {
		t.Error("expected error for unwritable log file")
	}
}

func TestPluginLogger(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l, closeFn, err := pluginLogger(config.LoggingConfig{Plugin: "stdout"}, &stdout, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	l.LogLine("item:", 3)
	if stdout.String() != "[LOG] item: 3\n" || stderr.Len() != 0 {
		t.Errorf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}

	stdout.Reset()
	l, _, err = pluginLogger(config.LoggingConfig{Plugin: "none"}, &stdout, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	l.LogLine("dropped")
	if stdout.Len() != 0 || stderr.Len() != 0 {
		t.Errorf("none should discard, stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}
