package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Render.MaxDepth != 64 {
		t.Errorf("expected default max depth 64, got %d", cfg.Render.MaxDepth)
	}
	if cfg.Watch.Debounce != 100*time.Millisecond {
		t.Errorf("expected default debounce 100ms, got %s", cfg.Watch.Debounce)
	}
	if cfg.Data.Key != "rows" {
		t.Errorf("expected default data key 'rows', got %q", cfg.Data.Key)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "TEST_LOCALE":
			return "en-GB"
		case "TEST_DEPTH":
			return "12"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "locale: ${TEST_LOCALE}",
			expected: "locale: en-GB",
		},
		{
			name:     "with default (env set)",
			input:    "locale: ${TEST_LOCALE:-fr}",
			expected: "locale: en-GB",
		},
		{
			name:     "with default (env not set)",
			input:    "locale: ${UNSET_VAR:-fr}",
			expected: "locale: fr",
		},
		{
			name:     "multiple substitutions",
			input:    "pair: ${TEST_LOCALE}/${TEST_DEPTH}",
			expected: "pair: en-GB/12",
		},
		{
			name:     "unset without default",
			input:    "dsn: ${UNSET_VAR}",
			expected: "dsn: ",
		},
		{
			name:     "no substitution needed",
			input:    "static: value",
			expected: "static: value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := string(interpolateEnv([]byte(tt.input), getenv))
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sage.yaml")

	configContent := `
template: templates/page.yaml
data:
  file: data/site.json
render:
  max_depth: 8
  base_url_key: site.url
  locale: en-GB
  timezone: Europe/London
plugins:
  disabled: [markdown, debug?]
watch:
  debounce: 250ms
  extra: partials.yaml
output:
  path: out/index.html.gz
  compression: gzip
  level: best
logging:
  level: debug
  format: json
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, resolved, err := LoadWithPath(configPath, os.Getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != configPath {
		t.Errorf("expected resolved path %q, got %q", configPath, resolved)
	}
	if cfg.BaseDir != dir {
		t.Errorf("expected base dir %q, got %q", dir, cfg.BaseDir)
	}

	// Relative paths are resolved against the config directory
	if want := filepath.Join(dir, "templates", "page.yaml"); cfg.Template != want {
		t.Errorf("expected template %q, got %q", want, cfg.Template)
	}
	if want := filepath.Join(dir, "data", "site.json"); cfg.Data.File != want {
		t.Errorf("expected data file %q, got %q", want, cfg.Data.File)
	}
	if want := filepath.Join(dir, "out", "index.html.gz"); cfg.Output.Path != want {
		t.Errorf("expected output %q, got %q", want, cfg.Output.Path)
	}
	if len(cfg.Watch.Extra) != 1 || cfg.Watch.Extra[0] != filepath.Join(dir, "partials.yaml") {
		t.Errorf("unexpected watch.extra %v", cfg.Watch.Extra)
	}

	if cfg.Render.MaxDepth != 8 || cfg.Render.BaseURLKey != "site.url" || cfg.Render.Locale != "en-GB" {
		t.Errorf("unexpected render config %+v", cfg.Render)
	}
	if cfg.Location().String() != "Europe/London" {
		t.Errorf("expected Europe/London, got %s", cfg.Location())
	}
	if !cfg.Plugins.Disabled.Contains("debug?") {
		t.Errorf("expected debug? to be disabled, got %v", cfg.Plugins.Disabled)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("expected debounce 250ms, got %s", cfg.Watch.Debounce)
	}
	if cfg.Output.Compression != "gzip" || cfg.Output.Level != "best" {
		t.Errorf("unexpected output config %+v", cfg.Output)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadWithEnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sage.yaml")

	configContent := `
data:
  driver: ${DB_DRIVER:-sqlite}
  dsn: ${DB_PATH}
  query: SELECT * FROM posts
render:
  locale: ${LOCALE:-en-US}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	getenv := func(key string) string {
		if key == "DB_PATH" {
			return "site.db"
		}
		return ""
	}

	cfg, err := Load(configPath, getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Data.Driver != "sqlite" {
		t.Errorf("expected driver 'sqlite', got %q", cfg.Data.Driver)
	}
	// sqlite DSNs are file paths and resolve like every other path
	if want := filepath.Join(dir, "site.db"); cfg.Data.DSN != want {
		t.Errorf("expected dsn %q, got %q", want, cfg.Data.DSN)
	}
	if cfg.Render.Locale != "en-US" {
		t.Errorf("expected locale 'en-US', got %q", cfg.Render.Locale)
	}
}

func TestParseKeepsNetworkDSN(t *testing.T) {
	src := "data:\n  driver: postgres\n  dsn: postgres://localhost/site\n  query: SELECT 1\n"
	cfg, err := Parse([]byte(src), "/srv/site", os.Getenv)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Data.DSN != "postgres://localhost/site" {
		t.Errorf("network dsn should be untouched, got %q", cfg.Data.DSN)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", "render: {max_depth: 3}", ""},
		{"bad depth", "render: {max_depth: 0}", "invalid render.max_depth: 0"},
		{"bad zone", "render: {timezone: Mars/Olympus}", "invalid render.timezone"},
		{"file and query", "data: {file: a.json, driver: sqlite, dsn: a.db, query: SELECT 1}", "mutually exclusive"},
		{"query without dsn", "data: {driver: sqlite, query: SELECT 1}", "dsn is required"},
		{"driver without query", "data: {driver: sqlite, dsn: a.db}", "query is required"},
		{"negative debounce", "watch: {debounce: -1s}", "invalid watch.debounce"},
		{"bad compression", "output: {compression: brotli}", "invalid output.compression"},
		{"bad level", "output: {level: max}", "invalid output.level"},
		{"bad size", "output: {max_size: lots}", "invalid output.max_size"},
		{"bad log level", "logging: {level: verbose}", "invalid log level"},
		{"bad log format", "logging: {format: xml}", "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "", os.Getenv)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	_, err := Parse([]byte("logging: {level: x, format: y}"), "", os.Getenv)
	if err == nil {
		t.Fatal("expected error")
	}
	if n := strings.Count(err.Error(), "\n  - "); n != 2 {
		t.Errorf("expected 2 listed errors, got %d in %q", n, err.Error())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("render: [1"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(bad, os.Getenv); err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("expected a parse error, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml"), os.Getenv); err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestResolveConfigPath(t *testing.T) {
	noenv := func(string) string { return "" }

	// Test explicit path not found
	if _, err := ResolveConfigPath("/nonexistent/path/sage.yaml", noenv); err == nil {
		t.Error("expected error for nonexistent path")
	}

	// Test explicit path found
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	resolved, err := ResolveConfigPath(configPath, noenv)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resolved != configPath {
		t.Errorf("expected %q, got %q", configPath, resolved)
	}

	// Test SAGE_CONFIG
	env := func(key string) string {
		if key == "SAGE_CONFIG" {
			return configPath
		}
		return ""
	}
	if resolved, err := ResolveConfigPath("", env); err != nil || resolved != configPath {
		t.Errorf("expected SAGE_CONFIG path, got %q, %v", resolved, err)
	}

	missing := func(key string) string { return filepath.Join(dir, "gone.yaml") }
	if _, err := ResolveConfigPath("", missing); err == nil || !strings.Contains(err.Error(), "SAGE_CONFIG") {
		t.Errorf("expected SAGE_CONFIG error, got %v", err)
	}
}

func TestResolveConfigPathNone(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := ResolveConfigPath("", func(string) string { return "" })
	if !errors.Is(err, ErrNoConfig) {
		t.Errorf("expected ErrNoConfig, got %v", err)
	}
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		wantWarn string
	}{
		{
			name:     "no template",
			cfg:      &Config{Data: DataConfig{File: "a.json"}},
			wantWarn: "no template configured",
		},
		{
			name:     "no data",
			cfg:      &Config{Template: "t.yaml"},
			wantWarn: "no data source configured",
		},
		{
			name:     "compressed stdout",
			cfg:      &Config{Template: "t.yaml", Data: DataConfig{File: "a.json"}, Output: OutputConfig{Compression: "zstd"}},
			wantWarn: "binary data to stdout",
		},
		{
			name:     "empty disabled id",
			cfg:      &Config{Template: "t.yaml", Data: DataConfig{File: "a.json"}, Plugins: PluginsConfig{Disabled: StringOrSlice{" "}}},
			wantWarn: "empty identifier",
		},
		{
			name:     "complete",
			cfg:      &Config{Template: "t.yaml", Data: DataConfig{Driver: "sqlite", DSN: "a.db", Query: "SELECT 1"}},
			wantWarn: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := Warnings(tt.cfg)
			if tt.wantWarn == "" {
				if len(warnings) > 0 {
					t.Errorf("expected no warnings, got %v", warnings)
				}
				return
			}
			found := false
			for _, w := range warnings {
				if strings.Contains(w, tt.wantWarn) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected warning containing %q, got %v", tt.wantWarn, warnings)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"", 0, false},
		{"1024", 1024, false},
		{"1B", 1, false},
		{"1KB", 1024, false},
		{"1kb", 1024, false},
		{"10KB", 10 * 1024, false},
		{"1MB", 1024 * 1024, false},
		{"10MB", 10 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"  5MB  ", 5 * 1024 * 1024, false},
		{"invalid", 0, true},
		{"MB", 0, true},  // No number
		{"abc", 0, true}, // Not a number
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestApplyProfile(t *testing.T) {
	dir := t.TempDir()
	src := `
template: page.yaml
data:
  file: site.json
profiles:
  preview:
    template: preview.yaml
    locale: de
    logging:
      level: debug
      quiet: true
  db:
    data:
      driver: sqlite
      dsn: preview.db
      query: SELECT * FROM posts
`
	t.Run("overrides", func(t *testing.T) {
		cfg, err := Parse([]byte(src), dir, os.Getenv)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if err := ApplyProfile(cfg, "preview"); err != nil {
			t.Fatalf("ApplyProfile failed: %v", err)
		}
		if cfg.Template != filepath.Join(dir, "preview.yaml") {
			t.Errorf("unexpected template %q", cfg.Template)
		}
		if cfg.Render.Locale != "de" || cfg.Logging.Level != "debug" || !cfg.Logging.Quiet {
			t.Errorf("profile not applied: %+v %+v", cfg.Render, cfg.Logging)
		}
		if cfg.Data.File != filepath.Join(dir, "site.json") {
			t.Errorf("data should be untouched, got %+v", cfg.Data)
		}
	})

	t.Run("query replaces file", func(t *testing.T) {
		cfg, err := Parse([]byte(src), dir, os.Getenv)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if err := ApplyProfile(cfg, "db"); err != nil {
			t.Fatalf("ApplyProfile failed: %v", err)
		}
		if cfg.Data.File != "" || cfg.Data.DSN != filepath.Join(dir, "preview.db") || cfg.Data.Key != "rows" {
			t.Errorf("unexpected data %+v", cfg.Data)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg, _ := Parse([]byte(src), dir, os.Getenv)
		err := ApplyProfile(cfg, "prod")
		if err == nil || !strings.Contains(err.Error(), "unknown profile") {
			t.Errorf("expected unknown profile error, got %v", err)
		}
		if err := ApplyProfile(Defaults(), "x"); err == nil {
			t.Error("expected error without profiles")
		}
	})
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
