package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the resolved path.
// This is useful when the caller needs to know the actual config file location.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := ResolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	// Get absolute path and directory for resolving relative paths
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(absPath), getenv)
	if err != nil {
		return nil, "", err
	}
	return cfg, absPath, nil
}

// Parse decodes configuration source. Relative file paths are resolved
// against baseDir.
func Parse(data []byte, baseDir string, getenv func(string) string) (*Config, error) {
	// Interpolate environment variables
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseDir = baseDir

	cfg.Template = resolvePath(baseDir, cfg.Template)
	cfg.Data.File = resolvePath(baseDir, cfg.Data.File)
	cfg.Output.Path = resolvePath(baseDir, cfg.Output.Path)
	for i := range cfg.Watch.Extra {
		cfg.Watch.Extra[i] = resolvePath(baseDir, cfg.Watch.Extra[i])
	}

	// Resolve relative sqlite database path
	if strings.HasPrefix(cfg.Data.Driver, "sqlite") {
		cfg.Data.DSN = resolvePath(baseDir, cfg.Data.DSN)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Validate checks the configuration for errors.
// Call this again after applying CLI overrides.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Render.MaxDepth < 1 {
		errs = append(errs, fmt.Sprintf("invalid render.max_depth: %d (must be at least 1)", cfg.Render.MaxDepth))
	}
	if cfg.Render.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Render.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("invalid render.timezone: %s", cfg.Render.Timezone))
		}
	}

	// File and query data sources are mutually exclusive
	if cfg.Data.File != "" && cfg.Data.IsQuery() {
		errs = append(errs, "data.file and data.query are mutually exclusive - use one data source")
	}
	if cfg.Data.IsQuery() {
		if cfg.Data.Driver == "" {
			errs = append(errs, "data: driver is required with query")
		}
		if cfg.Data.DSN == "" {
			errs = append(errs, "data: dsn is required with query")
		}
		if cfg.Data.Query == "" {
			errs = append(errs, "data: query is required with driver")
		}
	}

	if cfg.Watch.Debounce < 0 {
		errs = append(errs, fmt.Sprintf("invalid watch.debounce: %s", cfg.Watch.Debounce))
	}

	validCompression := map[string]bool{"": true, "none": true, "gzip": true, "zstd": true}
	if !validCompression[cfg.Output.Compression] {
		errs = append(errs, fmt.Sprintf("invalid output.compression: %s (must be none, gzip, or zstd)", cfg.Output.Compression))
	}
	validLevels := map[string]bool{"": true, "fastest": true, "default": true, "best": true}
	if !validLevels[cfg.Output.Level] {
		errs = append(errs, fmt.Sprintf("invalid output.level: %s (must be fastest, default, or best)", cfg.Output.Level))
	}
	if _, err := ParseSize(cfg.Output.MaxSize); err != nil {
		errs = append(errs, fmt.Sprintf("invalid output.max_size: %v", err))
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be json or text)", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Warnings returns non-fatal configuration issues that should be reported to the user.
func Warnings(cfg *Config) []string {
	var warnings []string

	if cfg.Template == "" {
		warnings = append(warnings, "no template configured - pass one on the command line")
	}
	if cfg.Data.File == "" && !cfg.Data.IsQuery() {
		warnings = append(warnings, "no data source configured - templates will render against an empty object")
	}
	if cfg.Output.Compression != "" && cfg.Output.Compression != "none" && cfg.Output.Path == "" {
		warnings = append(warnings, fmt.Sprintf("output.compression %s writes binary data to stdout", cfg.Output.Compression))
	}
	for _, id := range cfg.Plugins.Disabled {
		if strings.TrimSpace(id) == "" {
			warnings = append(warnings, "plugins.disabled contains an empty identifier")
			break
		}
	}

	return warnings
}

// Location returns the configured render time zone.
func (c *Config) Location() *time.Location {
	if c.Render.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Render.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveConfigPath finds the config file to use.
// Search order: explicit path > SAGE_CONFIG env > ./sage.yaml > ~/.config/sage/sage.yaml
func ResolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	// Try SAGE_CONFIG environment variable
	if envPath := getenv("SAGE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("SAGE_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	// Try ./sage.yaml
	if _, err := os.Stat("sage.yaml"); err == nil {
		return "sage.yaml", nil
	}

	// Try ~/.config/sage/sage.yaml
	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "sage", "sage.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", ErrNoConfig
}

// ErrNoConfig is returned when no config file is given and none is found in
// the default locations.
var ErrNoConfig = errors.New("no config file found (tried SAGE_CONFIG, sage.yaml, ~/.config/sage/sage.yaml)")

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// ParseSize parses a size string like "10MB", "1GB", "500KB" to bytes.
// Supports: B, KB, MB, GB (case insensitive).
// Returns 0 for empty string.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	s = strings.TrimSpace(strings.ToUpper(s))

	// Longest suffix first so "B" does not match "MB"
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			var num int64
			if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			return num * sf.mult, nil
		}
	}

	// Try parsing as plain number (bytes)
	var num int64
	if _, err := fmt.Sscanf(s, "%d", &num); err != nil {
		return 0, fmt.Errorf("invalid size format: %s (use B, KB, MB, or GB suffix)", s)
	}
	return num, nil
}

// ApplyProfile applies a named profile to the configuration.
// Only non-zero values in the profile override the base config.
// Returns an error if the profile name doesn't exist.
func ApplyProfile(cfg *Config, profileName string) error {
	if cfg.Profiles == nil {
		return fmt.Errorf("no profiles defined in config")
	}

	p, ok := cfg.Profiles[profileName]
	if !ok {
		var names []string
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		return fmt.Errorf("unknown profile %q (available: %s)", profileName, strings.Join(names, ", "))
	}

	if p.Template != "" {
		cfg.Template = resolvePath(cfg.BaseDir, p.Template)
	}
	if p.Data.File != "" {
		cfg.Data = DataConfig{File: resolvePath(cfg.BaseDir, p.Data.File), Key: cfg.Data.Key}
	} else if p.Data.IsQuery() {
		key := cfg.Data.Key
		cfg.Data = p.Data
		if cfg.Data.Key == "" {
			cfg.Data.Key = key
		}
		if strings.HasPrefix(cfg.Data.Driver, "sqlite") {
			cfg.Data.DSN = resolvePath(cfg.BaseDir, cfg.Data.DSN)
		}
	}
	if p.Locale != "" {
		cfg.Render.Locale = p.Locale
	}

	// Apply logging overrides (only non-zero values)
	if p.Logging.Level != "" {
		cfg.Logging.Level = p.Logging.Level
	}
	if p.Logging.Format != "" {
		cfg.Logging.Format = p.Logging.Format
	}
	if p.Logging.Output != "" {
		cfg.Logging.Output = p.Logging.Output
	}
	if p.Logging.Quiet {
		cfg.Logging.Quiet = true
	}

	return Validate(cfg)
}
