package config

import "time"

// Config represents the complete sage configuration
type Config struct {
	BaseDir  string                   `yaml:"-"` // Directory containing config file, for resolving relative paths
	Template string                   `yaml:"template"`
	Data     DataConfig               `yaml:"data"`
	Render   RenderConfig             `yaml:"render"`
	Plugins  PluginsConfig            `yaml:"plugins"`
	Watch    WatchConfig              `yaml:"watch"`
	Output   OutputConfig             `yaml:"output"`
	Logging  LoggingConfig            `yaml:"logging"`
	Profiles map[string]ProfileConfig `yaml:"profiles"` // Named overrides, selected with --profile
}

// ProfileConfig holds per-environment overrides.
// All fields are optional - only non-zero values override the base config
type ProfileConfig struct {
	Template string        `yaml:"template"`
	Data     DataConfig    `yaml:"data"`
	Locale   string        `yaml:"locale"`
	Logging  LoggingConfig `yaml:"logging"`
}

// RenderConfig holds engine settings shared by every render
type RenderConfig struct {
	MaxDepth   int    `yaml:"max_depth"`    // Private sub-render nesting limit (default: 64)
	BaseURLKey string `yaml:"base_url_key"` // Reference AbsUrl resolves for the site root
	Locale     string `yaml:"locale"`       // Default locale for decimal, currency and datetime
	Timezone   string `yaml:"timezone"`     // IANA zone for date formatters (default: UTC)
}

// PluginsConfig selects which plugins the standard library keeps
type PluginsConfig struct {
	Disabled StringOrSlice `yaml:"disabled"` // Formatter or predicate identifiers to leave out
}

// DataConfig describes where the render data comes from: a file or a SQL query.
type DataConfig struct {
	File   string        `yaml:"file"`   // .json, .yaml, .toml or .cbor file
	Driver string        `yaml:"driver"` // sqlite, postgres or mysql
	DSN    string        `yaml:"dsn"`
	Query  string        `yaml:"query"`
	Key    string        `yaml:"key"`  // Root key the query rows are placed under (default: "rows")
	Args   StringOrSlice `yaml:"args"` // Positional query arguments
}

// IsQuery reports whether the data comes from a SQL query.
func (d DataConfig) IsQuery() bool {
	return d.Driver != "" || d.Query != ""
}

// WatchConfig holds file watching settings
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"` // Quiet period before re-rendering (default: 100ms)
	Extra    StringOrSlice `yaml:"extra"`    // Additional files whose changes trigger a render
}

// OutputConfig holds rendered output settings
type OutputConfig struct {
	Path        string `yaml:"path"`        // Output file; empty writes to stdout
	Compression string `yaml:"compression"` // "none", "gzip" or "zstd"; inferred from the path extension when empty
	Level       string `yaml:"level"`       // Compression level: "fastest", "default", "best" (default: "default")
	MaxSize     string `yaml:"max_size"`    // Refuse to write output larger than this (e.g. "10MB"); empty is unlimited
}

// StringOrSlice supports YAML fields that can be either a string or a slice of strings
type StringOrSlice []string

// UnmarshalYAML implements yaml.Unmarshaler to handle both string and []string
func (s *StringOrSlice) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}

	var slice []string
	if err := unmarshal(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// Contains checks if the slice contains the given string
func (s StringOrSlice) Contains(str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stderr, stdout, or file path
	Quiet  bool   `yaml:"quiet"`  // suppress render logs
	Plugin string `yaml:"plugin"` // where the log formatter writes: stderr, stdout, none, or file path
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Render: RenderConfig{
			MaxDepth: 64,
			Timezone: "UTC",
		},
		Data: DataConfig{
			Key: "rows",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		Output: OutputConfig{
			Level: "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			Plugin: "stderr",
		},
	}
}
