package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sambeau/sage/config"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/sage"
)

// Version is set at build time via -ldflags
var Version = sage.Version

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("no command given")
	}

	// Set up signal handling so --watch and the REPL stop cleanly
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "render":
		return renderCommand(ctx, rest, stdout, stderr, getenv)
	case "resolve":
		return resolveCommand(ctx, rest, stdout, stderr, getenv)
	case "paths":
		return pathsCommand(rest, stdout, stderr, getenv)
	case "format":
		return formatCommand(ctx, rest, stdout, stderr, getenv)
	case "repl":
		return replCommand(ctx, rest, stdin, stdout, stderr, getenv)
	case "version", "--version", "-V":
		fmt.Fprintf(stdout, "sage version %s\n", Version)
		return nil
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// options are the flags shared by every command that renders or resolves.
type options struct {
	configPath string
	profile    string
	dataFile   string
	inlineJSON string
	driver     string
	dsn        string
	query      string
	locale     string
	timezone   string
	disable    string
	maxDepth   int
}

func addCommonFlags(flags *flag.FlagSet) *options {
	o := &options{}
	flags.StringVar(&o.configPath, "config", "", "Path to config file")
	flags.StringVar(&o.profile, "profile", "", "Apply a named config profile")
	flags.StringVar(&o.dataFile, "data", "", "Data file (.json, .yaml, .toml, .cbor)")
	flags.StringVar(&o.inlineJSON, "json", "", "Inline JSON data")
	flags.StringVar(&o.driver, "driver", "", "SQL driver for query data (sqlite, postgres, mysql)")
	flags.StringVar(&o.dsn, "dsn", "", "SQL data source name")
	flags.StringVar(&o.query, "query", "", "SQL query whose rows become the data")
	flags.StringVar(&o.locale, "locale", "", "Default locale for formatters")
	flags.StringVar(&o.timezone, "timezone", "", "Time zone for date formatters")
	flags.StringVar(&o.disable, "disable", "", "Comma-separated plugin identifiers to disable")
	flags.IntVar(&o.maxDepth, "max-depth", 0, "Private sub-render nesting limit")
	return o
}

// load resolves the configuration and applies the command line over it.
// A missing default config file is not an error; an explicit one is.
func (o *options) load(getenv func(string) string) (*config.Config, string, error) {
	cfg, configFile, err := config.LoadWithPath(o.configPath, getenv)
	if errors.Is(err, config.ErrNoConfig) {
		cfg, configFile, err = config.Defaults(), "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	if o.profile != "" {
		if err := config.ApplyProfile(cfg, o.profile); err != nil {
			return nil, "", err
		}
	}

	// Apply CLI overrides
	if o.dataFile != "" {
		cfg.Data = config.DataConfig{File: o.dataFile, Key: cfg.Data.Key}
	}
	if o.driver != "" || o.dsn != "" || o.query != "" {
		cfg.Data.File = ""
		if o.driver != "" {
			cfg.Data.Driver = o.driver
		}
		if o.dsn != "" {
			cfg.Data.DSN = o.dsn
		}
		if o.query != "" {
			cfg.Data.Query = o.query
		}
	}
	if o.locale != "" {
		cfg.Render.Locale = o.locale
	}
	if o.timezone != "" {
		cfg.Render.Timezone = o.timezone
	}
	if o.maxDepth != 0 {
		cfg.Render.MaxDepth = o.maxDepth
	}
	for _, id := range strings.Split(o.disable, ",") {
		if id = strings.TrimSpace(id); id != "" && !cfg.Plugins.Disabled.Contains(id) {
			cfg.Plugins.Disabled = append(cfg.Plugins.Disabled, id)
		}
	}

	// Full validation after CLI overrides applied
	if err := config.Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config validation: %w", err)
	}
	return cfg, configFile, nil
}

// printError writes err to w, using the structured form for engine errors.
func printError(w io.Writer, err error) {
	var se *serrors.SageError
	if errors.As(err, &se) {
		fmt.Fprintln(w, se.PrettyString())
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `sage - JSON template renderer version %s

Usage:
  sage render [options] [template]     Render a template against data
  sage resolve [options] <path>...     Print the values references resolve to
  sage paths [-template FILE] [path...]  Show how references compile
  sage format [options] <expr>         Apply formatters or a predicate to a value
  sage repl [options]                  Explore data interactively
  sage version                         Show version

Data Options:
  --data FILE        Data file (.json, .yaml, .yml, .toml, .cbor)
  --json TEXT        Inline JSON data
  --driver NAME      SQL driver (sqlite, postgres, mysql)
  --dsn DSN          SQL data source name
  --query SQL        Query whose rows become the data

Render Options:
  --config PATH      Path to config file (default: auto-detect)
  --profile NAME     Apply a named config profile
  --locale TAG       Default locale for decimal, currency and datetime
  --timezone ZONE    Time zone for date formatters
  --disable IDS      Comma-separated plugins to disable
  --max-depth N      Private sub-render nesting limit
  --out PATH         Write output to a file (.gz and .zst compress)
  --compress KIND    none, gzip or zstd
  --watch            Re-render when the template, data or config changes

Config Resolution:
  1. --config flag
  2. SAGE_CONFIG environment variable
  3. ./sage.yaml
  4. ~/.config/sage/sage.yaml

Examples:
  sage render --data site.json page.yaml
  sage render --watch --out public/index.html page.yaml
  sage resolve --data site.yaml posts.0.title author.name
  sage format --json '{"n": 1234.5}' 'n|decimal minFrac:2'
  sage format --data site.json 'plural? posts'
  sage paths 'item.images[0][key]'

`, Version)
}
